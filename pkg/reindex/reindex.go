// Package reindex performs the bulk sweep: for a set of conferences, fetch
// every talk and rewrite its search document. The sweep is non-atomic and
// tolerant of partial failure; re-running it simply overwrites the already
// indexed documents again.
package reindex

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/confsearch/talk-indexer/pkg/esstore"
	"github.com/confsearch/talk-indexer/pkg/talkapi"
)

// progressEvery controls the coarse progress-log interval within a conference.
const progressEvery = 10

// ConferenceTalksFetcher lists all talks of a conference from the upstream API.
type ConferenceTalksFetcher interface {
	FetchConferenceTalks(ctx context.Context, conferenceID string) ([]talkapi.TalkRecord, error)
}

// Summary reports the outcome of one reindex run.
type Summary struct {
	// Indexed counts talks whose document was written successfully.
	Indexed int
	// TalkFailures counts talks that failed to transform or write; the
	// conference sweep continued past each of them.
	TalkFailures int
	// ConferenceFailures counts conferences whose talk listing could not be
	// fetched; those conferences were skipped entirely.
	ConferenceFailures int
}

// Orchestrator drives the reindex sweep.
type Orchestrator struct {
	fetcher ConferenceTalksFetcher
	writer  esstore.DocumentWriter
	now     func() time.Time
	logger  zerolog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(fetcher ConferenceTalksFetcher, writer esstore.DocumentWriter, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher: fetcher,
		writer:  writer,
		now:     time.Now,
		logger:  logger.With().Str("component", "ReindexOrchestrator").Logger(),
	}
}

// WithClock overrides the indexed_at timestamp source. Used by tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Reindex sweeps the given conferences sequentially. A conference whose
// listing cannot be fetched is skipped; a talk that fails to index does not
// stop its conference. The run itself never fails.
func (o *Orchestrator) Reindex(ctx context.Context, conferenceIDs []string) Summary {
	runLogger := o.logger.With().Str("run_id", uuid.NewString()).Logger()
	runLogger.Info().Strs("conference_ids", conferenceIDs).Msg("Starting reindex run.")

	var summary Summary
	for _, confID := range conferenceIDs {
		confLogger := runLogger.With().Str("conference_id", confID).Logger()

		talks, err := o.fetcher.FetchConferenceTalks(ctx, confID)
		if err != nil {
			confLogger.Error().Err(err).Msg("Failed to fetch conference talks, skipping conference.")
			summary.ConferenceFailures++
			continue
		}
		confLogger.Info().Int("talk_count", len(talks)).Msg("Reindexing conference.")

		successCount := 0
		errorCount := 0
		for i := range talks {
			if err := o.indexTalk(ctx, &talks[i]); err != nil {
				confLogger.Error().Err(err).Int("position", i).Msg("Failed to index talk, continuing.")
				errorCount++
			} else {
				successCount++
			}
			if (i+1)%progressEvery == 0 {
				confLogger.Info().Int("done", i+1).Int("total", len(talks)).Msg("Reindex progress.")
			}
		}

		confLogger.Info().Int("success", successCount).Int("errors", errorCount).Msg("Completed reindexing conference.")
		summary.Indexed += successCount
		summary.TalkFailures += errorCount
	}

	runLogger.Info().
		Int("indexed", summary.Indexed).
		Int("talk_failures", summary.TalkFailures).
		Int("conference_failures", summary.ConferenceFailures).
		Msg("Reindex run complete.")
	return summary
}

// indexTalk transforms and upserts a single talk by its own id.
func (o *Orchestrator) indexTalk(ctx context.Context, talk *talkapi.TalkRecord) error {
	doc := esstore.Transform(talk, o.now())
	return o.writer.Upsert(ctx, talk.ID, doc)
}
