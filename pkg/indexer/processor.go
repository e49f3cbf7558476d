// Package indexer contains the core per-event processing logic of the
// worker: route a parsed change event, enrich it from the upstream talk API,
// transform it, and write the result to the search index. The poll pipeline
// is a thin adapter around this package; it supplies delivery and
// acknowledgment semantics while the processing itself lives here.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/confsearch/talk-indexer/pkg/esstore"
	"github.com/confsearch/talk-indexer/pkg/events"
	"github.com/confsearch/talk-indexer/pkg/messagepipeline"
	"github.com/confsearch/talk-indexer/pkg/talkapi"
)

// TalkFetcher retrieves a single talk from the upstream data API.
type TalkFetcher interface {
	FetchTalk(ctx context.Context, talkID string) (*talkapi.TalkRecord, error)
}

// Processor executes one change event end to end. It holds no per-event
// state; every call is independent.
type Processor struct {
	fetcher TalkFetcher
	writer  esstore.DocumentWriter
	seen    ProcessedEventCache
	now     func() time.Time
	logger  zerolog.Logger
}

// ProcessorOption configures optional Processor behavior.
type ProcessorOption func(*Processor)

// WithProcessedEventCache enables best-effort duplicate suppression: events
// whose eventId was already processed successfully are acknowledged without
// reprocessing. Redelivery after a failure is unaffected because ids are
// only marked after success.
func WithProcessedEventCache(seen ProcessedEventCache) ProcessorOption {
	return func(p *Processor) { p.seen = seen }
}

// WithClock overrides the timestamp source used for indexed_at stamping.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a new Processor.
func NewProcessor(fetcher TalkFetcher, writer esstore.DocumentWriter, logger zerolog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		fetcher: fetcher,
		writer:  writer,
		now:     time.Now,
		logger:  logger.With().Str("component", "Processor").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transformer returns the pipeline stage that parses a queued message body
// into a typed event. Unrecognized event types and already-processed event
// ids are skipped (acknowledged without side effects); malformed bodies are
// errors, leaving the message for redelivery.
func (p *Processor) Transformer() messagepipeline.MessageTransformer[events.TalkEvent] {
	return func(ctx context.Context, msg *messagepipeline.Message) (*events.TalkEvent, bool, error) {
		evt, err := events.Parse(msg.Payload)
		if err != nil {
			return nil, false, err
		}

		if evt.Kind == events.KindUnknown {
			p.logger.Warn().Str("event_type", evt.RawType).Str("entity_id", evt.EntityID).Msg("Unknown event type, dropping.")
			return nil, true, nil
		}

		if p.seen != nil {
			if eventID := msg.Attribute("eventId", ""); eventID != "" && p.seen.Seen(ctx, eventID) {
				p.logger.Info().Str("event_id", eventID).Str("entity_id", evt.EntityID).Msg("Event already processed, dropping duplicate delivery.")
				return nil, true, nil
			}
		}

		return evt, false, nil
	}
}

// Process is the pipeline stage that executes a transformed event. On
// success it marks the event id as processed; on failure the pipeline leaves
// the message for redelivery.
func (p *Processor) Process(ctx context.Context, original messagepipeline.Message, evt *events.TalkEvent) error {
	if err := p.ProcessEvent(ctx, evt); err != nil {
		return err
	}
	if p.seen != nil {
		if eventID := original.Attribute("eventId", ""); eventID != "" {
			p.seen.Mark(ctx, eventID)
		}
	}
	return nil
}

// ProcessEvent routes one event: fetch+transform+upsert for talk changes
// that need the full document, a status patch for unpublish.
func (p *Processor) ProcessEvent(ctx context.Context, evt *events.TalkEvent) error {
	p.logger.Info().Str("event_type", evt.Kind.String()).Str("entity_id", evt.EntityID).Msg("Processing event.")

	switch {
	case evt.Kind.RequiresFetch():
		return p.indexTalk(ctx, evt.EntityID)
	case evt.Kind == events.KindTalkUnpublished:
		if err := p.writer.Patch(ctx, evt.EntityID, map[string]any{"status": "DRAFT"}); err != nil {
			return fmt.Errorf("failed to mark talk %s unpublished: %w", evt.EntityID, err)
		}
		p.logger.Info().Str("entity_id", evt.EntityID).Msg("Updated unpublished talk.")
		return nil
	default:
		// Unknown kinds are filtered by the transformer; reaching here is a
		// programming error, but dropping is still the safe behavior.
		p.logger.Warn().Str("event_type", evt.RawType).Msg("Unhandled event kind.")
		return nil
	}
}

// indexTalk fetches the current upstream state of a talk and rewrites its
// full search document.
func (p *Processor) indexTalk(ctx context.Context, talkID string) error {
	talk, err := p.fetcher.FetchTalk(ctx, talkID)
	if err != nil {
		return fmt.Errorf("failed to fetch talk %s: %w", talkID, err)
	}

	doc := esstore.Transform(talk, p.now())
	if err := p.writer.Upsert(ctx, talkID, doc); err != nil {
		return fmt.Errorf("failed to index talk %s: %w", talkID, err)
	}

	p.logger.Info().Str("entity_id", talkID).Msg("Successfully indexed talk.")
	return nil
}
