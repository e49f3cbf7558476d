package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/confsearch/talk-indexer/pkg/cache"
)

// ProcessedEventCache records which event ids completed successfully.
// Implementations are best-effort only: a lost mark means a redundant
// idempotent overwrite, never data corruption.
type ProcessedEventCache interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// CachedEventTracker adapts a generic cache into a ProcessedEventCache.
// Cache failures are logged and treated as "not seen" so an unavailable
// cache can never stall the pipeline.
type CachedEventTracker struct {
	cache  cache.Cache[string, time.Time]
	logger zerolog.Logger
}

// NewCachedEventTracker creates a tracker over the given cache.
func NewCachedEventTracker(c cache.Cache[string, time.Time], logger zerolog.Logger) *CachedEventTracker {
	return &CachedEventTracker{
		cache:  c,
		logger: logger.With().Str("component", "CachedEventTracker").Logger(),
	}
}

// Seen reports whether the event id was marked as processed.
func (t *CachedEventTracker) Seen(ctx context.Context, eventID string) bool {
	_, err := t.cache.FetchFromCache(ctx, eventID)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		t.logger.Warn().Err(err).Str("event_id", eventID).Msg("Processed-event cache lookup failed, assuming unseen.")
	}
	return false
}

// Mark records an event id as processed.
func (t *CachedEventTracker) Mark(ctx context.Context, eventID string) {
	if err := t.cache.WriteToCache(ctx, eventID, time.Now()); err != nil {
		t.logger.Warn().Err(err).Str("event_id", eventID).Msg("Failed to mark event as processed.")
	}
}
