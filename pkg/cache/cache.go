// Package cache provides a small generic caching layer. The worker uses it
// as a best-effort marker of already-processed event ids; correctness never
// depends on it, since index writes are idempotent by document id.
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned when a key is not present in the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a generic interface for a caching layer.
type Cache[K any, V any] interface {
	// FetchFromCache retrieves an item, returning ErrCacheMiss when absent.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds an item to the cache.
	WriteToCache(ctx context.Context, key K, value V) error
}
