package cache

import (
	"context"
	"sync"
)

// InMemoryCache is a map-backed Cache for tests and single-process use.
type InMemoryCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewInMemoryCache creates an empty InMemoryCache.
func NewInMemoryCache[K comparable, V any]() *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{items: make(map[K]V)}
}

// FetchFromCache retrieves an item, returning ErrCacheMiss when absent.
func (c *InMemoryCache[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.items[key]
	if !ok {
		var zero V
		return zero, ErrCacheMiss
	}
	return value, nil
}

// WriteToCache adds an item.
func (c *InMemoryCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

// Len returns the number of cached items.
func (c *InMemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
