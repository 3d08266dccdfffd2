// Package cache defines the cache used to keep fetched row batches between
// eager-load invocations.
package cache

import (
	"context"
	"time"
)

// Cache is the interface for caching fetched row batches.
// It provides Get, Set and prefix-scoped invalidation with TTL support.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes all entries from cache.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Sizer is implemented by values that know their approximate memory cost.
// Values that do not implement it are charged a flat per-entry cost.
type Sizer interface {
	Size() int64
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64

	// Invalidations counts keys removed by Delete, DeletePrefix and Clear
	Invalidations uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
