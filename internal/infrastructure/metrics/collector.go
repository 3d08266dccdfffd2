package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/polyload/pkg/cache"
	"github.com/asakaida/polyload/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// Row store fetches issued by the loader, keyed by table
	fetches      sync.Map // map[string]*uint64 - table -> fetch count
	fetchErrors  sync.Map // map[string]*uint64 - table -> error count
	fetchRows    sync.Map // map[string]*uint64 - table -> rows returned
	fetchSeconds sync.Map // map[string]*durationValue - table -> total duration in seconds

	skips      sync.Map // map[string]*uint64 - "Entity.relation" -> skipped records
	unresolved sync.Map // map[string]*uint64 - discriminator -> unresolved records

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits          uint64
	Misses        uint64
	HitRate       float64
	KeysCurrent   int64
	MemoryBytes   int64
	Evictions     uint64
	Invalidations uint64
}

// LoadMetrics holds eager load metrics.
type LoadMetrics struct {
	Fetches              map[string]uint64
	FetchErrors          map[string]uint64
	FetchRows            map[string]uint64
	FetchDurationSeconds map[string]float64
	Skips                map[string]uint64
	Unresolved           map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordFetch records one row store fetch.
func (c *Collector) RecordFetch(table string, rows int, durationSeconds float64, failed bool) {
	atomic.AddUint64(c.getOrCreateCounter(&c.fetches, table), 1)
	if failed {
		atomic.AddUint64(c.getOrCreateCounter(&c.fetchErrors, table), 1)
	} else {
		atomic.AddUint64(c.getOrCreateCounter(&c.fetchRows, table), uint64(rows))
	}

	val, _ := c.fetchSeconds.LoadOrStore(table, &durationValue{})
	dv := val.(*durationValue)
	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordSkip records records skipped because their schema lacks a relation.
func (c *Collector) RecordSkip(entity, relation string, records int) {
	atomic.AddUint64(c.getOrCreateCounter(&c.skips, entity+"."+relation), uint64(records))
}

// RecordUnresolved records records whose discriminator has no registered schema.
func (c *Collector) RecordUnresolved(discriminator string, records int) {
	atomic.AddUint64(c.getOrCreateCounter(&c.unresolved, discriminator), uint64(records))
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:          metrics.Hits,
		Misses:        metrics.Misses,
		HitRate:       metrics.HitRate(),
		Evictions:     metrics.KeysEvicted,
		Invalidations: metrics.Invalidations,
	}

	// Get current keys and memory if available
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetLoadMetrics returns current eager load metrics.
func (c *Collector) GetLoadMetrics() *LoadMetrics {
	result := &LoadMetrics{
		Fetches:              snapshot(&c.fetches),
		FetchErrors:          snapshot(&c.fetchErrors),
		FetchRows:            snapshot(&c.fetchRows),
		FetchDurationSeconds: make(map[string]float64),
		Skips:                snapshot(&c.skips),
		Unresolved:           snapshot(&c.unresolved),
	}

	c.fetchSeconds.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.FetchDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}
