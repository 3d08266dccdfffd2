package memorycache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asakaida/polyload/pkg/cache"
)

// baseEntryCost is charged for every entry on top of its key and value size
const baseEntryCost = 64

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	size      int64
}

// Cache implements an LRU cache with TTL support and a byte budget.
type Cache struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recent

	maxSize     int64
	ttl         time.Duration
	currentSize int64

	metrics *cacheMetrics
}

type cacheMetrics struct {
	hits          uint64
	misses        uint64
	keysAdded     uint64
	keysEvicted   uint64
	invalidations uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes is the maximum total size of cached items in bytes.
	// When this limit is exceeded, least recently used items are evicted.
	MaxSizeBytes int64

	// DefaultTTL is used by Set when it is called with a zero ttl.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	c := &Cache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   config.MaxSizeBytes,
		ttl:       config.DefaultTTL,
	}

	if config.EnableMetrics {
		c.metrics = &cacheMetrics{}
	}

	return c, nil
}

// Get retrieves a value from cache and marks it most recently used.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.countMiss()
		return nil, false
	}

	ent := elem.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.countMiss()
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.hits++
	}
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	size := entrySize(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry)
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = time.Now().Add(ttl)
		ent.size = size
		c.evictList.MoveToFront(elem)
		c.evictOverflow()
		return nil
	}

	ent := &entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
		size:      size,
	}
	c.items[key] = c.evictList.PushFront(ent)
	c.currentSize += size

	if c.metrics != nil {
		c.metrics.keysAdded++
	}

	c.evictOverflow()
	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
		c.countInvalidations(1)
	}
	return nil
}

// DeletePrefix removes every key that starts with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	c.countInvalidations(removed)
	return removed, nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countInvalidations(len(c.items))
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &cache.Metrics{
		Hits:          c.metrics.hits,
		Misses:        c.metrics.misses,
		KeysAdded:     c.metrics.keysAdded,
		KeysEvicted:   c.metrics.keysEvicted,
		Invalidations: c.metrics.invalidations,
	}
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current total size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// evictOverflow drops least recently used entries until the budget holds.
// The most recent entry is always kept. Must be called with lock held.
func (c *Cache) evictOverflow() {
	for c.currentSize > c.maxSize && c.evictList.Len() > 1 {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.keysEvicted++
		}
	}
}

// removeElement must be called with lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func (c *Cache) countMiss() {
	if c.metrics != nil {
		c.metrics.misses++
	}
}

func (c *Cache) countInvalidations(n int) {
	if c.metrics != nil {
		c.metrics.invalidations += uint64(n)
	}
}

func entrySize(key string, value interface{}) int64 {
	size := int64(baseEntryCost + len(key))
	if s, ok := value.(cache.Sizer); ok {
		size += s.Size()
	}
	return size
}
