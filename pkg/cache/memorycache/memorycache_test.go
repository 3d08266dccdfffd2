package memorycache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type sizedBatch struct {
	rows  []string
	bytes int64
}

func (b sizedBatch) Size() int64 { return b.bytes }

func newTestCache(t *testing.T, maxSize int64) *Cache {
	t.Helper()
	c, err := New(&Config{
		MaxSizeBytes:  maxSize,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestCache_SetAndGet(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	batch := sizedBatch{rows: []string{"posts:1", "posts:2"}, bytes: 128}
	if err := c.Set(ctx, "posts|id|1,2", batch, time.Minute); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	value, found := c.Get(ctx, "posts|id|1,2")
	if !found {
		t.Fatal("expected to find posts batch")
	}
	got, ok := value.(sizedBatch)
	if !ok || len(got.rows) != 2 {
		t.Errorf("expected batch with 2 rows, got %v", value)
	}

	if _, found := c.Get(ctx, "posts|id|3"); found {
		t.Error("expected not to find unknown key")
	}
}

func TestCache_ZeroTTLUsesDefault(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	if err := c.Set(ctx, "users|id|1", "row", 0); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}
	if _, found := c.Get(ctx, "users|id|1"); !found {
		t.Error("expected zero ttl entry to live for the default ttl")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	if err := c.Set(ctx, "key1", "value1", 50*time.Millisecond); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	if _, found := c.Get(ctx, "key1"); !found {
		t.Error("expected to find key1 before expiration")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get(ctx, "key1"); found {
		t.Error("expected not to find key1 after expiration")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, got %d items", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	// each single-letter key costs 65 bytes, so three fit
	c := newTestCache(t, 200)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		if err := c.Set(ctx, key, i, time.Minute); err != nil {
			t.Fatalf("failed to set value: %v", err)
		}
	}

	if c.Len() != 3 {
		t.Errorf("expected 3 items after eviction, got %d", c.Len())
	}
	if _, found := c.Get(ctx, "j"); !found {
		t.Error("expected to find most recent item 'j'")
	}
	if _, found := c.Get(ctx, "a"); found {
		t.Error("expected oldest item 'a' to be evicted")
	}
	if m := c.Metrics(); m.KeysEvicted != 7 {
		t.Errorf("expected 7 evictions, got %d", m.KeysEvicted)
	}
}

func TestCache_RecentlyReadSurvivesEviction(t *testing.T) {
	c := newTestCache(t, 200)
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, time.Minute)
	c.Set(ctx, "c", 3, time.Minute)

	// touch a so b becomes least recently used
	c.Get(ctx, "a")
	c.Set(ctx, "d", 4, time.Minute)

	if _, found := c.Get(ctx, "a"); !found {
		t.Error("expected 'a' to survive eviction")
	}
	if _, found := c.Get(ctx, "b"); found {
		t.Error("expected 'b' to be evicted")
	}
}

func TestCache_SizedValues(t *testing.T) {
	c := newTestCache(t, 1000)
	ctx := context.Background()

	c.Set(ctx, "k", sizedBatch{bytes: 300}, time.Minute)
	if got, want := c.Size(), int64(64+1+300); got != want {
		t.Errorf("expected size %d, got %d", want, got)
	}

	// a single oversized entry is kept on its own
	c.Set(ctx, "big", sizedBatch{bytes: 5000}, time.Minute)
	if c.Len() != 1 {
		t.Errorf("expected only the oversized entry to remain, got %d items", c.Len())
	}
	if _, found := c.Get(ctx, "big"); !found {
		t.Error("expected oversized entry to be kept")
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "key1", "value1", time.Minute)
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, found := c.Get(ctx, "key1"); found {
		t.Error("expected not to find key1 after deletion")
	}
	if err := c.Delete(ctx, "nonexistent"); err != nil {
		t.Fatalf("delete of non-existent key should not error: %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("expected size 0 after deletion, got %d", c.Size())
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "posts|id|1", "a", time.Minute)
	c.Set(ctx, "posts|user_id|1", "b", time.Minute)
	c.Set(ctx, "postscript|id|1", "c", time.Minute)
	c.Set(ctx, "users|id|1", "d", time.Minute)

	removed, err := c.DeletePrefix(ctx, "posts|")
	if err != nil {
		t.Fatalf("failed to delete prefix: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 items left, got %d", c.Len())
	}
	if _, found := c.Get(ctx, "postscript|id|1"); !found {
		t.Error("expected unrelated table with shared prefix to stay")
	}
	if m := c.Metrics(); m.Invalidations != 2 {
		t.Errorf("expected 2 invalidations, got %d", m.Invalidations)
	}
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "key1", "value1", time.Minute)
	c.Set(ctx, "key2", "value2", time.Minute)
	c.Set(ctx, "key3", "value3", time.Minute)

	if c.Len() != 3 {
		t.Errorf("expected 3 items, got %d", c.Len())
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if c.Len() != 0 || c.Size() != 0 {
		t.Errorf("expected empty cache after clear, got %d items and %d bytes", c.Len(), c.Size())
	}
	if m := c.Metrics(); m.Invalidations != 3 {
		t.Errorf("expected 3 invalidations, got %d", m.Invalidations)
	}
}

func TestCache_Metrics(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	metrics := c.Metrics()
	if metrics.Hits != 0 || metrics.Misses != 0 {
		t.Errorf("expected 0 hits and misses initially, got %d hits and %d misses", metrics.Hits, metrics.Misses)
	}

	c.Set(ctx, "key1", "value1", time.Minute)
	c.Get(ctx, "key1")
	c.Get(ctx, "nonexistent")

	metrics = c.Metrics()
	if metrics.Hits != 1 || metrics.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", metrics.Hits, metrics.Misses)
	}
	if metrics.KeysAdded != 1 {
		t.Errorf("expected 1 key added, got %d", metrics.KeysAdded)
	}
	if metrics.HitRate() != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", metrics.HitRate())
	}
}

func TestCache_MetricsDisabled(t *testing.T) {
	c, err := New(&Config{MaxSizeBytes: 1024, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	c.Get(context.Background(), "missing")
	if m := c.Metrics(); m.Misses != 0 || m.HitRate() != 0 {
		t.Errorf("expected zero metrics when disabled, got %+v", m)
	}
}

func TestCache_UpdateExisting(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "key1", sizedBatch{bytes: 10}, time.Minute)
	c.Set(ctx, "key1", sizedBatch{bytes: 40}, time.Minute)

	value, found := c.Get(ctx, "key1")
	if !found {
		t.Fatal("expected to find key1")
	}
	if value.(sizedBatch).bytes != 40 {
		t.Errorf("expected updated value, got %v", value)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 item, got %d", c.Len())
	}
	if got, want := c.Size(), int64(64+4+40); got != want {
		t.Errorf("expected size %d after update, got %d", want, got)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t, 1024*1024)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(ctx, fmt.Sprintf("t%d|id|%d", id, j%5), j, time.Minute)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(ctx, fmt.Sprintf("t%d|id|%d", id, j%5))
				if j%25 == 0 {
					c.DeletePrefix(ctx, fmt.Sprintf("t%d|", id))
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("expected at most 50 items, got %d", c.Len())
	}
}
