// Package cached wraps a RowStore with a read-through row cache.
package cached

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/asakaida/polyload/internal/repositories"
	"github.com/asakaida/polyload/pkg/cache"
)

// rowBatch is the cached value of one fetch
type rowBatch []repositories.Row

// Size estimates the memory held by the batch
func (b rowBatch) Size() int64 {
	var size int64
	for _, row := range b {
		size += 48
		for col, v := range row {
			size += int64(len(col)) + 16
			if s, ok := v.(string); ok {
				size += int64(len(s))
			}
		}
	}
	return size
}

// RowStore caches the results of FetchByKeys and FetchAll per table.
// Keys start with "<table>|" so a table can be invalidated on its own.
type RowStore struct {
	next  repositories.RowStore
	cache cache.Cache
	ttl   time.Duration
}

// NewRowStore creates a caching decorator around next
func NewRowStore(next repositories.RowStore, c cache.Cache, ttl time.Duration) *RowStore {
	return &RowStore{next: next, cache: c, ttl: ttl}
}

// Cache returns the underlying cache
func (s *RowStore) Cache() cache.Cache {
	return s.cache
}

// FetchByKeys serves the request from cache when the same table, column,
// key set and filters were fetched before
func (s *RowStore) FetchByKeys(ctx context.Context, req *repositories.FetchRequest) ([]repositories.Row, error) {
	key := FetchKey(req)
	if v, ok := s.cache.Get(ctx, key); ok {
		return copyBatch(v.(rowBatch)), nil
	}

	rows, err := s.next.FetchByKeys(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, copyBatch(rows), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to cache rows of %s: %w", req.Table, err)
	}
	return rows, nil
}

// FetchAll caches the full table read
func (s *RowStore) FetchAll(ctx context.Context, table string, orderBy string) ([]repositories.Row, error) {
	key := table + "|*|" + orderBy
	if v, ok := s.cache.Get(ctx, key); ok {
		return copyBatch(v.(rowBatch)), nil
	}

	rows, err := s.next.FetchAll(ctx, table, orderBy)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, copyBatch(rows), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to cache rows of %s: %w", table, err)
	}
	return rows, nil
}

// InvalidateTable drops every cached fetch of table
func (s *RowStore) InvalidateTable(ctx context.Context, table string) (int, error) {
	return s.cache.DeletePrefix(ctx, table+"|")
}

// InvalidateAll drops every cached fetch
func (s *RowStore) InvalidateAll(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// FetchKey builds the cache key of a request.
// Key and filter values are quoted so separators inside them cannot collide.
// Format: table|column|"k1","k2"|col="value",...|orderBy
func FetchKey(req *repositories.FetchRequest) string {
	keys := make([]string, 0, len(req.Keys))
	for _, k := range req.Keys {
		keys = append(keys, strconv.Quote(repositories.NormalizeKey(k)))
	}
	sort.Strings(keys)

	filters := make([]string, 0, len(req.Equals))
	for _, col := range req.EqualsColumns() {
		filters = append(filters, col+"="+strconv.Quote(repositories.NormalizeKey(req.Equals[col])))
	}

	return strings.Join([]string{
		req.Table,
		req.Column,
		strings.Join(keys, ","),
		strings.Join(filters, ","),
		req.OrderBy,
	}, "|")
}

func copyBatch(rows []repositories.Row) rowBatch {
	out := make(rowBatch, len(rows))
	for i, row := range rows {
		cp := make(repositories.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
