// Package memory provides an in-process RowStore backed by plain maps.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/asakaida/polyload/internal/repositories"
)

// RowStore implements repositories.RowStore in memory.
// Every fetch increments a counter so callers can assert on batching.
type RowStore struct {
	mu      sync.RWMutex
	tables  map[string][]repositories.Row
	fetches atomic.Int64
	failure error
}

// NewRowStore creates an empty in-memory row store
func NewRowStore() *RowStore {
	return &RowStore{tables: make(map[string][]repositories.Row)}
}

// Insert appends rows to table. Rows are copied.
func (s *RowStore) Insert(table string, rows ...repositories.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.tables[table] = append(s.tables[table], copyRow(row))
	}
}

// Truncate removes every row of table
func (s *RowStore) Truncate(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
}

// FailWith makes every subsequent fetch return err (nil clears it)
func (s *RowStore) FailWith(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

// Fetches returns the number of fetch calls served so far
func (s *RowStore) Fetches() int {
	return int(s.fetches.Load())
}

// ResetFetches sets the fetch counter back to zero
func (s *RowStore) ResetFetches() {
	s.fetches.Store(0)
}

// FetchByKeys returns rows whose req.Column matches one of req.Keys
func (s *RowStore) FetchByKeys(ctx context.Context, req *repositories.FetchRequest) ([]repositories.Row, error) {
	s.fetches.Add(1)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	wanted := make(map[string]bool, len(req.Keys))
	for _, k := range req.Keys {
		wanted[repositories.NormalizeKey(k)] = true
	}

	var out []repositories.Row
	for _, row := range s.tables[req.Table] {
		v, ok := row[req.Column]
		if !ok || v == nil || !wanted[repositories.NormalizeKey(v)] {
			continue
		}
		if !matchesEquals(row, req.Equals) {
			continue
		}
		out = append(out, copyRow(row))
	}

	sortRows(out, req.OrderBy)
	return out, nil
}

// FetchAll returns every row of table
func (s *RowStore) FetchAll(ctx context.Context, table string, orderBy string) ([]repositories.Row, error) {
	s.fetches.Add(1)
	if err := repositories.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	out := make([]repositories.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		out = append(out, copyRow(row))
	}
	sortRows(out, orderBy)
	return out, nil
}

func matchesEquals(row repositories.Row, equals map[string]interface{}) bool {
	for col, want := range equals {
		got, ok := row[col]
		if !ok || got == nil {
			return false
		}
		if repositories.NormalizeKey(got) != repositories.NormalizeKey(want) {
			return false
		}
	}
	return true
}

func sortRows(rows []repositories.Row, orderBy string) {
	if orderBy == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return repositories.CompareKeys(rows[i][orderBy], rows[j][orderBy]) < 0
	})
}

func copyRow(row repositories.Row) repositories.Row {
	out := make(repositories.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
