// Package sqlite implements the row store on top of database/sql with the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/asakaida/polyload/internal/repositories"
	_ "modernc.org/sqlite"
)

// SQLiteRowStore implements RowStore using SQLite
type SQLiteRowStore struct {
	db *sql.DB
}

// NewSQLiteRowStore creates a new SQLite row store
func NewSQLiteRowStore(db *sql.DB) repositories.RowStore {
	return &SQLiteRowStore{db: db}
}

// maxKeysPerQuery keeps each statement below SQLite's bind variable limit
// (32766 by default), leaving room for the equality filters
var maxKeysPerQuery = 30000

// FetchByKeys runs SELECT ... WHERE column IN (?, ...) for the key batch.
// Batches larger than maxKeysPerQuery are split; the merged rows are ordered
// by req.OrderBy again.
func (s *SQLiteRowStore) FetchByKeys(ctx context.Context, req *repositories.FetchRequest) ([]repositories.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}
	if len(req.Keys) == 0 {
		return nil, nil
	}

	var out []repositories.Row
	chunks := 0
	for start := 0; start < len(req.Keys); start += maxKeysPerQuery {
		end := start + maxKeysPerQuery
		if end > len(req.Keys) {
			end = len(req.Keys)
		}
		chunk := *req
		chunk.Keys = req.Keys[start:end]

		rows, err := s.fetchChunk(ctx, &chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		chunks++
	}

	if chunks > 1 && req.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return repositories.CompareKeys(out[i][req.OrderBy], out[j][req.OrderBy]) < 0
		})
	}
	return out, nil
}

func (s *SQLiteRowStore) fetchChunk(ctx context.Context, req *repositories.FetchRequest) ([]repositories.Row, error) {
	query, args := buildFetchQuery(req)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.Table, err)
	}
	defer rows.Close()

	return repositories.ScanRows(rows)
}

// FetchAll reads the whole table
func (s *SQLiteRowStore) FetchAll(ctx context.Context, table string, orderBy string) ([]repositories.Row, error) {
	if err := repositories.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM %s", repositories.QuoteIdentifier(table))
	if orderBy != "" {
		if err := repositories.ValidateIdentifier(orderBy); err != nil {
			return nil, fmt.Errorf("invalid order by: %w", err)
		}
		query += fmt.Sprintf(" ORDER BY %s", repositories.QuoteIdentifier(orderBy))
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", table, err)
	}
	defer rows.Close()

	return repositories.ScanRows(rows)
}

func buildFetchQuery(req *repositories.FetchRequest) (string, []interface{}) {
	placeholders := make([]string, len(req.Keys))
	args := make([]interface{}, 0, len(req.Keys)+len(req.Equals))
	for i, k := range req.Keys {
		placeholders[i] = "?"
		args = append(args, k)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s WHERE %s IN (%s)",
		repositories.QuoteIdentifier(req.Table),
		repositories.QuoteIdentifier(req.Column),
		strings.Join(placeholders, ", "),
	)

	for _, col := range req.EqualsColumns() {
		fmt.Fprintf(&sb, " AND %s = ?", repositories.QuoteIdentifier(col))
		args = append(args, req.Equals[col])
	}

	if req.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", repositories.QuoteIdentifier(req.OrderBy))
	}

	return sb.String(), args
}
