package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asakaida/polyload/internal/repositories"
	"github.com/lib/pq"
)

// PostgresRowStore implements RowStore using PostgreSQL
type PostgresRowStore struct {
	db *sql.DB
}

// NewPostgresRowStore creates a new PostgreSQL row store
func NewPostgresRowStore(db *sql.DB) repositories.RowStore {
	return &PostgresRowStore{db: db}
}

// FetchByKeys runs one SELECT ... WHERE column = ANY($1) for the whole key batch
func (s *PostgresRowStore) FetchByKeys(ctx context.Context, req *repositories.FetchRequest) ([]repositories.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}
	if len(req.Keys) == 0 {
		return nil, nil
	}

	query, args := buildFetchQuery(req)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.Table, err)
	}
	defer rows.Close()

	return repositories.ScanRows(rows)
}

// FetchAll reads the whole table
func (s *PostgresRowStore) FetchAll(ctx context.Context, table string, orderBy string) ([]repositories.Row, error) {
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

// buildFetchQuery renders the batched lookup with $n placeholders.
// Keys travel as one text array; PostgreSQL casts it to the column type.
func buildFetchQuery(req *repositories.FetchRequest) (string, []interface{}) {
	keys := make([]string, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = repositories.NormalizeKey(k)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s WHERE %s = ANY($1)",
		repositories.QuoteIdentifier(req.Table),
		repositories.QuoteIdentifier(req.Column),
	)
	args := []interface{}{pq.Array(keys)}
	argIdx := 2

	for _, col := range req.EqualsColumns() {
		fmt.Fprintf(&sb, " AND %s = $%d", repositories.QuoteIdentifier(col), argIdx)
		args = append(args, req.Equals[col])
		argIdx++
	}

	if req.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", repositories.QuoteIdentifier(req.OrderBy))
	}

	return sb.String(), args
}
