package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Row is one raw row keyed by column name
type Row map[string]interface{}

// FetchRequest describes one batched IN-style lookup
// Example: SELECT * FROM likes WHERE likeable_id IN (1, 2) AND likeable_type = 'Post' ORDER BY id
type FetchRequest struct {
	Table   string                 // Table to read (e.g., "posts")
	Column  string                 // Key column matched against Keys (e.g., "id")
	Keys    []interface{}          // Distinct, non-nil key values
	Equals  map[string]interface{} // Additional equality filters (optional)
	OrderBy string                 // Column to sort ascending by (optional)
}

// Validate checks that every identifier in the request is safe to interpolate
func (r *FetchRequest) Validate() error {
	if err := ValidateIdentifier(r.Table); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if err := ValidateIdentifier(r.Column); err != nil {
		return fmt.Errorf("column: %w", err)
	}
	for col := range r.Equals {
		if err := ValidateIdentifier(col); err != nil {
			return fmt.Errorf("filter column: %w", err)
		}
	}
	if r.OrderBy != "" {
		if err := ValidateIdentifier(r.OrderBy); err != nil {
			return fmt.Errorf("order by: %w", err)
		}
	}
	return nil
}

// EqualsColumns returns the filter columns in a stable order
func (r *FetchRequest) EqualsColumns() []string {
	cols := make([]string, 0, len(r.Equals))
	for col := range r.Equals {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// RowStore defines the interface for the external row store.
// Retry policy, pooling and ordering beyond OrderBy belong to the implementation.
type RowStore interface {
	// FetchByKeys returns the rows of req.Table whose req.Column is in req.Keys
	FetchByKeys(ctx context.Context, req *FetchRequest) ([]Row, error)

	// FetchAll returns every row of table, ordered by orderBy when it is set
	FetchAll(ctx context.Context, table string, orderBy string) ([]Row, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects anything that is not a plain SQL identifier
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// QuoteIdentifier wraps a validated identifier in double quotes
func QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

// NormalizeKey converts a key value into its comparable string form so that
// int64(1), 1, []byte("1") and "1" address the same row
func NormalizeKey(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return cast.ToString(v)
}

// CompareKeys orders two key values numerically when both are numeric,
// lexically otherwise
func CompareKeys(a, b interface{}) int {
	ai, aerr := cast.ToInt64E(a)
	bi, berr := cast.ToInt64E(b)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(NormalizeKey(a), NormalizeKey(b))
}

// ScanRows reads every row of rows into column maps.
// []byte values are converted to strings.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
