package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/asakaida/polyload/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (repositories.RowStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL, body BLOB);
CREATE TABLE likes (id INTEGER PRIMARY KEY, likeable_type TEXT, likeable_id INTEGER);
INSERT INTO posts (id, title, body) VALUES (3, 'third', x'6869'), (1, 'first', NULL), (2, 'second', NULL);
INSERT INTO likes (id, likeable_type, likeable_id) VALUES (1, 'Post', 1), (2, 'Comment', 1), (3, 'Post', 2), (4, NULL, NULL);
`)
	require.NoError(t, err)

	return NewSQLiteRowStore(db), db
}

func keysOf(rows []repositories.Row) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row["id"]
	}
	return out
}

func TestSQLiteRowStore_FetchByKeys(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *repositories.FetchRequest
		want []interface{}
	}{
		{
			name: "keys ordered by primary key",
			req:  &repositories.FetchRequest{Table: "posts", Column: "id", Keys: []interface{}{int64(3), int64(1)}, OrderBy: "id"},
			want: []interface{}{int64(1), int64(3)},
		},
		{
			name: "string keys match integer column",
			req:  &repositories.FetchRequest{Table: "posts", Column: "id", Keys: []interface{}{"2"}, OrderBy: "id"},
			want: []interface{}{int64(2)},
		},
		{
			name: "equality filter on type column",
			req: &repositories.FetchRequest{
				Table: "likes", Column: "likeable_id", Keys: []interface{}{int64(1), int64(2)},
				Equals: map[string]interface{}{"likeable_type": "Post"}, OrderBy: "id",
			},
			want: []interface{}{int64(1), int64(3)},
		},
		{
			name: "no match",
			req:  &repositories.FetchRequest{Table: "posts", Column: "id", Keys: []interface{}{int64(99)}},
			want: []interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.FetchByKeys(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(rows))
		})
	}
}

func TestSQLiteRowStore_LargeKeyBatch(t *testing.T) {
	store, _ := setupStore(t)

	keys := make([]interface{}, 0, 40000)
	for i := 40000; i > 0; i-- {
		keys = append(keys, int64(i))
	}

	rows, err := store.FetchByKeys(context.Background(), &repositories.FetchRequest{
		Table: "posts", Column: "id", Keys: keys, OrderBy: "id",
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, keysOf(rows))
}

func TestSQLiteRowStore_ChunkedBatchIsReordered(t *testing.T) {
	store, _ := setupStore(t)
	defer func(n int) { maxKeysPerQuery = n }(maxKeysPerQuery)
	maxKeysPerQuery = 1

	rows, err := store.FetchByKeys(context.Background(), &repositories.FetchRequest{
		Table:   "likes",
		Column:  "likeable_id",
		Keys:    []interface{}{int64(2), int64(1)},
		Equals:  map[string]interface{}{"likeable_type": "Post"},
		OrderBy: "id",
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(3)}, keysOf(rows))
}

func TestSQLiteRowStore_EmptyKeysIssueNoQuery(t *testing.T) {
	store, db := setupStore(t)
	require.NoError(t, db.Close())

	rows, err := store.FetchByKeys(context.Background(), &repositories.FetchRequest{Table: "posts", Column: "id"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteRowStore_BlobsBecomeStrings(t *testing.T) {
	store, _ := setupStore(t)

	rows, err := store.FetchByKeys(context.Background(), &repositories.FetchRequest{Table: "posts", Column: "id", Keys: []interface{}{3}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0]["body"])
	assert.Equal(t, "third", rows[0]["title"])
}

func TestSQLiteRowStore_FetchAll(t *testing.T) {
	store, _ := setupStore(t)

	rows, err := store.FetchAll(context.Background(), "posts", "id")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, keysOf(rows))
}

func TestSQLiteRowStore_InvalidIdentifiers(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.FetchByKeys(ctx, &repositories.FetchRequest{Table: "posts; DROP TABLE posts", Column: "id", Keys: []interface{}{1}})
	assert.Error(t, err)

	_, err = store.FetchAll(ctx, "posts", "id desc")
	assert.Error(t, err)
}

func TestSQLiteRowStore_QueryErrorsAreWrapped(t *testing.T) {
	store, db := setupStore(t)
	require.NoError(t, db.Close())

	_, err := store.FetchAll(context.Background(), "posts", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch posts")
}
