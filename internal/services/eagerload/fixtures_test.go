package eagerload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/asakaida/polyload/internal/entities"
	"github.com/asakaida/polyload/internal/registry"
	"github.com/asakaida/polyload/internal/repositories"
	"github.com/asakaida/polyload/internal/repositories/memory"
)

func testSchemas() []*entities.EntitySchema {
	return []*entities.EntitySchema{
		{
			Name: "User", Table: "users", PrimaryKey: "id",
			Relationships: []*entities.Relationship{
				{Name: "posts", Kind: entities.KindToMany, Target: "Post", LocalKey: "id", ForeignKey: "user_id"},
			},
		},
		{
			Name: "Post", Table: "posts", PrimaryKey: "id",
			Relationships: []*entities.Relationship{
				{Name: "owner", Kind: entities.KindToOne, Target: "User", LocalKey: "user_id", ForeignKey: "id"},
				{Name: "category", Kind: entities.KindToOne, Target: "Category", LocalKey: "category_id", ForeignKey: "id"},
				{Name: "comments", Kind: entities.KindToMany, Target: "Comment", LocalKey: "id", ForeignKey: "post_id"},
				{Name: "approved_comments", Kind: entities.KindToMany, Target: "Comment", LocalKey: "id", ForeignKey: "post_id", Where: "row.approved == true"},
				{Name: "likes", Kind: entities.KindMorphMany, Target: "Like", LocalKey: "id", ForeignKey: "likeable_id", TypeColumn: "likeable_type"},
				{Name: "first_like", Kind: entities.KindMorphOne, Target: "Like", LocalKey: "id", ForeignKey: "likeable_id", TypeColumn: "likeable_type"},
			},
		},
		{
			Name: "Comment", Table: "comments", PrimaryKey: "id",
			Relationships: []*entities.Relationship{
				{Name: "owner", Kind: entities.KindToOne, Target: "User", LocalKey: "user_id", ForeignKey: "id"},
				{Name: "post", Kind: entities.KindToOne, Target: "Post", LocalKey: "post_id", ForeignKey: "id"},
				{Name: "likes", Kind: entities.KindMorphMany, Target: "Like", LocalKey: "id", ForeignKey: "likeable_id", TypeColumn: "likeable_type"},
			},
		},
		{
			Name: "Like", Table: "likes", PrimaryKey: "id",
			Relationships: []*entities.Relationship{
				{Name: "likeable", Kind: entities.KindMorphTo, LocalKey: "likeable_id", TypeColumn: "likeable_type"},
			},
		},
		{Name: "Category", Table: "categories", PrimaryKey: "id"},
	}
}

// seedStore fills the store with two users, two posts, three comments and
// likes pointing at posts, comments, an unregistered type and nothing
func seedStore(store *memory.RowStore) {
	store.Insert("users",
		repositories.Row{"id": int64(1), "name": "alice"},
		repositories.Row{"id": int64(2), "name": "bob"},
	)
	store.Insert("categories",
		repositories.Row{"id": int64(1), "name": "news"},
	)
	store.Insert("posts",
		repositories.Row{"id": int64(2), "user_id": int64(2), "category_id": int64(1), "title": "second"},
		repositories.Row{"id": int64(1), "user_id": int64(1), "category_id": int64(1), "title": "first"},
	)
	store.Insert("comments",
		repositories.Row{"id": int64(3), "post_id": int64(1), "user_id": int64(2), "body": "late", "approved": false},
		repositories.Row{"id": int64(1), "post_id": int64(1), "user_id": int64(1), "body": "hello", "approved": true},
		repositories.Row{"id": int64(2), "post_id": int64(2), "user_id": int64(2), "body": "hi", "approved": true},
	)
	store.Insert("likes",
		repositories.Row{"id": int64(1), "likeable_type": "Post", "likeable_id": int64(1)},
		repositories.Row{"id": int64(2), "likeable_type": "Comment", "likeable_id": int64(1)},
		repositories.Row{"id": int64(3), "likeable_type": "Post", "likeable_id": int64(2)},
		repositories.Row{"id": int64(4), "likeable_type": "Comment", "likeable_id": int64(2)},
		repositories.Row{"id": int64(5), "likeable_type": "Video", "likeable_id": int64(9)},
		repositories.Row{"id": int64(6), "likeable_type": nil, "likeable_id": nil},
		repositories.Row{"id": int64(7), "likeable_type": "Post", "likeable_id": int64(1)},
	)
}

type fixture struct {
	registry *registry.Registry
	store    *memory.RowStore
	loader   *Loader
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := registry.New()
	for _, s := range testSchemas() {
		if err := reg.Register(s); err != nil {
			t.Fatalf("failed to register %s: %v", s.Name, err)
		}
	}
	store := memory.NewRowStore()
	seedStore(store)
	return &fixture{
		registry: reg,
		store:    store,
		loader:   NewLoader(reg, store, opts...),
	}
}

// roots reads every row of entity and resets the fetch counter
func (f *fixture) roots(t *testing.T, entity string) []*entities.Record {
	t.Helper()
	schema, ok := f.registry.Lookup(entity)
	if !ok {
		t.Fatalf("schema %s not registered", entity)
	}
	rows, err := f.store.FetchAll(context.Background(), schema.Table, schema.PrimaryKey)
	if err != nil {
		t.Fatalf("failed to fetch %s: %v", schema.Table, err)
	}
	records := make([]*entities.Record, len(rows))
	for i, row := range rows {
		records[i] = entities.NewRecord(schema, row)
	}
	f.store.ResetFetches()
	return records
}

func byKey(t *testing.T, records []*entities.Record, key int64) *entities.Record {
	t.Helper()
	for _, r := range records {
		if repositories.NormalizeKey(r.Key()) == repositories.NormalizeKey(key) {
			return r
		}
	}
	t.Fatalf("no record with key %d", key)
	return nil
}

func mustOne(t *testing.T, r *entities.Record, name string) *entities.Record {
	t.Helper()
	rel, ok := r.Relation(name)
	if !ok {
		t.Fatalf("%s: relation %s not loaded", r, name)
	}
	one, ok := rel.Record()
	if !ok {
		t.Fatalf("%s: relation %s is empty", r, name)
	}
	return one
}

type recordingObserver struct {
	mu         sync.Mutex
	fetches    []string
	skips      map[string]int
	unresolved map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{skips: map[string]int{}, unresolved: map[string]int{}}
}

func (o *recordingObserver) ObserveFetch(table string, rows int, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches = append(o.fetches, table)
}

func (o *recordingObserver) ObserveSkip(entity, relation string, records int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skips[entity+"."+relation] += records
}

func (o *recordingObserver) ObserveUnresolved(relation, discriminator string, records int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unresolved[discriminator] += records
}
