package entities

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// Record is one loaded row tagged with its schema.
// Column data is immutable; relations live in a separate set-once side table.
type Record struct {
	schema  *EntitySchema
	columns map[string]interface{}

	mu        sync.RWMutex
	relations map[string]LoadedRelation
}

// NewRecord creates a record from a raw row. The row is copied.
func NewRecord(schema *EntitySchema, row map[string]interface{}) *Record {
	columns := make(map[string]interface{}, len(row))
	for k, v := range row {
		columns[k] = v
	}
	return &Record{
		schema:    schema,
		columns:   columns,
		relations: make(map[string]LoadedRelation),
	}
}

// Schema returns the schema the record was constructed with
func (r *Record) Schema() *EntitySchema {
	return r.schema
}

// Get returns a column value
func (r *Record) Get(column string) (interface{}, bool) {
	v, ok := r.columns[column]
	return v, ok
}

// Key returns the primary key value
func (r *Record) Key() interface{} {
	return r.columns[r.schema.PrimaryKey]
}

// Columns returns a copy of the column data
func (r *Record) Columns() map[string]interface{} {
	out := make(map[string]interface{}, len(r.columns))
	for k, v := range r.columns {
		out[k] = v
	}
	return out
}

// Attach stores the resolved relation under name and marks it loaded.
// A relation that is already loaded is never replaced; Attach then returns false.
func (r *Record) Attach(name string, rel LoadedRelation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.relations[name]; ok {
		return false
	}
	r.relations[name] = rel
	return true
}

// IsLoaded reports whether the relation has been attached
func (r *Record) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.relations[name]
	return ok
}

// Relation returns the attached relation
func (r *Record) Relation(name string) (LoadedRelation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relations[name]
	return rel, ok
}

// LoadedNames returns the names of attached relations, sorted
func (r *Record) LoadedNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.relations))
	for name := range r.relations {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// String returns a short representation of the record
// Format: Name(key)
func (r *Record) String() string {
	return fmt.Sprintf("%s(%v)", r.schema.Name, r.Key())
}

// MarshalJSON encodes columns with loaded relations nested under their names.
// Empty to-one relations encode as null, collections as arrays.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := r.Columns()
	for _, name := range r.LoadedNames() {
		rel, _ := r.Relation(name)
		switch {
		case rel.IsCollection():
			out[name] = rel.Records()
		default:
			if one, ok := rel.Record(); ok {
				out[name] = one
			} else {
				out[name] = nil
			}
		}
	}
	return json.Marshal(out)
}
