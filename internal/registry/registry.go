// Package registry maps discriminator strings to entity schemas.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/asakaida/polyload/internal/entities"
)

// Registry stores entity schemas by discriminator name.
// It is normally populated once at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*entities.EntitySchema
}

// New creates an empty registry
func New() *Registry {
	return &Registry{schemas: make(map[string]*entities.EntitySchema)}
}

// Register adds or replaces the schema stored under schema.Name
func (r *Registry) Register(schema *entities.EntitySchema) error {
	if schema == nil {
		return fmt.Errorf("%w: nil schema", entities.ErrInvalidSchema)
	}
	if err := schema.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.schemas[schema.Name] = schema
	r.mu.Unlock()
	return nil
}

// Lookup returns the schema registered under name.
// A miss is reported through the bool, never as an error.
func (r *Registry) Lookup(name string) (*entities.EntitySchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns every registered discriminator, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered schemas
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}
