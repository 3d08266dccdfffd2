package entities

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is returned when an entity schema cannot be registered
var ErrInvalidSchema = errors.New("invalid entity schema")

// EntitySchema describes one table-backed entity type.
// Name doubles as the discriminator stored in morph type columns.
type EntitySchema struct {
	Name          string          // Discriminator (e.g., "Post", "Comment")
	Table         string          // Table name (e.g., "posts")
	PrimaryKey    string          // Primary key column (e.g., "id")
	Relationships []*Relationship // Declared relationships
	With          []string        // Default eager-load paths
}

// GetRelationship returns the relationship declared under name.
// The bool is false when the schema does not declare it.
func (s *EntitySchema) GetRelationship(name string) (*Relationship, bool) {
	for _, r := range s.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Validate checks if the schema is well-formed
func (s *EntitySchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchema)
	}
	if s.Table == "" {
		return fmt.Errorf("%w: %s: table is required", ErrInvalidSchema, s.Name)
	}
	if s.PrimaryKey == "" {
		return fmt.Errorf("%w: %s: primary key is required", ErrInvalidSchema, s.Name)
	}

	seen := make(map[string]bool, len(s.Relationships))
	for _, r := range s.Relationships {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchema, s.Name, err)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: %s: duplicate relationship %s", ErrInvalidSchema, s.Name, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
