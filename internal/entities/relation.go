package entities

import "fmt"

// RelationKind identifies how a relationship is resolved
type RelationKind string

const (
	// KindToOne attaches a single record whose ForeignKey matches the owner's LocalKey
	KindToOne RelationKind = "to_one"

	// KindToMany attaches every record whose ForeignKey matches the owner's LocalKey
	KindToMany RelationKind = "to_many"

	// KindMorphOne is the owner side of a polymorphic one-to-one
	// Example: Post has one Image through (imageable_type, imageable_id)
	KindMorphOne RelationKind = "morph_one"

	// KindMorphMany is the owner side of a polymorphic one-to-many
	// Example: Post has many Like through (likeable_type, likeable_id)
	KindMorphMany RelationKind = "morph_many"

	// KindMorphTo is the polymorphic reference itself: the target schema is
	// chosen per row by the value stored in TypeColumn
	KindMorphTo RelationKind = "morph_to"
)

// ParseRelationKind converts a DSL keyword into a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	switch k := RelationKind(s); k {
	case KindToOne, KindToMany, KindMorphOne, KindMorphMany, KindMorphTo:
		return k, nil
	}
	return "", fmt.Errorf("unknown relation kind: %s", s)
}

// IsMorph reports whether the kind carries a discriminator column
func (k RelationKind) IsMorph() bool {
	return k == KindMorphOne || k == KindMorphMany || k == KindMorphTo
}

// IsMany reports whether the kind attaches an ordered collection
func (k RelationKind) IsMany() bool {
	return k == KindToMany || k == KindMorphMany
}

// Relationship represents a relationship declared by an entity schema
// Example: "relation owner to_one User(user_id -> id)"
type Relationship struct {
	Name       string       // Relationship name (e.g., "owner", "likes", "likeable")
	Kind       RelationKind // Resolution strategy
	Target     string       // Target discriminator; empty for morph_to
	LocalKey   string       // Column on the owner whose value is looked up
	ForeignKey string       // Column on the target matched against LocalKey
	TypeColumn string       // Discriminator column (morph kinds only)
	MorphValue string       // Discriminator written by the owner side (morph_one/morph_many)
	Where      string       // Optional CEL row filter applied to fetched rows
}

// Validate checks if the relationship is internally consistent
func (r *Relationship) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relationship name is required")
	}
	if _, err := ParseRelationKind(string(r.Kind)); err != nil {
		return fmt.Errorf("relationship %s: %w", r.Name, err)
	}
	if r.LocalKey == "" {
		return fmt.Errorf("relationship %s: local key is required", r.Name)
	}
	if r.Kind == KindMorphTo {
		if r.Target != "" {
			return fmt.Errorf("relationship %s: morph_to must not declare a target", r.Name)
		}
	} else {
		if r.Target == "" {
			return fmt.Errorf("relationship %s: target is required", r.Name)
		}
		if r.ForeignKey == "" {
			return fmt.Errorf("relationship %s: foreign key is required", r.Name)
		}
	}
	if r.Kind.IsMorph() && r.TypeColumn == "" {
		return fmt.Errorf("relationship %s: type column is required for %s", r.Name, r.Kind)
	}
	return nil
}

// String returns a DSL-like representation of the relationship
func (r *Relationship) String() string {
	switch r.Kind {
	case KindMorphTo:
		return fmt.Sprintf("%s morph_to(%s, %s)", r.Name, r.TypeColumn, r.LocalKey)
	case KindMorphOne, KindMorphMany:
		return fmt.Sprintf("%s %s %s(%s, %s)", r.Name, r.Kind, r.Target, r.TypeColumn, r.ForeignKey)
	default:
		return fmt.Sprintf("%s %s %s(%s -> %s)", r.Name, r.Kind, r.Target, r.LocalKey, r.ForeignKey)
	}
}
