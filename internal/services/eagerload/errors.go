package eagerload

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPath is returned when an eager-load path is empty or has an empty segment
	ErrMalformedPath = errors.New("malformed eager-load path")

	// ErrRelationshipNotDeclared is returned by direct relation access for a name
	// the record's schema does not declare
	ErrRelationshipNotDeclared = errors.New("relationship not declared")
)

// PathError describes why a path was rejected
type PathError struct {
	Path   string // Path as given by the caller
	Reason string // e.g., "empty path", "empty segment at position 2"
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformedPath, e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return ErrMalformedPath
}
