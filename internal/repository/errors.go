package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity was not located or is not visible to the caller.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates input rejected by storage constraints.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("repository: conflict")
	// ErrSlugTaken indicates the (owner, slug) constraint fired. Callers may retry with a new slug.
	ErrSlugTaken = fmt.Errorf("%w: slug already taken", ErrConflict)
)
