// Package apperr defines the sentinel errors shared across tafl packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownEntity indicates a mutation addressed an entity id the store
	// has never seen. This is a programmer-error-class violation, not an
	// expected runtime condition.
	ErrUnknownEntity = errors.New("unknown entity")
)
