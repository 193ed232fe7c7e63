package contentstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no entry exists at the requested path.
var ErrNotFound = errors.New("entry not found")

// ConflictError is returned when the store rejects a write or delete because
// the supplied revision token is stale, or when an idempotent create changes
// nothing. Callers ensuring directory structure treat it as success.
type ConflictError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s (status %d)", e.Path, e.Message, e.StatusCode)
}

// IsConflict reports whether err is a store conflict (HTTP 409/422).
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
