package transaction

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicate is returned by storage when a record with the same hash already exists.
	ErrDuplicate = errors.New("transaction already exists")

	// ErrInvalidBatch rejects a whole batch before any row is processed.
	ErrInvalidBatch = errors.New("invalid import batch")
)

// ValidationError reports a single row that could not be normalized.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %q %s", e.Field, e.Value, e.Reason)
	}

	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
