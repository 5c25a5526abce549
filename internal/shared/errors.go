package shared

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Module sentinels wrap exactly one of them so
// the boundary layer can map a failure to a status without knowing the module.
var (
	// ErrValidation indicates malformed or missing input; nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the resource state forbids the operation.
	ErrConflict = errors.New("state conflict")
)

// Validation wraps msg as a validation error.
func Validation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// NotFound wraps msg as a not-found error.
func NotFound(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// Conflict wraps msg as a state-conflict error.
func Conflict(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConflict)
}
