package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any storage call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a task, board or column that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrGateway marks a failure reported by the persistence backend.
	ErrGateway = errors.New("gateway failure")
	// ErrInvariant marks a broken ordering invariant. It indicates a caller bug.
	ErrInvariant = errors.New("ordering invariant violated")
)

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
