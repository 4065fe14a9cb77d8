package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input. Wrapped errors carry the detail.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an addressed list or item does not exist.
	ErrNotFound = errors.New("not found")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ValidationMessage returns the detail of a validation error without the
// sentinel prefix.
func ValidationMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}
