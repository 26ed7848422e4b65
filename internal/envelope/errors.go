package envelope

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed event at emit time: an unknown
// event type, a missing required payload field, or a value failing its
// pattern or enum constraint.
//
// Validation failures are a caller bug. They are fatal to that single
// emit and never corrupt the queue or history.
type ValidationError struct {
	// Field names the offending payload field. Empty for envelope-level
	// failures (unknown type, empty aggregate id).
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
