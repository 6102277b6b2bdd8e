package analytics

import "fmt"

// ValidationError reports malformed input: a bad shape, not a lack of
// data. Insufficient data is never an error in this package; every
// metric has a defined zero value for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
