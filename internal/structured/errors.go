package structured

import (
	"errors"
	"strings"
)

// ValidationError is returned when a reply does not satisfy the contract
type ValidationError struct {
	Reason string
	Errors []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed: " + e.Reason
	}
	return "validation failed: " + e.Reason + ": " + strings.Join(e.Errors, "; ")
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
