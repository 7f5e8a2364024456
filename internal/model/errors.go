package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or blank required input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown exercise, test or result.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a caller acting on someone else's record.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a state transition that already happened.
	ErrConflict = errors.New("conflict")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Required returns a ValidationError for a missing field.
func Required(field string) error {
	return &ValidationError{Field: field}
}
