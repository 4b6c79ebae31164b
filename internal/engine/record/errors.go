package record

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and access errors are detected before any
// storage mutation is attempted; storage failures surface immediately with
// the backend's message attached.
var (
	// ErrAccessDenied is returned when a table or field is not accessible
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidPredicate is returned when a raw filter contains a mutating keyword
	ErrInvalidPredicate = errors.New("invalid predicate")

	// ErrUnknownField is returned when a payload references an undeclared field
	ErrUnknownField = errors.New("unknown field")

	// ErrValidationFailed is returned when payload validation fails
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotFound is returned when an id does not resolve to any visible row
	ErrNotFound = errors.New("record not found")

	// ErrMutationFailed is returned when the underlying storage mutation was rejected
	ErrMutationFailed = errors.New("mutation failed")

	// ErrReadOnly is returned when a write targets a read-only table
	ErrReadOnly = errors.New("table is read-only")
)

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates per-field validation failures for one payload
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %d errors", len(e.Errors))
}

// Unwrap makes the aggregate match ErrValidationFailed via errors.Is
func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// PartialFailureError is reported when a parent mutation succeeded but a
// dependent child mutation failed. It carries the parent's live id so the
// caller can locate or clean up the orphaned parent.
type PartialFailureError struct {
	Table    string
	ParentID int64
	Err      error
}

// Error implements the error interface
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure on %s: parent %d exists but child mutation failed: %v",
		e.Table, e.ParentID, e.Err)
}

// Unwrap returns the underlying child failure
func (e *PartialFailureError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAccessDenied returns true if the error is ErrAccessDenied
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }

// IsValidationFailed returns true if the error is a validation failure
func IsValidationFailed(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}
