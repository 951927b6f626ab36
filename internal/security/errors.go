package security

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorizedTable is returned when a table name is not in the allow-list.
	ErrUnauthorizedTable = errors.New("unauthorized table")
	// ErrInvalidFieldName is returned when a column name fails the identifier pattern.
	ErrInvalidFieldName = errors.New("invalid field name")
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimitExceeded is returned by callers that turn a denied Allow into an error.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// UnauthorizedTableError names the rejected table.
type UnauthorizedTableError struct {
	Table string
}

func (e *UnauthorizedTableError) Error() string {
	return fmt.Sprintf("unauthorized table access: %s", e.Table)
}

func (e *UnauthorizedTableError) Unwrap() error { return ErrUnauthorizedTable }

// InvalidFieldNameError names the rejected column.
type InvalidFieldNameError struct {
	Field string
}

func (e *InvalidFieldNameError) Error() string {
	return fmt.Sprintf("invalid field name: %s", e.Field)
}

func (e *InvalidFieldNameError) Unwrap() error { return ErrInvalidFieldName }

// ValidationError carries the failing field and a human-readable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
