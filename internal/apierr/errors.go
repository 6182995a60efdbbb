// Package apierr defines the errors linkage operations surface to the
// protocol layer. Every failure a caller is expected to map to a response
// status is an *Error carrying one of three codes; anything else is an
// internal failure.
package apierr

import (
	"errors"
	"fmt"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/validation"
)

// Code categorizes protocol-facing errors.
type Code string

const (
	// CodeNotFound indicates a referenced or resolved key does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates a storage constraint was violated
	// (duplicate key, foreign-key restriction).
	CodeConflict Code = "CONFLICT"

	// CodeValidationFailed indicates a domain validation rule failed.
	CodeValidationFailed Code = "VALIDATION_FAILED"
)

// Error is a protocol-facing failure.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Type is the resource type involved, when known.
	Type string

	// Key is the primary key that failed to resolve (NotFound only).
	Key ir.IRValue

	// Entries holds translated field errors (ValidationFailed only).
	Entries []validation.Entry

	// Err is the underlying storage error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying storage error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict
}

// IsValidationFailed reports whether err is a ValidationFailed error.
func IsValidationFailed(err error) bool {
	return CodeOf(err) == CodeValidationFailed
}

// NotFound creates an error for a key that does not resolve to a row of
// typeName.
func NotFound(typeName string, key ir.IRValue) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no row with key %s", ir.String(key)),
		Type:    typeName,
		Key:     key,
	}
}

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(typeName, format string, args ...any) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
		Type:    typeName,
	}
}

// Conflict wraps a storage constraint violation.
func Conflict(typeName string, err error) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: err.Error(),
		Type:    typeName,
		Err:     err,
	}
}

// ValidationFailed creates an error carrying translated field errors.
func ValidationFailed(typeName string, entries []validation.Entry) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("%d validation error(s)", len(entries)),
		Type:    typeName,
		Entries: entries,
	}
}
