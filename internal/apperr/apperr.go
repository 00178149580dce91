// Package apperr provides the typed error taxonomy shared by the
// orchestration core. Handlers map these codes onto HTTP statuses; the
// lifecycle manager and scheduler return them instead of bare errors so
// callers can branch on the failure class.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes used across the orchestration core.
const (
	CodeNotFound        = "NOT_FOUND"        // Referenced run/scenario missing or tenant mismatch
	CodeInvalidState    = "INVALID_STATE"    // Operation not legal for the current status
	CodeInvalidArgument = "INVALID_ARGUMENT" // Malformed or empty input
)

// Error is the structured error type for orchestration operations.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair to the error context.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// NotFound builds a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an INVALID_STATE error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds an INVALID_ARGUMENT error.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsInvalidState reports whether err carries the INVALID_STATE code.
func IsInvalidState(err error) bool { return hasCode(err, CodeInvalidState) }

// IsInvalidArgument reports whether err carries the INVALID_ARGUMENT code.
func IsInvalidArgument(err error) bool { return hasCode(err, CodeInvalidArgument) }

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
