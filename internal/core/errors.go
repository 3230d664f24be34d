// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Fetch errors
	ErrTransport = &Error{Code: "TRANSPORT", Message: "backend unreachable"}
	ErrBadStatus = &Error{Code: "BAD_STATUS", Message: "backend returned non-success status"}
	ErrMalformed = &Error{Code: "MALFORMED_PAYLOAD", Message: "malformed payload"}
	ErrNoData    = &Error{Code: "NO_DATA", Message: "no data available"}

	// Cycle errors
	ErrCycleFailed = &Error{Code: "CYCLE_FAILED", Message: "refresh cycle failed"}

	// Control errors
	ErrControlFailed = &Error{Code: "CONTROL_FAILED", Message: "control request failed"}
	ErrInvalidAction = &Error{Code: "INVALID_ACTION", Message: "invalid control action"}
	ErrInvalidSymbol = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol"}

	// Chart errors
	ErrMarkersUnsorted = &Error{Code: "MARKERS_UNSORTED", Message: "markers must be sorted ascending by time"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
