package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the federation engine.
type ErrorCode string

// Engine error codes
const (
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrInternalError        ErrorCode = "INTERNAL_ERROR"
	ErrExecutorRejected     ErrorCode = "EXECUTOR_REJECTED"
	ErrTimeout              ErrorCode = "TIMEOUT"
)

// Source error codes
const (
	ErrSourceQueryFailed ErrorCode = "SOURCE_QUERY_FAILED"
	ErrSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrSourceNilResponse ErrorCode = "SOURCE_NIL_RESPONSE"
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
)

// Plugin error codes
const (
	ErrPluginFailed ErrorCode = "PLUGIN_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Source    string    `json:"source,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSource sets the source id the error originated from.
func (e *Error) WithSource(sourceID string) *Error {
	e.Source = sourceID
	return e
}

// NewTimeoutError is the cause recorded for a source that did not answer
// before the federation deadline.
func NewTimeoutError(sourceID string) *Error {
	return NewError(ErrTimeout, "query timed out").WithSource(sourceID).WithRetryable(true)
}

// NewSourceUnavailableError is recorded for a requested source id that has no
// matching source.
func NewSourceUnavailableError(sourceID string) *Error {
	return NewError(ErrSourceUnavailable, "source is unavailable").WithSource(sourceID)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
