package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures across the engine. The gateway maps each
// code onto an HTTP status; retry decisions ride on the Retryable flag
// rather than on string matching.
type ErrorCode string

// Request / auth error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
)

// Generation backend error codes
const (
	// ErrBackendRejected 后端返回非零业务码（应用级错误，永不重试）。
	ErrBackendRejected    ErrorCode = "BACKEND_REJECTED"
	ErrBackendUnreachable ErrorCode = "BACKEND_UNREACHABLE"
	ErrTaskFailed         ErrorCode = "TASK_FAILED"
	ErrTaskNotFound       ErrorCode = "TASK_NOT_FOUND"
	ErrUploadFailed       ErrorCode = "UPLOAD_FAILED"
	ErrPollExhausted      ErrorCode = "POLL_EXHAUSTED"
)

// Transport / infrastructure error codes
const (
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrProxyTarget        ErrorCode = "PROXY_TARGET"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error is the structured failure carried across package boundaries.
// The With* builders mutate the receiver and return it so call sites can
// chain; build a fresh value per failure instead of sharing instances.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error renders "[CODE] message", appending the cause when present.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap exposes the cause to errors.Is / errors.As traversal.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error carrying code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus pins the HTTP status to respond with, overriding the
// gateway's default mapping for the code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable flags whether another attempt may succeed.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider tags the upstream vendor the failure came from.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError digs a *Error out of err's chain; nil when there is none.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsRetryable reports whether err carries a positive retryable flag.
// Plain errors default to false: unknown failures are not retried.
func IsRetryable(err error) bool {
	e := AsError(err)
	return e != nil && e.Retryable
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode returns err's code, or "" for plain errors.
func GetErrorCode(err error) ErrorCode {
	e := AsError(err)
	if e == nil {
		return ""
	}
	return e.Code
}
