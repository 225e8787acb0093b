// Package errors defines custom error types and error handling utilities for the Aegis service.
// Every error carries a Kind from the service taxonomy (configuration, transient, terminal,
// internal, validation) which decides how callers degrade.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and fallback decisions.
type Kind string

const (
	// KindConfiguration is an invalid or missing setting; always resolved to a safe default.
	KindConfiguration Kind = "configuration"
	// KindTransient is a retryable external failure (HTTP 429 / 5xx).
	KindTransient Kind = "transient"
	// KindTerminal is a non-retryable external failure (4xx, exhausted retries, timeout).
	KindTerminal Kind = "terminal"
	// KindInternal is an unexpected logic failure inside the pipeline.
	KindInternal Kind = "internal"
	// KindValidation is a malformed request from the calling host.
	KindValidation Kind = "validation"
	// KindNotFound is a missing resource.
	KindNotFound Kind = "not_found"
)

// Error codes
const (
	CodeInvalidConfig      = "invalid_config"
	CodeUpstreamTransient  = "upstream_transient"
	CodeUpstreamRejected   = "upstream_rejected"
	CodeUpstreamExhausted  = "upstream_retries_exhausted"
	CodeUpstreamTimeout    = "upstream_timeout"
	CodeMalformedResponse  = "malformed_response"
	CodeInternal           = "internal_error"
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeServiceUnavailable = "service_unavailable"
)

// ================================================================================
// AppError
// ================================================================================

// AppError represents a structured application error
type AppError struct {
	kind       Kind
	code       string
	httpStatus int
	message    string
	cause      error
	metadata   map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Kind returns the taxonomy kind of the error
func (e *AppError) Kind() Kind { return e.kind }

// Code returns the machine-readable error code
func (e *AppError) Code() string { return e.code }

// HTTPStatus returns the HTTP status code associated with the error
func (e *AppError) HTTPStatus() int { return e.httpStatus }

// Message returns the error message without the cause chain
func (e *AppError) Message() string { return e.message }

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error { return e.cause }

// Metadata returns all metadata
func (e *AppError) Metadata() map[string]interface{} { return e.metadata }

// WithCause adds a cause error to the error chain
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Is matches another AppError by kind and code so sentinel comparisons work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.kind == t.kind && e.code == t.code
}

// New creates a new AppError
func New(kind Kind, code string, httpStatus int, message string) *AppError {
	return &AppError{
		kind:       kind,
		code:       code,
		httpStatus: httpStatus,
		message:    message,
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrConfiguration creates a configuration error
func ErrConfiguration(setting, reason string) *AppError {
	return New(KindConfiguration, CodeInvalidConfig, http.StatusInternalServerError,
		fmt.Sprintf("invalid configuration for %s: %s", setting, reason)).
		WithMetadata("setting", setting)
}

// ErrTransient creates a retryable upstream error
func ErrTransient(operation string, status int) *AppError {
	return New(KindTransient, CodeUpstreamTransient, http.StatusServiceUnavailable,
		fmt.Sprintf("%s: transient upstream failure (status %d)", operation, status)).
		WithMetadata("operation", operation).
		WithMetadata("status", status)
}

// ErrRejected creates a non-retryable upstream error for a 4xx response
func ErrRejected(operation string, status int) *AppError {
	return New(KindTerminal, CodeUpstreamRejected, http.StatusBadGateway,
		fmt.Sprintf("%s: upstream rejected request (status %d)", operation, status)).
		WithMetadata("operation", operation).
		WithMetadata("status", status)
}

// ErrRetriesExhausted wraps the last failure once the retry budget is spent
func ErrRetriesExhausted(operation string, attempts int, last error) *AppError {
	return New(KindTerminal, CodeUpstreamExhausted, http.StatusBadGateway,
		fmt.Sprintf("%s: giving up after %d attempts", operation, attempts)).
		WithMetadata("operation", operation).
		WithMetadata("attempts", attempts).
		WithCause(last)
}

// ErrTimeout creates an upstream timeout error
func ErrTimeout(operation string, cause error) *AppError {
	return New(KindTerminal, CodeUpstreamTimeout, http.StatusGatewayTimeout,
		fmt.Sprintf("%s: deadline exceeded", operation)).
		WithMetadata("operation", operation).
		WithCause(cause)
}

// ErrMalformedResponse creates an error for an undecodable upstream response
func ErrMalformedResponse(operation string, cause error) *AppError {
	return New(KindTerminal, CodeMalformedResponse, http.StatusBadGateway,
		fmt.Sprintf("%s: malformed response", operation)).
		WithMetadata("operation", operation).
		WithCause(cause)
}

// ErrInternal creates an internal logic error
func ErrInternal(message string, cause error) *AppError {
	return New(KindInternal, CodeInternal, http.StatusInternalServerError, message).WithCause(cause)
}

// ErrValidation creates a request validation error
func ErrValidation(message string, details map[string]interface{}) *AppError {
	e := New(KindValidation, CodeInvalidRequest, http.StatusBadRequest, message)
	for k, v := range details {
		e.WithMetadata(k, v)
	}
	return e
}

// ErrNotFound creates a not found error
func ErrNotFound(resource, id string) *AppError {
	return New(KindNotFound, CodeNotFound, http.StatusNotFound,
		fmt.Sprintf("%s not found: %s", resource, id)).
		WithMetadata("resource", resource)
}

// ErrUnauthorized creates an unauthorized error for the calling host
func ErrUnauthorized(reason string) *AppError {
	return New(KindValidation, CodeUnauthorized, http.StatusUnauthorized, reason)
}

// ================================================================================
// Error Classification Utilities
// ================================================================================

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As from the standard library.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// AsAppError attempts to find an AppError in the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.kind
	}
	return KindInternal
}

// IsRetryable reports whether the error is a transient upstream failure.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// IsNotFound reports whether the error is a not found error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsRetryableStatus classifies an HTTP status code.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and HTTP status
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := AsAppError(err); ok {
		return appErr.httpStatus, &ErrorResponse{
			Error:            appErr.code,
			ErrorDescription: appErr.message,
			Metadata:         appErr.metadata,
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            CodeInternal,
		ErrorDescription: "An unexpected error occurred",
	}
}
