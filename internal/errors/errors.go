// Package errors provides the unified error type used across the data-access
// layer. Every failure surfaced by the pool, batcher, cache, rate limiter, or
// a repository is an *AppError, so handlers can classify errors with the
// predicates below instead of string matching.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// Business logic errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Infrastructure errors
	ErrorTypeInternal   ErrorType = "INTERNAL"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeConnection ErrorType = "CONNECTION"
	ErrorTypeRateLimit  ErrorType = "RATE_LIMIT"

	// External service errors
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// Well-known error codes used by the resilience layer.
const (
	CodePoolTimeout       = "POOL_ACQUIRE_TIMEOUT"
	CodePoolClosed        = "POOL_CLOSED"
	CodeBatcherClosed     = "BATCHER_CLOSED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeDuplicateEntry    = "DUPLICATE_ENTRY"
)

// AppError is the single error type shared by all layers. It carries a
// category for classification, a stable code for programmatic handling,
// and optional retry metadata for 429/503 style responses.
type AppError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	// Operation and Resource identify what failed, for logging.
	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`

	// Fields holds field-level validation messages keyed by field name.
	Fields map[string]string `json:"fields,omitempty"`

	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Builder provides fluent construction of AppError instances.
type Builder struct {
	err *AppError
}

// NewError starts a builder for the given type, code and message.
func NewError(errType ErrorType, code, message string) *Builder {
	return &Builder{err: &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}}
}

// WithDetails adds free-form context to the error.
func (b *Builder) WithDetails(details string) *Builder {
	b.err.Details = details
	return b
}

// WithOperation records the operation that failed.
func (b *Builder) WithOperation(operation string) *Builder {
	b.err.Operation = operation
	return b
}

// WithResource records the resource being operated on.
func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

// WithField attaches a field-level validation message.
func (b *Builder) WithField(field, message string) *Builder {
	if b.err.Fields == nil {
		b.err.Fields = make(map[string]string)
	}
	b.err.Fields[field] = message
	return b
}

// WithRetryable marks whether the caller may retry the operation.
func (b *Builder) WithRetryable(retryable bool) *Builder {
	b.err.Retryable = retryable
	return b
}

// WithRetryAfter sets the wait hint and marks the error retryable.
func (b *Builder) WithRetryAfter(d time.Duration) *Builder {
	b.err.RetryAfter = d
	b.err.Retryable = true
	return b
}

// WithCause attaches the underlying error.
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// Validation creates a validation error. Validation errors are rejected
// before any query executes and are never retried.
func Validation(code, message string) *Builder {
	return NewError(ErrorTypeValidation, code, message).WithRetryable(false)
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Builder {
	return NewError(ErrorTypeNotFound, code, message).WithRetryable(false)
}

// Conflict creates a conflict error (duplicate submissions and the like).
func Conflict(code, message string) *Builder {
	return NewError(ErrorTypeConflict, code, message).WithRetryable(false)
}

// Timeout creates a timeout error. Pool acquisition timeouts use this type
// with CodePoolTimeout and are surfaced to callers as retryable.
func Timeout(code, message string) *Builder {
	return NewError(ErrorTypeTimeout, code, message).WithRetryable(true)
}

// Connection creates a backend connectivity error.
func Connection(code, message string) *Builder {
	return NewError(ErrorTypeConnection, code, message).WithRetryable(true)
}

// RateLimit creates a rate-limit error carrying the retry hint.
func RateLimit(message string, retryAfter time.Duration) *Builder {
	return NewError(ErrorTypeRateLimit, CodeRateLimitExceeded, message).
		WithRetryAfter(retryAfter)
}

// Internal creates an internal error.
func Internal(code, message string) *Builder {
	return NewError(ErrorTypeInternal, code, message).WithRetryable(false)
}

// IsType checks whether err is an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return IsType(err, ErrorTypeConflict) }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return IsType(err, ErrorTypeTimeout) }

// IsRateLimit reports whether err is a rate-limit error.
func IsRateLimit(err error) bool { return IsType(err, ErrorTypeRateLimit) }

// IsPoolTimeout reports whether err is specifically a pool acquisition timeout.
func IsPoolTimeout(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodePoolTimeout
}

// IsRetryable reports whether the failed operation may be retried.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Wrap wraps err with operation context while preserving its classification.
// Non-AppError values become INTERNAL errors.
func Wrap(err error, operation, message string) *AppError {
	if err == nil {
		return nil
	}
	var existing *AppError
	if errors.As(err, &existing) {
		return &AppError{
			Type:       existing.Type,
			Code:       existing.Code,
			Message:    message,
			Details:    existing.Message,
			Operation:  operation,
			Resource:   existing.Resource,
			Retryable:  existing.Retryable,
			RetryAfter: existing.RetryAfter,
			Cause:      err,
		}
	}
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "WRAP_ERROR",
		Message:   message,
		Details:   err.Error(),
		Operation: operation,
		Cause:     err,
	}
}
