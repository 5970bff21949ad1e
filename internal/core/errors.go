package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or configuration
	ErrCatUpstream   ErrorCategory = "upstream"   // LLM endpoint failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Local or upstream throttling
	ErrCatCircuit    ErrorCategory = "circuit"    // Circuit breaker rejected the call
	ErrCatParse      ErrorCategory = "parse"      // Structured extraction failed
	ErrCatExecution  ErrorCategory = "execution"  // Batch/file processing failure
	ErrCatState      ErrorCategory = "state"      // Store corruption/conflict
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatCancelled  ErrorCategory = "cancelled"  // Context cancelled
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error. Fatal at startup, never retried.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrUpstream creates a transient upstream error (429, 5xx). The gateway
// retry policy handles these.
func ErrUpstream(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatUpstream,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrUpstreamFatal creates a non-retryable upstream error (400, 401, 403).
func ErrUpstreamFatal(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatUpstream,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeUpstreamTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      CodeRateLimited,
		Message:   message,
		Retryable: true,
	}
}

// ErrCircuitOpen creates a fast-fail error for an open circuit. Not
// retryable: retrying before the cooldown elapses cannot succeed.
func ErrCircuitOpen(dependency string) *DomainError {
	return &DomainError{
		Category:  ErrCatCircuit,
		Code:      CodeCircuitOpen,
		Message:   fmt.Sprintf("circuit open for %s, failing fast", dependency),
		Retryable: false,
		Details:   map[string]interface{}{"dependency": dependency},
	}
}

// ErrParse creates a parse error. Callers normally fall back to heuristic
// extraction instead of propagating this.
func ErrParse(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatParse,
		Code:      CodeParseFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates a batch or file processing error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a store error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrCancelled creates a cancellation error.
func ErrCancelled(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCancelled,
		Code:      CodeCancelled,
		Message:   message,
		Retryable: false,
	}
}

// ErrInternal creates an unexpected internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      CodeInternal,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// GetCode extracts the error code, or empty for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// Predefined error codes
const (
	CodeUpstreamThrottled   = "UPSTREAM_THROTTLED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamAuth        = "UPSTREAM_AUTH"
	CodeUpstreamBadRequest  = "UPSTREAM_BAD_REQUEST"
	CodeCircuitOpen         = "CIRCUIT_OPEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeParseFailed         = "PARSE_FAILED"
	CodeBatchFailed         = "BATCH_FAILED"
	CodeFileFailed          = "FILE_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeCancelled           = "CANCELLED"
	CodeInternal            = "INTERNAL"

	// Validation error codes
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeNoAgents         = "NO_AGENTS"
	CodeNoFiles          = "NO_FILES"
	CodeEmptyObjective   = "EMPTY_OBJECTIVE"
	CodeInvalidThreshold = "INVALID_THRESHOLD"

	// Store error codes
	CodeStoreCorrupted = "STORE_CORRUPTED"
	CodeStoreMigration = "STORE_MIGRATION"
)
