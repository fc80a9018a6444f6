package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification / duplicate
	ErrCatResource   ErrorCategory = "resource"   // Resource pool exhausted
	ErrCatExecution  ErrorCategory = "execution"  // Injection or spawn failure
	ErrCatState      ErrorCategory = "state"      // Registry state problem
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

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeRecordNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNoPortAvailable signals that the candidate port range is exhausted.
// The caller may retry later; no retry happens inside the manager.
func ErrNoPortAvailable(start, end int) *DomainError {
	return &DomainError{
		Category:  ErrCatResource,
		Code:      CodeNoPortAvailable,
		Message:   fmt.Sprintf("all ports %d-%d are currently in use", start, end),
		Retryable: true,
		Details: map[string]interface{}{
			"range_start": start,
			"range_end":   end,
		},
	}
}

// ErrInjection creates an error for a failed template render.
func ErrInjection(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeInjectionFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrLaunch creates an error for a failed process spawn.
func ErrLaunch(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeLaunchFailed,
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a registry state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
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

// Predefined error codes
const (
	CodeNoPortAvailable = "NO_PORT_AVAILABLE"
	CodeInjectionFailed = "INJECTION_FAILED"
	CodeLaunchFailed    = "LAUNCH_FAILED"
	CodeRunnerActive    = "RUNNER_ACTIVE"
	CodeRecordNotFound  = "RECORD_NOT_FOUND"
	CodeInvalidRecord   = "INVALID_RECORD"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeStoreConflict   = "STORE_CONFLICT"
	CodeStoreFailure    = "STORE_FAILURE"
)
