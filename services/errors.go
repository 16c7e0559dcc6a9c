package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeGuardrail  ErrorType = "guardrail_blocked"
	ErrorTypeProvider   ErrorType = "provider"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeLogging    ErrorType = "logging"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyInput   = NewDomainError(ErrorTypeValidation, "input cannot be empty", nil)

	// Admission errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	// Guardrail errors
	ErrGuardrailBlocked = NewDomainError(ErrorTypeGuardrail, "blocked by guardrail", nil)

	// Provider errors
	ErrProviderInvocation  = NewDomainError(ErrorTypeProvider, "provider invocation failed", nil)
	ErrProviderUnavailable = NewDomainError(ErrorTypeProvider, "provider unavailable", nil)
	ErrUnknownProvider     = NewDomainError(ErrorTypeProvider, "unknown provider", nil)

	// Timeout errors
	ErrRequestTimeout = NewDomainError(ErrorTypeTimeout, "request timed out", nil)

	// Logging errors
	ErrLoggingFailed = NewDomainError(ErrorTypeLogging, "failed to persist analytics record", nil)

	// Internal errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// NewRateLimitError creates a rate-limit error with details
func NewRateLimitError(message string, details map[string]interface{}) *DomainError {
	return &DomainError{Type: ErrorTypeRateLimit, Message: message, Details: details}
}

// NewGuardrailError creates a guardrail-blocked error with details
func NewGuardrailError(message string, details map[string]interface{}) *DomainError {
	return &DomainError{Type: ErrorTypeGuardrail, Message: message, Details: details}
}

// NewProviderError creates a provider invocation error with details
func NewProviderError(message string, err error, details map[string]interface{}) *DomainError {
	return &DomainError{Type: ErrorTypeProvider, Message: message, Err: err, Details: details}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string, err error) *DomainError {
	return &DomainError{Type: ErrorTypeTimeout, Message: message, Err: err}
}

// NewInternalError creates an internal error with details
func NewInternalError(message string, err error) *DomainError {
	return &DomainError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Error type checking helper functions

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return errorTypeOf(err) == ErrorTypeRateLimit
}

// IsGuardrailError checks if an error is a guardrail-blocked error
func IsGuardrailError(err error) bool {
	return errorTypeOf(err) == ErrorTypeGuardrail
}

// IsProviderError checks if an error is a provider invocation error
func IsProviderError(err error) bool {
	return errorTypeOf(err) == ErrorTypeProvider
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	return errorTypeOf(err) == ErrorTypeTimeout
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errorTypeOf(err) == ErrorTypeValidation
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	return errorTypeOf(err)
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

func errorTypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}
