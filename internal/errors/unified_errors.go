// Package errors defines the error taxonomy of the consistency core and a
// unified, serializable error used at the API boundary.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeConnection  ErrorType = "CONNECTION"
	ErrorTypeExternal    ErrorType = "EXTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// ErrorSeverity defines the severity level for logging and monitoring.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// UnifiedError is the error shape exposed by the HTTP surface.
type UnifiedError struct {
	Type      ErrorType     `json:"type"`
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Resource  string        `json:"resource,omitempty"`
	URIs      []string      `json:"uris,omitempty"`
	Severity  ErrorSeverity `json:"severity"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`
}

// Error implements the error interface.
func (e *UnifiedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with the underlying cause.
func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for constructing UnifiedError instances.
type ErrorBuilder struct {
	error *UnifiedError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code ErrorCode, message string) *ErrorBuilder {
	return &ErrorBuilder{
		error: &UnifiedError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Severity: code.Severity(),
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.error.Operation = operation
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.error.Resource = resource
	return b
}

// WithURIs attaches the offending URIs.
func (b *ErrorBuilder) WithURIs(uris []string) *ErrorBuilder {
	b.error.URIs = uris
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.error.Retryable = retryable
	return b
}

// WithCause adds the underlying cause error.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// Build returns the constructed UnifiedError.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.error
}

// Validation creates a validation error.
func Validation(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeValidation, code, message)
}

// NotFound creates a not found error.
func NotFound(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeNotFound, code, message)
}

// Conflict creates an error for a write clashing with existing state.
func Conflict(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeConflict, code, message)
}

// Internal creates an internal error.
func Internal(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeInternal, code, message)
}

// External creates an external service error.
func External(code ErrorCode, message string) *ErrorBuilder {
	return NewError(ErrorTypeExternal, code, message)
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var unifiedErr *UnifiedError
	if errors.As(err, &unifiedErr) {
		return unifiedErr.Type == errType
	}
	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// Classify maps any error produced by the core onto a UnifiedError. The
// original error stays reachable through Cause.
func Classify(err error) *UnifiedError {
	if err == nil {
		return nil
	}

	var unified *UnifiedError
	if errors.As(err, &unified) {
		return unified
	}

	var (
		invalid  *InvalidURISetError
		malform  *MalformedURIError
		rollback *RollbackError
		store    *StoreError
		docTx    *DocumentStoreTransactionError
		populate *CachePopulationError
	)

	switch {
	case errors.As(err, &invalid):
		return Validation(CodeInvalidURISet, invalid.Label).
			WithURIs(invalid.URIs).
			WithCause(err).
			Build()
	case errors.As(err, &malform):
		return Validation(CodeMalformedURI, "malformed URI").
			WithDetails(malform.Error()).
			WithResource(malform.Value).
			WithCause(err).
			Build()
	case errors.As(err, &rollback):
		return Internal(CodeRollbackFailed, "transaction rollback failed").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	case errors.As(err, &store):
		return External(CodeTripleStoreError, "triple store request failed").
			WithOperation(store.Op).
			WithDetails(store.Cause.Error()).
			WithCause(err).
			Build()
	case errors.As(err, &docTx):
		return External(CodeDocumentTransactionFailed, "document store transaction failed").
			WithDetails(docTx.Cause.Error()).
			WithCause(err).
			Build()
	case errors.As(err, &populate):
		return External(CodeCachePopulationFailed, "ontology lookup failed").
			WithResource(populate.Key).
			WithDetails(populate.Cause.Error()).
			WithCause(err).
			Build()
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorTypeTimeout, CodeTimeout, "operation timed out").
			WithRetryable(true).
			WithCause(err).
			Build()
	case errors.Is(err, context.Canceled):
		return NewError(ErrorTypeUnavailable, CodeServiceUnavailable, "operation cancelled").
			WithCause(err).
			Build()
	default:
		return Internal(CodeInternalError, "internal error").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
}

// HTTPStatus returns the HTTP status code matching err.
func HTTPStatus(err error) int {
	return Classify(err).Code.HTTPStatusCode()
}
