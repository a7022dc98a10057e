// Package errors provides standardized error codes for consistent error handling.
package errors

import "net/http"

// ErrorCode represents a unique error code for specific error scenarios
type ErrorCode string

const (
	// Resolution errors
	CodeInvalidURISet ErrorCode = "INVALID_URI_SET"
	CodeMalformedURI  ErrorCode = "MALFORMED_URI"

	// Store errors
	CodeTripleStoreError          ErrorCode = "TRIPLE_STORE_ERROR"
	CodeDocumentTransactionFailed ErrorCode = "DOCUMENT_TRANSACTION_FAILED"
	CodeRollbackFailed            ErrorCode = "ROLLBACK_FAILED"

	// Ontology errors
	CodeCachePopulationFailed ErrorCode = "CACHE_POPULATION_FAILED"
	CodeClassNotFound         ErrorCode = "CLASS_NOT_FOUND"
	CodeEventPublishFailed    ErrorCode = "EVENT_PUBLISH_FAILED"

	// Resource errors
	CodeResourceExists   ErrorCode = "RESOURCE_EXISTS"
	CodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// Generic errors
	CodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeTimeout            ErrorCode = "TIMEOUT"
)

// HTTPStatusCode returns the appropriate HTTP status code for an error code
func (c ErrorCode) HTTPStatusCode() int {
	switch c {
	// 400 Bad Request
	case CodeInvalidURISet, CodeMalformedURI, CodeValidationFailed, CodeInvalidInput:
		return http.StatusBadRequest

	// 404 Not Found
	case CodeClassNotFound, CodeResourceNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case CodeResourceExists:
		return http.StatusConflict

	// 503 Service Unavailable
	case CodeServiceUnavailable, CodeTimeout:
		return http.StatusServiceUnavailable

	// 502 Bad Gateway: a backing store answered badly or not at all
	case CodeTripleStoreError, CodeDocumentTransactionFailed, CodeCachePopulationFailed, CodeEventPublishFailed:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// String returns the string representation of the error code
func (c ErrorCode) String() string {
	return string(c)
}

// Severity returns the severity level for the error code
func (c ErrorCode) Severity() ErrorSeverity {
	switch c {
	case CodeRollbackFailed, CodeInternalError:
		return SeverityCritical
	case CodeTripleStoreError, CodeDocumentTransactionFailed, CodeServiceUnavailable:
		return SeverityHigh
	case CodeCachePopulationFailed, CodeEventPublishFailed, CodeTimeout:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
