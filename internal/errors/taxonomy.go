package errors

import (
	"errors"
	"fmt"
	"strings"
)

// StoreError reports a triple-store communication or query failure. It is
// fatal to the current call and never retried by the core.
type StoreError struct {
	Op    string
	Cause error
}

// NewStoreError wraps cause as a StoreError for operation op. A cause that is
// already a StoreError is returned unchanged.
func NewStoreError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(cause, &existing) {
		return cause
	}
	return &StoreError{Op: op, Cause: cause}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("triple store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// DocumentStoreTransactionError reports a failed document-store transaction.
type DocumentStoreTransactionError struct {
	Cause error
}

func (e *DocumentStoreTransactionError) Error() string {
	return fmt.Sprintf("document store transaction: %v", e.Cause)
}

func (e *DocumentStoreTransactionError) Unwrap() error { return e.Cause }

// InvalidURISetError reports candidate URIs that did not resolve. URIs keeps
// the order in which the candidates were submitted.
type InvalidURISetError struct {
	Label string
	URIs  []string
}

func (e *InvalidURISetError) Error() string {
	label := e.Label
	if label == "" {
		label = "unknown URIs"
	}
	return fmt.Sprintf("%s: [%s]", label, strings.Join(e.URIs, ", "))
}

// CachePopulationError wraps the error returned by a descriptor source while
// populating key. Unwrap yields the source error unchanged.
type CachePopulationError struct {
	Key   string
	Cause error
}

func (e *CachePopulationError) Error() string {
	return fmt.Sprintf("populate ontology cache entry %q: %v", e.Key, e.Cause)
}

func (e *CachePopulationError) Unwrap() error { return e.Cause }

// RollbackError is raised when rolling back after a failed operation fails
// as well. Both the originating error and the rollback failure are reachable
// through errors.Is / errors.As.
type RollbackError struct {
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed (%v) after: %v", e.RollbackErr, e.Cause)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// MalformedURIError is returned when a raw value cannot be normalized into an
// absolute resource identifier.
type MalformedURIError struct {
	Value  string
	Reason string
}

func (e *MalformedURIError) Error() string {
	return fmt.Sprintf("malformed URI %q: %s", e.Value, e.Reason)
}

// IsStoreError reports whether err carries a StoreError.
func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}

// IsDocumentStoreTransactionError reports whether err carries a DocumentStoreTransactionError.
func IsDocumentStoreTransactionError(err error) bool {
	var target *DocumentStoreTransactionError
	return errors.As(err, &target)
}

// AsInvalidURISet extracts an InvalidURISetError from err.
func AsInvalidURISet(err error) (*InvalidURISetError, bool) {
	var target *InvalidURISetError
	ok := errors.As(err, &target)
	return target, ok
}
