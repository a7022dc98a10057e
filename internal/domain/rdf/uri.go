// Package rdf holds the identifier model shared by the consistency core:
// resource URIs, prefix registries, classes, graphs and candidate sets.
package rdf

import (
	"net/url"
	"strings"

	"github.com/cayleygraph/quad"

	apperrors "opensilex-backend/internal/errors"
)

// URI is an absolute resource identifier in its normalized (expanded) form.
// The zero value is the empty URI and is never produced by Normalize.
type URI struct {
	value string
}

// String returns the expanded form.
func (u URI) String() string {
	return u.value
}

// IRI returns the identifier as a quad value.
func (u URI) IRI() quad.IRI {
	return quad.IRI(u.value)
}

// Equals checks if two URIs denote the same resource
func (u URI) Equals(other URI) bool {
	return u.value == other.value
}

// IsEmpty checks if the URI is empty
func (u URI) IsEmpty() bool {
	return u.value == ""
}

// Graph names a partition of the triple store.
type Graph = URI

// FromIRI converts a quad IRI returned by a store. Values coming from a store
// are trusted to be absolute.
func FromIRI(iri quad.IRI) URI {
	return URI{value: string(iri)}
}

const illegalIRIChars = "<>\"{}|\\^`"

// validateAbsolute rejects values that cannot be an absolute IRI reference.
func validateAbsolute(raw, expanded string) error {
	if expanded == "" {
		return &apperrors.MalformedURIError{Value: raw, Reason: "empty value"}
	}
	if strings.ContainsAny(expanded, " \t\r\n") {
		return &apperrors.MalformedURIError{Value: raw, Reason: "contains whitespace"}
	}
	if strings.ContainsAny(expanded, illegalIRIChars) {
		return &apperrors.MalformedURIError{Value: raw, Reason: "contains characters not allowed in an IRI"}
	}
	parsed, err := url.Parse(expanded)
	if err != nil {
		return &apperrors.MalformedURIError{Value: raw, Reason: err.Error()}
	}
	if parsed.Scheme == "" {
		return &apperrors.MalformedURIError{Value: raw, Reason: "not absolute and no registered prefix matches"}
	}
	if parsed.Opaque == "" && parsed.Host == "" && parsed.Path == "" {
		return &apperrors.MalformedURIError{Value: raw, Reason: "missing hierarchical part"}
	}
	return nil
}
