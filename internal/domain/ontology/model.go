// Package ontology describes the shape information served by the ontology
// metadata cache: class hierarchies and properties applicable to a class.
package ontology

import (
	"context"

	"opensilex-backend/internal/domain/rdf"
)

// ClassNode is one class in a subclass tree. Labels are keyed by language tag,
// the empty tag holding an untagged label.
type ClassNode struct {
	URI      rdf.URI
	Labels   map[string]string
	Parent   *rdf.URI
	Children []*ClassNode
}

// Label returns the label for lang, falling back to the untagged label.
func (n *ClassNode) Label(lang string) string {
	if l, ok := n.Labels[lang]; ok {
		return l
	}
	return n.Labels[""]
}

// Walk visits n and its descendants depth first until visit returns false.
func (n *ClassNode) Walk(visit func(*ClassNode) bool) bool {
	if !visit(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(visit) {
			return false
		}
	}
	return true
}

// ClassTree is a forest of class nodes. A tree computed for a parent class has
// that class as its single root.
type ClassTree struct {
	Roots []*ClassNode
}

// Size returns the number of nodes in the tree.
func (t *ClassTree) Size() int {
	n := 0
	for _, r := range t.Roots {
		r.Walk(func(*ClassNode) bool { n++; return true })
	}
	return n
}

// Find returns the node for uri, if present.
func (t *ClassTree) Find(uri rdf.URI) *ClassNode {
	var found *ClassNode
	for _, r := range t.Roots {
		r.Walk(func(n *ClassNode) bool {
			if n.URI == uri {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// WithoutRoot returns a tree whose roots are the children of the current
// roots. The receiver is shared with other readers and is not modified.
func (t *ClassTree) WithoutRoot() *ClassTree {
	out := &ClassTree{}
	for _, r := range t.Roots {
		out.Roots = append(out.Roots, r.Children...)
	}
	return out
}

// PropertyKind distinguishes datatype properties from object properties.
type PropertyKind string

const (
	DataProperty   PropertyKind = "data"
	ObjectProperty PropertyKind = "object"
)

// Property is a property whose domain applies to a class.
type Property struct {
	URI    rdf.URI
	Kind   PropertyKind
	Domain rdf.URI
	Range  rdf.URI
	Labels map[string]string
}

// PropertyList is the set of properties applicable to a class.
type PropertyList struct {
	Domain     rdf.URI
	Properties []Property
}

// OfKind filters the list by kind.
func (l *PropertyList) OfKind(kind PropertyKind) []Property {
	var out []Property
	for _, p := range l.Properties {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// DescriptorSource computes ontology descriptors from the triple store.
// Implementations must be safe for concurrent use.
type DescriptorSource interface {
	// SubClassesOf returns the tree rooted at class. A non-empty pattern keeps
	// only classes whose label or URI matches it, plus their ancestors.
	SubClassesOf(ctx context.Context, class rdf.URI, pattern string) (*ClassTree, error)
	DataProperties(ctx context.Context, domain rdf.URI) ([]Property, error)
	ObjectProperties(ctx context.Context, domain rdf.URI) ([]Property, error)
}
