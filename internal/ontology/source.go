package ontology

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"

	model "opensilex-backend/internal/domain/ontology"
	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

const (
	varURI    = "uri"
	varParent = "parent"
	varLabel  = "label"
	varDomain = "domain"
	varRange  = "range"
)

// SPARQLDescriptorSource computes ontology descriptors with SPARQL queries.
type SPARQLDescriptorSource struct {
	reader repository.TripleReader
	logger *zap.Logger
}

var _ model.DescriptorSource = (*SPARQLDescriptorSource)(nil)

// NewSPARQLDescriptorSource creates a descriptor source reading through reader.
func NewSPARQLDescriptorSource(reader repository.TripleReader, logger *zap.Logger) *SPARQLDescriptorSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SPARQLDescriptorSource{reader: reader, logger: logger}
}

func subClassPath(subject, object sparql.Term) sparql.Triple {
	return sparql.Triple{
		Subject:    subject,
		Predicate:  sparql.IRI(rdf.RDFSSubClassOf),
		Object:     object,
		ZeroOrMore: true,
	}
}

func optional(s sparql.Term, p string, o string) sparql.Optional {
	return sparql.Optional{Where: sparql.Group{
		sparql.Triple{Subject: s, Predicate: sparql.IRI(p), Object: sparql.V(o)},
	}}
}

func addLabel(labels map[string]string, row sparql.Row) {
	v, ok := row[varLabel]
	if !ok {
		return
	}
	lang := row.Lang(varLabel)
	if _, seen := labels[lang]; !seen {
		labels[lang] = sparql.Lexical(v)
	}
}

// SubClassesOf returns the tree rooted at class. Every class reaches the tree
// through its shortest subClassOf chain to class.
func (s *SPARQLDescriptorSource) SubClassesOf(ctx context.Context, class rdf.URI, pattern string) (*model.ClassTree, error) {
	rows, err := s.reader.Select(ctx, &sparql.Select{
		Distinct: true,
		Vars:     []string{varURI, varParent, varLabel},
		Where: sparql.Group{
			subClassPath(sparql.V(varURI), sparql.C(class.IRI())),
			optional(sparql.V(varURI), rdf.RDFSSubClassOf, varParent),
			optional(sparql.V(varURI), rdf.RDFSLabel, varLabel),
		},
	})
	if err != nil {
		return nil, err
	}

	nodes := map[rdf.URI]*model.ClassNode{
		class: {URI: class, Labels: map[string]string{}},
	}
	children := make(map[rdf.URI][]rdf.URI)
	for _, row := range rows {
		iri, ok := row.IRI(varURI)
		if !ok {
			continue
		}
		u := rdf.FromIRI(iri)
		node, ok := nodes[u]
		if !ok {
			node = &model.ClassNode{URI: u, Labels: map[string]string{}}
			nodes[u] = node
		}
		addLabel(node.Labels, row)
		if p, ok := row.IRI(varParent); ok && rdf.FromIRI(p) != u {
			parent := rdf.FromIRI(p)
			if !slices.Contains(children[parent], u) {
				children[parent] = append(children[parent], u)
			}
		}
	}

	root := nodes[class]
	attached := map[rdf.URI]bool{class: true}
	queue := []*model.ClassNode{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		kids := children[n.URI]
		slices.SortFunc(kids, func(a, b rdf.URI) int { return strings.Compare(a.String(), b.String()) })
		for _, k := range kids {
			child, ok := nodes[k]
			if !ok || attached[k] {
				continue
			}
			attached[k] = true
			parent := n.URI
			child.Parent = &parent
			n.Children = append(n.Children, child)
			queue = append(queue, child)
		}
	}

	tree := &model.ClassTree{Roots: []*model.ClassNode{root}}
	if pattern == "" {
		s.logger.Debug("Computed subclass tree", zap.String("class", class.String()), zap.Int("size", tree.Size()))
		return tree, nil
	}

	matched, err := s.matchingClasses(ctx, class, pattern)
	if err != nil {
		return nil, err
	}
	if !prune(root, matched) {
		return &model.ClassTree{}, nil
	}
	return tree, nil
}

// matchingClasses returns the subclasses of class with a label matching
// pattern, case-insensitively.
func (s *SPARQLDescriptorSource) matchingClasses(ctx context.Context, class rdf.URI, pattern string) (map[rdf.URI]bool, error) {
	rows, err := s.reader.Select(ctx, &sparql.Select{
		Distinct: true,
		Vars:     []string{varURI},
		Where: sparql.Group{
			subClassPath(sparql.V(varURI), sparql.C(class.IRI())),
			sparql.Triple{Subject: sparql.V(varURI), Predicate: sparql.IRI(rdf.RDFSLabel), Object: sparql.V(varLabel)},
			sparql.FilterRegex{Var: varLabel, Pattern: pattern, CaseInsensitive: true},
		},
	})
	if err != nil {
		return nil, err
	}
	matched := make(map[rdf.URI]bool, len(rows))
	for _, row := range rows {
		if iri, ok := row.IRI(varURI); ok {
			matched[rdf.FromIRI(iri)] = true
		}
	}
	return matched, nil
}

// prune keeps matched nodes and their ancestors and reports whether n is kept.
func prune(n *model.ClassNode, matched map[rdf.URI]bool) bool {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if prune(c, matched) {
			kept = append(kept, c)
		}
	}
	n.Children = kept
	return matched[n.URI] || len(kept) > 0
}

// DataProperties returns the datatype properties whose domain is domain or
// one of its ancestors.
func (s *SPARQLDescriptorSource) DataProperties(ctx context.Context, domain rdf.URI) ([]model.Property, error) {
	return s.properties(ctx, domain, rdf.OWLDatatypeProperty, model.DataProperty)
}

// ObjectProperties returns the object properties whose domain is domain or
// one of its ancestors.
func (s *SPARQLDescriptorSource) ObjectProperties(ctx context.Context, domain rdf.URI) ([]model.Property, error) {
	return s.properties(ctx, domain, rdf.OWLObjectProperty, model.ObjectProperty)
}

func (s *SPARQLDescriptorSource) properties(ctx context.Context, domain rdf.URI, propertyType string, kind model.PropertyKind) ([]model.Property, error) {
	rows, err := s.reader.Select(ctx, &sparql.Select{
		Distinct: true,
		Vars:     []string{varURI, varDomain, varRange, varLabel},
		Where: sparql.Group{
			sparql.Triple{Subject: sparql.V(varURI), Predicate: sparql.IRI(rdf.RDFType), Object: sparql.C(quad.IRI(propertyType))},
			sparql.Triple{Subject: sparql.V(varURI), Predicate: sparql.IRI(rdf.RDFSDomain), Object: sparql.V(varDomain)},
			subClassPath(sparql.C(domain.IRI()), sparql.V(varDomain)),
			optional(sparql.V(varURI), rdf.RDFSRange, varRange),
			optional(sparql.V(varURI), rdf.RDFSLabel, varLabel),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s properties of %s: %w", kind, domain, err)
	}

	byURI := make(map[rdf.URI]*model.Property)
	var order []rdf.URI
	for _, row := range rows {
		iri, ok := row.IRI(varURI)
		if !ok {
			continue
		}
		u := rdf.FromIRI(iri)
		p, ok := byURI[u]
		if !ok {
			p = &model.Property{URI: u, Kind: kind, Labels: map[string]string{}}
			if d, ok := row.IRI(varDomain); ok {
				p.Domain = rdf.FromIRI(d)
			}
			byURI[u] = p
			order = append(order, u)
		}
		if r, ok := row.IRI(varRange); ok && p.Range.IsEmpty() {
			p.Range = rdf.FromIRI(r)
		}
		addLabel(p.Labels, row)
	}

	slices.SortFunc(order, func(a, b rdf.URI) int { return strings.Compare(a.String(), b.String()) })
	out := make([]model.Property, len(order))
	for i, u := range order {
		out[i] = *byURI[u]
	}
	return out, nil
}
