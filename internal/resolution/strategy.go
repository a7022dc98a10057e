package resolution

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cayleygraph/quad"

	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/infrastructure/sparql"
)

// Query variables shared by every strategy.
const (
	VarURI   = "uri"
	VarType  = "type"
	VarGraph = "graph"
)

// Match is a candidate found in the store together with the class it was
// matched as. Graph is empty when the match was not restricted to a named
// graph.
type Match struct {
	URI    rdf.URI
	Type   rdf.URI
	Graph  rdf.Graph
	Fields map[rdf.URI]quad.Value
}

// Strategy builds the existence predicate of a resolution query. The pattern
// it returns is evaluated with ?uri already bound to one page of candidates.
type Strategy interface {
	Name() string
	// Projection lists the variables selected besides ?uri.
	Projection() []string
	Where() sparql.Group
	Decode(row sparql.Row) (Match, bool)
}

// decodeBase reads the variables every strategy projects.
func decodeBase(row sparql.Row) (Match, bool) {
	uri, ok := row.IRI(VarURI)
	if !ok {
		return Match{}, false
	}
	m := Match{URI: rdf.FromIRI(uri)}
	if t, ok := row.IRI(VarType); ok {
		m.Type = rdf.FromIRI(t)
	}
	if g, ok := row.IRI(VarGraph); ok {
		m.Graph = rdf.FromIRI(g)
	}
	return m, true
}

// typedIn matches ?uri typed with class or one of its subclasses inside graph.
// An empty graph searches the default graph.
func typedIn(class rdf.URI, graph rdf.Graph, extra ...sparql.Element) sparql.Group {
	typed := sparql.Group{
		sparql.Triple{Subject: sparql.V(VarURI), Predicate: sparql.IRI(rdf.RDFType), Object: sparql.V(VarType)},
	}
	typed = append(typed, extra...)

	branch := sparql.Group{
		sparql.Triple{
			Subject:    sparql.V(VarType),
			Predicate:  sparql.IRI(rdf.RDFSSubClassOf),
			Object:     sparql.C(class.IRI()),
			ZeroOrMore: true,
		},
	}
	if graph.IsEmpty() {
		return append(branch, typed...)
	}
	return append(branch,
		sparql.Values{Var: VarGraph, Values: []quad.Value{graph.IRI()}},
		sparql.Graph{Name: sparql.V(VarGraph), Where: typed},
	)
}

type anyGraph struct{}

// AnyGraph searches the whole store for candidates with any rdf:type. It is
// the most expensive strategy and should only be used when the classes of the
// candidates are not known.
func AnyGraph() Strategy { return anyGraph{} }

func (anyGraph) Name() string { return "any" }

func (anyGraph) Projection() []string { return []string{VarType} }

func (anyGraph) Where() sparql.Group {
	return sparql.Group{
		sparql.Triple{Subject: sparql.V(VarURI), Predicate: sparql.IRI(rdf.RDFType), Object: sparql.V(VarType)},
	}
}

func (anyGraph) Decode(row sparql.Row) (Match, bool) { return decodeBase(row) }

type graphEntry struct {
	class rdf.URI
	graph rdf.Graph
}

type byGraphMap struct {
	entries []graphEntry
}

// ByGraphMap restricts the search to the graph holding each class. A
// candidate matches when it is typed with one of the classes, or one of their
// subclasses, inside that class's graph. An empty map searches the whole
// store.
func ByGraphMap(graphs map[rdf.URI]rdf.Graph) Strategy {
	if len(graphs) == 0 {
		return AnyGraph()
	}
	entries := make([]graphEntry, 0, len(graphs))
	for class, graph := range graphs {
		entries = append(entries, graphEntry{class: class, graph: graph})
	}
	slices.SortFunc(entries, func(a, b graphEntry) int {
		return strings.Compare(a.class.String(), b.class.String())
	})
	return &byGraphMap{entries: entries}
}

func (s *byGraphMap) Name() string { return "graphs" }

func (s *byGraphMap) Projection() []string { return []string{VarType, VarGraph} }

func (s *byGraphMap) Where() sparql.Group {
	union := sparql.Union{}
	for _, e := range s.entries {
		union.Branches = append(union.Branches, typedIn(e.class, e.graph))
	}
	return sparql.Group{union}
}

func (s *byGraphMap) Decode(row sparql.Row) (Match, bool) { return decodeBase(row) }

type byClassList struct {
	classes []rdf.Class
	fields  map[rdf.URI]string
	order   []rdf.URI
}

// ByClassList searches each class in its home graph and fetches the declared
// fields of matched candidates. Fields that are absent on a resource are left
// out of Match.Fields. An empty list searches the whole store.
func ByClassList(classes ...rdf.Class) Strategy {
	if len(classes) == 0 {
		return AnyGraph()
	}
	s := &byClassList{
		classes: slices.Clone(classes),
		fields:  make(map[rdf.URI]string),
	}
	for _, c := range classes {
		for _, f := range c.Fields {
			if _, ok := s.fields[f]; ok {
				continue
			}
			s.fields[f] = fmt.Sprintf("f%d", len(s.order))
			s.order = append(s.order, f)
		}
	}
	return s
}

func (s *byClassList) Name() string { return "classes" }

func (s *byClassList) Projection() []string {
	vars := []string{VarType, VarGraph}
	for _, f := range s.order {
		vars = append(vars, s.fields[f])
	}
	return vars
}

func (s *byClassList) Where() sparql.Group {
	union := sparql.Union{}
	for _, c := range s.classes {
		var optionals []sparql.Element
		for _, f := range c.Fields {
			optionals = append(optionals, sparql.Optional{Where: sparql.Group{
				sparql.Triple{Subject: sparql.V(VarURI), Predicate: sparql.C(f.IRI()), Object: sparql.V(s.fields[f])},
			}})
		}
		union.Branches = append(union.Branches, typedIn(c.URI, c.Graph, optionals...))
	}
	return sparql.Group{union}
}

func (s *byClassList) Decode(row sparql.Row) (Match, bool) {
	m, ok := decodeBase(row)
	if !ok {
		return m, false
	}
	for _, f := range s.order {
		if v, ok := row[s.fields[f]]; ok {
			if m.Fields == nil {
				m.Fields = make(map[rdf.URI]quad.Value)
			}
			m.Fields[f] = v
		}
	}
	return m, true
}
