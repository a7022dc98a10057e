// Package sparql is a typed model of the SPARQL 1.1 subset used by the
// consistency core. Queries render to standard SPARQL text for remote stores
// and are evaluated structurally by the embedded store.
package sparql

import (
	"fmt"
	"strings"

	"github.com/cayleygraph/quad"
)

// Term is a variable or a constant RDF value in a triple pattern.
type Term struct {
	Var   string
	Value quad.Value
}

// V returns a variable term.
func V(name string) Term { return Term{Var: name} }

// C returns a constant term.
func C(v quad.Value) Term { return Term{Value: v} }

// IRI returns a constant IRI term.
func IRI(iri string) Term { return Term{Value: quad.IRI(iri)} }

// IsVar reports whether t is a variable.
func (t Term) IsVar() bool { return t.Var != "" }

func (t Term) String() string {
	if t.IsVar() {
		return "?" + t.Var
	}
	if t.Value == nil {
		return "UNDEF"
	}
	return t.Value.String()
}

// Element is one member of a group graph pattern.
type Element interface {
	render(b *strings.Builder, depth int)
}

// Group is a group graph pattern. Filters apply to the whole group.
type Group []Element

// Triple is a triple pattern. ZeroOrMore turns the predicate into a
// zero-or-more property path (p*); the predicate must then be constant.
type Triple struct {
	Subject    Term
	Predicate  Term
	Object     Term
	ZeroOrMore bool
}

// Graph restricts a group to a named graph.
type Graph struct {
	Name  Term
	Where Group
}

// Union matches any of its branches.
type Union struct {
	Branches []Group
}

// Optional left-joins its group.
type Optional struct {
	Where Group
}

// Values binds Var inline to each of Values.
type Values struct {
	Var    string
	Values []quad.Value
}

// FilterRegex keeps solutions whose Var, as a string, matches Pattern.
type FilterRegex struct {
	Var             string
	Pattern         string
	CaseInsensitive bool
}

// Select is a SELECT query. An empty Vars projects every variable.
type Select struct {
	Distinct bool
	Vars     []string
	Where    Group
	Limit    int
}

// Ask is an ASK query.
type Ask struct {
	Where Group
}

// InsertData adds ground quads. Quads without a label go to the default graph.
type InsertData struct {
	Quads []quad.Quad
}

// DeleteData removes ground quads.
type DeleteData struct {
	Quads []quad.Quad
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func (t Triple) render(b *strings.Builder, depth int) {
	indent(b, depth)
	b.WriteString(t.Subject.String())
	b.WriteByte(' ')
	b.WriteString(t.Predicate.String())
	if t.ZeroOrMore {
		b.WriteByte('*')
	}
	b.WriteByte(' ')
	b.WriteString(t.Object.String())
	b.WriteString(" .\n")
}

func (g Graph) render(b *strings.Builder, depth int) {
	indent(b, depth)
	b.WriteString("GRAPH ")
	b.WriteString(g.Name.String())
	b.WriteByte(' ')
	g.Where.renderBlock(b, depth)
}

func (u Union) render(b *strings.Builder, depth int) {
	for i, branch := range u.Branches {
		if i == 0 {
			indent(b, depth)
		} else {
			b.WriteString(" UNION ")
		}
		branch.renderInline(b, depth)
	}
	b.WriteString("\n")
}

func (o Optional) render(b *strings.Builder, depth int) {
	indent(b, depth)
	b.WriteString("OPTIONAL ")
	o.Where.renderBlock(b, depth)
}

func (v Values) render(b *strings.Builder, depth int) {
	indent(b, depth)
	fmt.Fprintf(b, "VALUES ?%s {", v.Var)
	for _, value := range v.Values {
		b.WriteByte(' ')
		b.WriteString(value.String())
	}
	b.WriteString(" }\n")
}

func (f FilterRegex) render(b *strings.Builder, depth int) {
	indent(b, depth)
	fmt.Fprintf(b, "FILTER(REGEX(STR(?%s), %s", f.Var, quad.String(f.Pattern).String())
	if f.CaseInsensitive {
		b.WriteString(`, "i"`)
	}
	b.WriteString("))\n")
}

func (g Group) renderInline(b *strings.Builder, depth int) {
	b.WriteString("{\n")
	for _, e := range g {
		e.render(b, depth+1)
	}
	indent(b, depth)
	b.WriteString("}")
}

func (g Group) renderBlock(b *strings.Builder, depth int) {
	g.renderInline(b, depth)
	b.WriteString("\n")
}

func (q *Select) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.Vars) == 0 {
		b.WriteString("*")
	} else {
		for i, v := range q.Vars {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("?" + v)
		}
	}
	b.WriteString(" WHERE ")
	q.Where.renderBlock(&b, 0)
	if q.Limit > 0 {
		fmt.Fprintf(&b, "LIMIT %d\n", q.Limit)
	}
	return b.String()
}

func (q *Ask) String() string {
	var b strings.Builder
	b.WriteString("ASK ")
	q.Where.renderBlock(&b, 0)
	return b.String()
}

func (u *InsertData) String() string {
	return renderData("INSERT DATA", u.Quads)
}

func (u *DeleteData) String() string {
	return renderData("DELETE DATA", u.Quads)
}

func renderData(keyword string, quads []quad.Quad) string {
	var (
		b      strings.Builder
		order  []string
		graphs = make(map[string][]quad.Quad)
	)
	for _, q := range quads {
		key := ""
		if q.Label != nil {
			key = q.Label.String()
		}
		if _, ok := graphs[key]; !ok {
			order = append(order, key)
		}
		graphs[key] = append(graphs[key], q)
	}

	b.WriteString(keyword)
	b.WriteString(" {\n")
	for _, key := range order {
		depth := 1
		if key != "" {
			indent(&b, 1)
			fmt.Fprintf(&b, "GRAPH %s {\n", key)
			depth = 2
		}
		for _, q := range graphs[key] {
			indent(&b, depth)
			fmt.Fprintf(&b, "%s %s %s .\n", q.Subject, q.Predicate, q.Object)
		}
		if key != "" {
			indent(&b, 1)
			b.WriteString("}\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}
