package memory

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cayleygraph/quad"

	"opensilex-backend/internal/infrastructure/sparql"
)

// graphScope is the graph triple patterns are matched in. A nil label means
// the default graph, the union of every graph.
type graphScope struct {
	label quad.Value
}

func (g graphScope) pattern(s, p, o quad.Value) pattern {
	return pattern{subject: s, predicate: p, object: o, label: g.label, anyGraph: g.label == nil}
}

func evalSelect(src source, q *sparql.Select) ([]sparql.Row, error) {
	rows, err := evalGroup(src, q.Where, []sparql.Row{{}}, graphScope{})
	if err != nil {
		return nil, err
	}

	out := make([]sparql.Row, 0, len(rows))
	seen := make(map[string]struct{})
	for _, row := range rows {
		projected := project(row, q.Vars)
		if q.Distinct {
			key := rowKey(projected, q.Vars)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, projected)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func evalAsk(src source, q *sparql.Ask) (bool, error) {
	rows, err := evalGroup(src, q.Where, []sparql.Row{{}}, graphScope{})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func project(row sparql.Row, vars []string) sparql.Row {
	if len(vars) == 0 {
		return row
	}
	out := make(sparql.Row, len(vars))
	for _, v := range vars {
		if value, ok := row[v]; ok {
			out[v] = value
		}
	}
	return out
}

func rowKey(row sparql.Row, vars []string) string {
	if len(vars) == 0 {
		for name := range row {
			vars = append(vars, name)
		}
		slices.Sort(vars)
	}
	var b strings.Builder
	for _, v := range vars {
		b.WriteString(v)
		b.WriteByte('=')
		if value, ok := row[v]; ok {
			b.WriteString(value.String())
		}
		b.WriteByte(0)
	}
	return b.String()
}

func evalGroup(src source, g sparql.Group, in []sparql.Row, scope graphScope) ([]sparql.Row, error) {
	cur := in
	var filters []sparql.FilterRegex

	for _, element := range g {
		var err error
		switch e := element.(type) {
		case sparql.Triple:
			if e.ZeroOrMore {
				cur, err = evalPath(src, e, cur, scope)
			} else {
				cur = evalTriple(src, e, cur, scope)
			}
		case sparql.Graph:
			cur, err = evalGraph(src, e, cur)
		case sparql.Union:
			cur, err = evalUnion(src, e, cur, scope)
		case sparql.Optional:
			cur, err = evalOptional(src, e, cur, scope)
		case sparql.Values:
			cur = evalValues(e, cur)
		case sparql.FilterRegex:
			filters = append(filters, e)
		default:
			return nil, fmt.Errorf("unsupported group element %T", element)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, f := range filters {
		expr := f.Pattern
		if f.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex filter %q: %w", f.Pattern, err)
		}
		kept := cur[:0:0]
		for _, row := range cur {
			if v, ok := row[f.Var]; ok && re.MatchString(sparql.Lexical(v)) {
				kept = append(kept, row)
			}
		}
		cur = kept
	}
	return cur, nil
}

func resolve(t sparql.Term, row sparql.Row) quad.Value {
	if t.IsVar() {
		return row[t.Var]
	}
	return t.Value
}

// extend binds the variable positions of terms to values, failing on a
// conflicting binding of a repeated variable.
func extend(row sparql.Row, terms []sparql.Term, values []quad.Value) (sparql.Row, bool) {
	out := make(sparql.Row, len(row)+len(terms))
	for k, v := range row {
		out[k] = v
	}
	for i, t := range terms {
		if !t.IsVar() {
			continue
		}
		if bound, ok := out[t.Var]; ok {
			if bound != values[i] {
				return nil, false
			}
			continue
		}
		out[t.Var] = values[i]
	}
	return out, true
}

func evalTriple(src source, t sparql.Triple, in []sparql.Row, scope graphScope) []sparql.Row {
	var out []sparql.Row
	terms := []sparql.Term{t.Subject, t.Predicate, t.Object}
	for _, row := range in {
		p := scope.pattern(resolve(t.Subject, row), resolve(t.Predicate, row), resolve(t.Object, row))
		src.match(p, func(q quad.Quad) bool {
			if next, ok := extend(row, terms, []quad.Value{q.Subject, q.Predicate, q.Object}); ok {
				out = append(out, next)
			}
			return true
		})
	}
	return out
}

// reachable returns start and every node reachable from it through pred,
// following edges forward (subject to object) or backward.
func reachable(src source, start, pred quad.Value, scope graphScope, forward bool) []quad.Value {
	visited := map[quad.Value]struct{}{start: {}}
	order := []quad.Value{start}
	for i := 0; i < len(order); i++ {
		node := order[i]
		var p pattern
		if forward {
			p = scope.pattern(node, pred, nil)
		} else {
			p = scope.pattern(nil, pred, node)
		}
		src.match(p, func(q quad.Quad) bool {
			next := q.Object
			if !forward {
				next = q.Subject
			}
			if _, ok := visited[next]; !ok {
				visited[next] = struct{}{}
				order = append(order, next)
			}
			return true
		})
	}
	return order
}

func evalPath(src source, t sparql.Triple, in []sparql.Row, scope graphScope) ([]sparql.Row, error) {
	if t.Predicate.IsVar() {
		return nil, fmt.Errorf("property path predicate must be constant, got ?%s", t.Predicate.Var)
	}
	pred := t.Predicate.Value
	terms := []sparql.Term{t.Subject, t.Object}

	var out []sparql.Row
	emit := func(row sparql.Row, s, o quad.Value) {
		if next, ok := extend(row, terms, []quad.Value{s, o}); ok {
			out = append(out, next)
		}
	}

	for _, row := range in {
		s, o := resolve(t.Subject, row), resolve(t.Object, row)
		switch {
		case s != nil:
			for _, n := range reachable(src, s, pred, scope, true) {
				if o == nil || n == o {
					emit(row, s, n)
				}
			}
		case o != nil:
			for _, n := range reachable(src, o, pred, scope, false) {
				emit(row, n, o)
			}
		default:
			nodes := make(map[quad.Value]struct{})
			var starts []quad.Value
			src.match(scope.pattern(nil, pred, nil), func(q quad.Quad) bool {
				for _, n := range []quad.Value{q.Subject, q.Object} {
					if _, ok := nodes[n]; !ok {
						nodes[n] = struct{}{}
						starts = append(starts, n)
					}
				}
				return true
			})
			for _, start := range starts {
				for _, n := range reachable(src, start, pred, scope, true) {
					emit(row, start, n)
				}
			}
		}
	}
	return out, nil
}

func evalGraph(src source, g sparql.Graph, in []sparql.Row) ([]sparql.Row, error) {
	var out []sparql.Row
	for _, row := range in {
		if name := resolve(g.Name, row); name != nil {
			res, err := evalGroup(src, g.Where, []sparql.Row{row}, graphScope{label: name})
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
			continue
		}
		for _, label := range src.labels() {
			seeded, _ := extend(row, []sparql.Term{g.Name}, []quad.Value{label})
			res, err := evalGroup(src, g.Where, []sparql.Row{seeded}, graphScope{label: label})
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
		}
	}
	return out, nil
}

func evalUnion(src source, u sparql.Union, in []sparql.Row, scope graphScope) ([]sparql.Row, error) {
	var out []sparql.Row
	for _, branch := range u.Branches {
		res, err := evalGroup(src, branch, in, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func evalOptional(src source, o sparql.Optional, in []sparql.Row, scope graphScope) ([]sparql.Row, error) {
	var out []sparql.Row
	for _, row := range in {
		res, err := evalGroup(src, o.Where, []sparql.Row{row}, scope)
		if err != nil {
			return nil, err
		}
		if len(res) == 0 {
			out = append(out, row)
			continue
		}
		out = append(out, res...)
	}
	return out, nil
}

func evalValues(v sparql.Values, in []sparql.Row) []sparql.Row {
	var out []sparql.Row
	term := []sparql.Term{sparql.V(v.Var)}
	for _, row := range in {
		for _, value := range v.Values {
			if next, ok := extend(row, term, []quad.Value{value}); ok {
				out = append(out, next)
			}
		}
	}
	return out
}
