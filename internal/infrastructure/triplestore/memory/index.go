package memory

import "github.com/cayleygraph/quad"

// pattern selects quads; nil positions are wildcards. A nil label matches
// every graph when anyGraph is set.
type pattern struct {
	subject, predicate, object, label quad.Value
	anyGraph                          bool
}

func (p pattern) matches(q quad.Quad) bool {
	if p.subject != nil && q.Subject != p.subject {
		return false
	}
	if p.predicate != nil && q.Predicate != p.predicate {
		return false
	}
	if p.object != nil && q.Object != p.object {
		return false
	}
	if !p.anyGraph && q.Label != p.label {
		return false
	}
	return true
}

// source is a readable set of quads.
type source interface {
	match(p pattern, yield func(quad.Quad) bool)
	has(q quad.Quad) bool
	labels() []quad.Value
}

type quadSet = map[quad.Quad]struct{}

type quadIndex struct {
	all       quadSet
	bySubject map[quad.Value]quadSet
	byObject  map[quad.Value]quadSet
	byLabel   map[quad.Value]int
}

func newQuadIndex() *quadIndex {
	return &quadIndex{
		all:       make(quadSet),
		bySubject: make(map[quad.Value]quadSet),
		byObject:  make(map[quad.Value]quadSet),
		byLabel:   make(map[quad.Value]int),
	}
}

func (ix *quadIndex) add(q quad.Quad) {
	if _, ok := ix.all[q]; ok {
		return
	}
	ix.all[q] = struct{}{}
	addTo(ix.bySubject, q.Subject, q)
	addTo(ix.byObject, q.Object, q)
	if q.Label != nil {
		ix.byLabel[q.Label]++
	}
}

func (ix *quadIndex) remove(q quad.Quad) {
	if _, ok := ix.all[q]; !ok {
		return
	}
	delete(ix.all, q)
	removeFrom(ix.bySubject, q.Subject, q)
	removeFrom(ix.byObject, q.Object, q)
	if q.Label != nil {
		if ix.byLabel[q.Label]--; ix.byLabel[q.Label] <= 0 {
			delete(ix.byLabel, q.Label)
		}
	}
}

func addTo(m map[quad.Value]quadSet, key quad.Value, q quad.Quad) {
	set, ok := m[key]
	if !ok {
		set = make(quadSet)
		m[key] = set
	}
	set[q] = struct{}{}
}

func removeFrom(m map[quad.Value]quadSet, key quad.Value, q quad.Quad) {
	if set, ok := m[key]; ok {
		delete(set, q)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func (ix *quadIndex) match(p pattern, yield func(quad.Quad) bool) {
	candidates := ix.all
	switch {
	case p.subject != nil:
		candidates = ix.bySubject[p.subject]
	case p.object != nil:
		candidates = ix.byObject[p.object]
	}
	for q := range candidates {
		if p.matches(q) && !yield(q) {
			return
		}
	}
}

func (ix *quadIndex) has(q quad.Quad) bool {
	_, ok := ix.all[q]
	return ok
}

func (ix *quadIndex) labels() []quad.Value {
	out := make([]quad.Value, 0, len(ix.byLabel))
	for l := range ix.byLabel {
		out = append(out, l)
	}
	return out
}

// overlay is committed data seen through a transaction's staged writes.
type overlay struct {
	base    *quadIndex
	inserts quadSet
	deletes quadSet
}

func (o *overlay) match(p pattern, yield func(quad.Quad) bool) {
	stopped := false
	o.base.match(p, func(q quad.Quad) bool {
		if _, deleted := o.deletes[q]; deleted {
			return true
		}
		if !yield(q) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return
	}
	for q := range o.inserts {
		if o.base.has(q) || !p.matches(q) {
			continue
		}
		if !yield(q) {
			return
		}
	}
}

func (o *overlay) has(q quad.Quad) bool {
	if _, ok := o.inserts[q]; ok {
		return true
	}
	if _, ok := o.deletes[q]; ok {
		return false
	}
	return o.base.has(q)
}

func (o *overlay) labels() []quad.Value {
	out := o.base.labels()
	seen := make(map[quad.Value]struct{}, len(out))
	for _, l := range out {
		seen[l] = struct{}{}
	}
	for q := range o.inserts {
		if q.Label == nil {
			continue
		}
		if _, ok := seen[q.Label]; !ok {
			seen[q.Label] = struct{}{}
			out = append(out, q.Label)
		}
	}
	return out
}
