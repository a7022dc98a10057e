package rdf

import (
	"iter"
	"slices"
)

// CandidateURISet is an immutable, ordered, deduplicated collection of
// normalized URIs submitted to one resolution call.
type CandidateURISet struct {
	uris  []URI
	index map[URI]int
}

// NewCandidateURISet normalizes every raw value with prefixes. The first
// malformed value aborts construction. Duplicates after normalization keep
// their first position.
func NewCandidateURISet(prefixes *Prefixes, raw ...string) (*CandidateURISet, error) {
	uris := make([]URI, 0, len(raw))
	for _, r := range raw {
		u, err := prefixes.Normalize(r)
		if err != nil {
			return nil, err
		}
		uris = append(uris, u)
	}
	return CandidateURISetOf(uris...), nil
}

// CandidateURISetOf builds a set from already normalized URIs.
func CandidateURISetOf(uris ...URI) *CandidateURISet {
	s := &CandidateURISet{
		uris:  make([]URI, 0, len(uris)),
		index: make(map[URI]int, len(uris)),
	}
	for _, u := range uris {
		if u.IsEmpty() {
			continue
		}
		if _, seen := s.index[u]; seen {
			continue
		}
		s.index[u] = len(s.uris)
		s.uris = append(s.uris, u)
	}
	return s
}

// Len returns the number of distinct candidates.
func (s *CandidateURISet) Len() int {
	return len(s.uris)
}

// Contains reports whether u is a candidate.
func (s *CandidateURISet) Contains(u URI) bool {
	_, ok := s.index[u]
	return ok
}

// All yields the candidates in submission order.
func (s *CandidateURISet) All() iter.Seq[URI] {
	return slices.Values(s.uris)
}

// Slice returns a copy of the candidates in submission order.
func (s *CandidateURISet) Slice() []URI {
	return slices.Clone(s.uris)
}

// Pages splits the candidates into consecutive chunks of at most size URIs.
func (s *CandidateURISet) Pages(size int) iter.Seq[[]URI] {
	if size <= 0 {
		size = len(s.uris)
	}
	return func(yield func([]URI) bool) {
		for start := 0; start < len(s.uris); start += size {
			end := min(start+size, len(s.uris))
			if !yield(s.uris[start:end:end]) {
				return
			}
		}
	}
}

// Strings returns the expanded form of every candidate.
func (s *CandidateURISet) Strings() []string {
	out := make([]string, len(s.uris))
	for i, u := range s.uris {
		out[i] = u.String()
	}
	return out
}
