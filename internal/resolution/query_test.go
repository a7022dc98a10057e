package resolution

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/infrastructure/triplestore/memory"
	"opensilex-backend/internal/repository"
)

const ex = "http://example.org/"

var prefixes = rdf.NewPrefixes(map[string]string{"ex": ex})

func uri(short string) rdf.URI { return prefixes.MustNormalize(short) }

func typed(subject, class, graph string) quad.Quad {
	return quad.Quad{
		Subject:   uri(subject).IRI(),
		Predicate: quad.IRI(rdf.RDFType),
		Object:    uri(class).IRI(),
		Label:     uri(graph).IRI(),
	}
}

// countingReader counts store round trips and keeps the last query.
type countingReader struct {
	repository.TripleReader
	selects atomic.Int32
	last    *sparql.Select
	err     error
}

func (r *countingReader) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	r.selects.Add(1)
	r.last = q
	if r.err != nil {
		return nil, r.err
	}
	return r.TripleReader.Select(ctx, q)
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	require.NoError(t, store.Load(
		quad.Quad{
			Subject:   uri("ex:SubFoo").IRI(),
			Predicate: quad.IRI(rdf.RDFSSubClassOf),
			Object:    uri("ex:Foo").IRI(),
			Label:     uri("ex:ontology").IRI(),
		},
		typed("ex:a", "ex:Foo", "ex:G1"),
		typed("ex:b", "ex:Bar", "ex:G2"),
		typed("ex:d", "ex:SubFoo", "ex:G1"),
		quad.Quad{
			Subject:   uri("ex:a").IRI(),
			Predicate: quad.IRI(rdf.RDFSLabel),
			Object:    quad.String("Device A"),
			Label:     uri("ex:G1").IRI(),
		},
	))
	return store
}

func candidates(t *testing.T, raw ...string) *rdf.CandidateURISet {
	t.Helper()
	set, err := rdf.NewCandidateURISet(prefixes, raw...)
	require.NoError(t, err)
	return set
}

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func toURI(m Match) (rdf.URI, error) { return m.URI, nil }

func TestQuery_GraphMapExample(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, zap.NewNop(), nil)
	strategy := ByGraphMap(map[rdf.URI]rdf.Graph{
		uri("ex:Foo"): uri("ex:G1"),
		uri("ex:Bar"): uri("ex:G2"),
	})

	q := resolver.Query(strategy, candidates(t, "ex:a", "ex:b", "ex:c"))
	known := collect(t, q.ExistingStream(context.Background()))
	unknown := collect(t, q.UnknownStream(context.Background()))

	assert.ElementsMatch(t, []rdf.URI{uri("ex:a"), uri("ex:b")}, known)
	assert.Equal(t, []rdf.URI{uri("ex:c")}, unknown)

	strict := resolver.Query(strategy, candidates(t, "ex:a", "ex:b", "ex:c"))
	_, err := GetResults(context.Background(), strict, toURI, "unknown devices")
	invalid, ok := apperrors.AsInvalidURISet(err)
	require.True(t, ok)
	assert.Equal(t, []string{ex + "c"}, invalid.URIs)
	assert.Equal(t, "unknown devices", invalid.Label)
}

func TestQuery_StrategiesAgree(t *testing.T) {
	const (
		total   = 7
		present = 4
	)
	store := memory.NewStore(zap.NewNop())
	var raw []string
	for i := range total {
		name := fmt.Sprintf("ex:item%d", i)
		raw = append(raw, name)
		if i%2 == 0 {
			require.NoError(t, store.Load(typed(name, "ex:Sensor", "ex:sensors")))
		}
	}

	sensor := rdf.Class{URI: uri("ex:Sensor"), Graph: uri("ex:sensors")}
	strategies := map[string]Strategy{
		"classes": ByClassList(sensor),
		"graphs":  ByGraphMap(map[rdf.URI]rdf.Graph{sensor.URI: sensor.Graph}),
		"any":     AnyGraph(),
	}

	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			resolver := NewResolver(store, 3, zap.NewNop(), nil)
			q := resolver.Query(strategy, candidates(t, raw...))

			known := collect(t, q.ExistingStream(context.Background()))
			unknown, err := q.Unknown(context.Background())
			require.NoError(t, err)

			assert.Len(t, known, present)
			assert.Equal(t, []rdf.URI{uri("ex:item1"), uri("ex:item3"), uri("ex:item5")}, unknown)
		})
	}
}

func TestQuery_SubclassMatches(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	q := resolver.Query(ByGraphMap(map[rdf.URI]rdf.Graph{uri("ex:Foo"): uri("ex:G1")}), candidates(t, "ex:d"))

	matches := collect(t, q.Known(context.Background()))

	require.Len(t, matches, 1)
	assert.Equal(t, uri("ex:SubFoo"), matches[0].Type)
	assert.Equal(t, uri("ex:G1"), matches[0].Graph)
}

func TestQuery_GraphRestriction(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	q := resolver.Query(ByGraphMap(map[rdf.URI]rdf.Graph{uri("ex:Bar"): uri("ex:G1")}), candidates(t, "ex:b"))

	assert.Empty(t, collect(t, q.Known(context.Background())))
	assert.Equal(t, []rdf.URI{uri("ex:b")}, collect(t, q.UnknownStream(context.Background())))
}

func TestQuery_ClassListFetchesFields(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	label := prefixes.MustNormalize("rdfs:label")
	strategy := ByClassList(
		rdf.Class{URI: uri("ex:Foo"), Graph: uri("ex:G1"), Fields: []rdf.URI{label}},
		rdf.Class{URI: uri("ex:Bar"), Graph: uri("ex:G2"), Fields: []rdf.URI{label}},
	)

	matches := collect(t, resolver.Query(strategy, candidates(t, "ex:a", "ex:b")).Known(context.Background()))

	require.Len(t, matches, 2)
	byURI := map[rdf.URI]Match{}
	for _, m := range matches {
		byURI[m.URI] = m
	}
	assert.Equal(t, quad.String("Device A"), byURI[uri("ex:a")].Fields[label])
	assert.Nil(t, byURI[uri("ex:b")].Fields)
}

func TestQuery_KnownIsDeduplicated(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Load(typed("ex:a", "ex:SubFoo", "ex:G1")))
	resolver := NewResolver(store, 0, nil, nil)

	q := resolver.Query(ByGraphMap(map[rdf.URI]rdf.Graph{uri("ex:Foo"): uri("ex:G1")}), candidates(t, "ex:a"))

	assert.Len(t, collect(t, q.Known(context.Background())), 1)
}

func TestQuery_SecondConsumptionFails(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	q := resolver.Query(AnyGraph(), candidates(t, "ex:a", "ex:b"))

	collect(t, q.Known(context.Background()))

	for _, err := range ResultsAsStream(context.Background(), q, toURI) {
		assert.ErrorIs(t, err, ErrQueryConsumed)
	}
	_, err := GetResults(context.Background(), q, toURI, "")
	assert.ErrorIs(t, err, ErrQueryConsumed)
}

func TestQuery_UnknownReusesEvaluatedPages(t *testing.T) {
	reader := &countingReader{TripleReader: newStore(t)}
	resolver := NewResolver(reader, 2, nil, nil)
	q := resolver.Query(AnyGraph(), candidates(t, "ex:a", "ex:b", "ex:c", "ex:d", "ex:e"))

	collect(t, q.Known(context.Background()))
	require.Equal(t, int32(3), reader.selects.Load())

	_, err := q.Unknown(context.Background())
	require.NoError(t, err)
	unknown, err := q.Unknown(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []rdf.URI{uri("ex:c"), uri("ex:e")}, unknown)
	assert.Equal(t, int32(3), reader.selects.Load())
}

func TestQuery_KnownAfterUnknownUsesPendingMatches(t *testing.T) {
	reader := &countingReader{TripleReader: newStore(t)}
	resolver := NewResolver(reader, 2, nil, nil)
	q := resolver.Query(AnyGraph(), candidates(t, "ex:a", "ex:c", "ex:b"))

	err := q.CheckUnknowns(context.Background(), "missing")
	invalid, ok := apperrors.AsInvalidURISet(err)
	require.True(t, ok)
	assert.Equal(t, []string{ex + "c"}, invalid.URIs)

	known := collect(t, q.ExistingStream(context.Background()))
	assert.ElementsMatch(t, []rdf.URI{uri("ex:a"), uri("ex:b")}, known)
	assert.Equal(t, int32(2), reader.selects.Load())
}

func TestQuery_StoreErrorSurfaces(t *testing.T) {
	storeErr := apperrors.NewStoreError("select", errors.New("connection refused"))
	reader := &countingReader{TripleReader: newStore(t), err: storeErr}
	resolver := NewResolver(reader, 0, nil, nil)

	_, err := GetResults(context.Background(), resolver.Query(AnyGraph(), candidates(t, "ex:a")), toURI, "")
	assert.Same(t, storeErr, err)

	for _, err := range resolver.Query(AnyGraph(), candidates(t, "ex:a")).Known(context.Background()) {
		assert.True(t, apperrors.IsStoreError(err))
	}
}

func TestQuery_MapperErrorEndsStream(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	q := resolver.Query(AnyGraph(), candidates(t, "ex:a", "ex:b"))
	mapErr := errors.New("cannot map")

	var errs []error
	for _, err := range ResultsAsStream(context.Background(), q, func(Match) (string, error) { return "", mapErr }) {
		errs = append(errs, err)
	}

	assert.Equal(t, []error{mapErr}, errs)
}

func TestQuery_EmptyCandidatesNeverQueryStore(t *testing.T) {
	reader := &countingReader{TripleReader: newStore(t)}
	resolver := NewResolver(reader, 0, nil, nil)
	q := resolver.Query(AnyGraph(), rdf.CandidateURISetOf())

	results, err := GetResults(context.Background(), q, toURI, "")

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, reader.selects.Load())
}

func TestQuery_PrefixedAndExpandedFormsMatch(t *testing.T) {
	resolver := NewResolver(newStore(t), 0, nil, nil)
	set := candidates(t, "ex:a", "<"+ex+"a>", ex+"a")
	require.Equal(t, 1, set.Len())

	results, err := GetResults(context.Background(), resolver.Query(AnyGraph(), set), toURI, "")

	require.NoError(t, err)
	assert.Equal(t, []rdf.URI{uri("ex:a")}, results)
}

func TestQuery_RendersPagedValues(t *testing.T) {
	reader := &countingReader{TripleReader: newStore(t)}
	resolver := NewResolver(reader, 0, nil, nil)
	q := resolver.Query(ByGraphMap(map[rdf.URI]rdf.Graph{uri("ex:Foo"): uri("ex:G1")}), candidates(t, "ex:a"))

	collect(t, q.Known(context.Background()))

	require.NotNil(t, reader.last)
	text := reader.last.String()
	assert.True(t, strings.HasPrefix(text, "SELECT DISTINCT ?uri ?type ?graph WHERE"))
	assert.Contains(t, text, "VALUES ?uri { <"+ex+"a> }")
	assert.Contains(t, text, "<"+rdf.RDFSSubClassOf+">* <"+ex+"Foo>")
	assert.Contains(t, text, "GRAPH ?graph")
}

func TestMalformedCandidatesRejectedAtConstruction(t *testing.T) {
	_, err := rdf.NewCandidateURISet(prefixes, "ex:a", "not a uri")

	var malformed *apperrors.MalformedURIError
	assert.ErrorAs(t, err, &malformed)
}
