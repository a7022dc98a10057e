// Package resolution classifies candidate URIs against the triple store.
//
// A Query partitions a CandidateURISet into Known matches and Unknown URIs.
// Candidates are sent to the store in pages; every stream is lazy across
// pages and each page is queried at most once per Query, so asking for
// Unknown after streaming Known costs no extra round trip.
package resolution

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/cayleygraph/quad"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/observability"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

// DefaultPageSize is the number of candidates bound per store query.
const DefaultPageSize = 1000

// ErrQueryConsumed is returned when the Known results of a Query are read a
// second time.
var ErrQueryConsumed = errors.New("resolution query results already consumed")

// Resolver creates queries against a triple store.
type Resolver struct {
	reader   repository.TripleReader
	pageSize int
	logger   *zap.Logger
	metrics  *observability.Collector
	tracer   trace.Tracer
}

// NewResolver creates a resolver. A non-positive pageSize selects
// DefaultPageSize.
func NewResolver(reader repository.TripleReader, pageSize int, logger *zap.Logger, metrics *observability.Collector) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Resolver{
		reader:   reader,
		pageSize: pageSize,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("opensilex/resolution"),
	}
}

// Query creates a query over the resolver's store.
func (r *Resolver) Query(strategy Strategy, candidates *rdf.CandidateURISet) *Query {
	return r.QueryWithin(r.reader, strategy, candidates)
}

// QueryWithin creates a query that reads through reader, typically the
// triple transaction of a transaction.Scope so staged writes are visible.
func (r *Resolver) QueryWithin(reader repository.TripleReader, strategy Strategy, candidates *rdf.CandidateURISet) *Query {
	q := &Query{
		resolver:   r,
		reader:     reader,
		strategy:   strategy,
		candidates: candidates,
		observed:   make(map[rdf.URI]struct{}, candidates.Len()),
	}
	for page := range candidates.Pages(r.pageSize) {
		q.pages = append(q.pages, page)
	}
	r.metrics.ResolutionStarted(strategy.Name(), candidates.Len())
	return q
}

// Query resolves one candidate set. It is not safe for concurrent use.
type Query struct {
	resolver   *Resolver
	reader     repository.TripleReader
	strategy   Strategy
	candidates *rdf.CandidateURISet

	pages     [][]rdf.URI
	evaluated int
	observed  map[rdf.URI]struct{}
	// pending holds matches found while computing Unknown that the Known
	// stream has not yielded yet.
	pending    []Match
	knownTaken bool
}

// Strategy returns the strategy the query was built with.
func (q *Query) Strategy() Strategy { return q.strategy }

// Candidates returns the candidate set being resolved.
func (q *Query) Candidates() *rdf.CandidateURISet { return q.candidates }

// evalNext queries the next unevaluated page and records its matches.
func (q *Query) evalNext(ctx context.Context) ([]Match, error) {
	page := q.pages[q.evaluated]
	name := q.strategy.Name()

	ctx, span := q.resolver.tracer.Start(ctx, "resolution.page", trace.WithAttributes(
		attribute.String("resolution.strategy", name),
		attribute.Int("resolution.page", q.evaluated),
		attribute.Int("resolution.candidates", len(page)),
	))
	defer span.End()

	values := make([]quad.Value, len(page))
	for i, u := range page {
		values[i] = u.IRI()
	}
	where := append(sparql.Group{sparql.Values{Var: VarURI, Values: values}}, q.strategy.Where()...)
	sel := &sparql.Select{
		Distinct: true,
		Vars:     append([]string{VarURI}, q.strategy.Projection()...),
		Where:    where,
	}

	start := time.Now()
	rows, err := q.reader.Select(ctx, sel)
	q.resolver.metrics.ResolutionQueried(name, "select")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page query failed")
		return nil, err
	}
	q.evaluated++

	var matches []Match
	for _, row := range rows {
		m, ok := q.strategy.Decode(row)
		if !ok || !q.candidates.Contains(m.URI) {
			continue
		}
		if _, seen := q.observed[m.URI]; seen {
			continue
		}
		q.observed[m.URI] = struct{}{}
		matches = append(matches, m)
	}

	unknown := len(page) - len(matches)
	q.resolver.metrics.ResolutionUnknowns(name, unknown)
	span.SetAttributes(attribute.Int("resolution.matches", len(matches)))
	q.resolver.logger.Debug("Resolution page evaluated",
		zap.String("strategy", name),
		zap.Int("candidates", len(page)),
		zap.Int("matches", len(matches)),
		zap.Int("unknown", unknown),
		zap.Duration("elapsed", time.Since(start)),
	)
	return matches, nil
}

// Known yields every match once, in store order within a page. It is single
// pass: a second call yields ErrQueryConsumed. Stopping early is allowed.
func (q *Query) Known(ctx context.Context) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		if q.knownTaken {
			yield(Match{}, ErrQueryConsumed)
			return
		}
		q.knownTaken = true

		for len(q.pending) > 0 {
			m := q.pending[0]
			q.pending = q.pending[1:]
			if !yield(m, nil) {
				return
			}
		}
		for q.evaluated < len(q.pages) {
			matches, err := q.evalNext(ctx)
			if err != nil {
				yield(Match{}, err)
				return
			}
			for _, m := range matches {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

// ExistingStream yields the URIs of the Known partition. It consumes the
// query like Known.
func (q *Query) ExistingStream(ctx context.Context) iter.Seq2[rdf.URI, error] {
	return func(yield func(rdf.URI, error) bool) {
		for m, err := range q.Known(ctx) {
			if !yield(m.URI, err) || err != nil {
				return
			}
		}
	}
}

// UnknownStream yields the candidates without a match, in submission order.
// Pages already evaluated are not queried again, and the stream may be read
// any number of times.
func (q *Query) UnknownStream(ctx context.Context) iter.Seq2[rdf.URI, error] {
	return func(yield func(rdf.URI, error) bool) {
		for i, page := range q.pages {
			if i == q.evaluated {
				matches, err := q.evalNext(ctx)
				if err != nil {
					yield(rdf.URI{}, err)
					return
				}
				if !q.knownTaken {
					q.pending = append(q.pending, matches...)
				}
			}
			for _, u := range page {
				if _, ok := q.observed[u]; ok {
					continue
				}
				if !yield(u, nil) {
					return
				}
			}
		}
	}
}

// Unknown collects UnknownStream.
func (q *Query) Unknown(ctx context.Context) ([]rdf.URI, error) {
	var out []rdf.URI
	for u, err := range q.UnknownStream(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// CheckUnknowns fails with an InvalidURISetError carrying label and every
// unknown URI, in submission order.
func (q *Query) CheckUnknowns(ctx context.Context, label string) error {
	unknown, err := q.Unknown(ctx)
	if err != nil {
		return err
	}
	if len(unknown) == 0 {
		return nil
	}
	uris := make([]string, len(unknown))
	for i, u := range unknown {
		uris[i] = u.String()
	}
	return &apperrors.InvalidURISetError{Label: label, URIs: uris}
}

// ResultsAsStream yields mapper applied to every Known match. It consumes the
// query like Known. A mapper error ends the stream.
func ResultsAsStream[T any](ctx context.Context, q *Query, mapper func(Match) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for m, err := range q.Known(ctx) {
			if err != nil {
				yield(zero, err)
				return
			}
			v, err := mapper(m)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// GetResults maps every Known match after checking that no candidate is
// unknown. The mapper is not called when the check fails.
func GetResults[T any](ctx context.Context, q *Query, mapper func(Match) (T, error), unknownLabel string) ([]T, error) {
	if err := q.CheckUnknowns(ctx, unknownLabel); err != nil {
		return nil, err
	}
	out := make([]T, 0, q.candidates.Len())
	for v, err := range ResultsAsStream(ctx, q, mapper) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
