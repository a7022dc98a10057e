// Package transaction runs operations that write to both the triple store and
// the document store so that either both stores keep the effects or neither
// does.
//
// Each Execute opens its own triple-store transaction and document-store
// session and hands them to the operation as an explicit Scope. The triple
// transaction is committed as the last step inside the document transaction,
// so a triple commit failure still discards the document writes. The only
// remaining window is a document commit failing after the triple commit has
// succeeded; it is reported at error level with the transaction id.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/observability"
	"opensilex-backend/internal/repository"
)

// Outcomes reported to metrics.
const (
	OutcomeCommitted      = "committed"
	OutcomeRolledBack     = "rolled_back"
	OutcomeRollbackFailed = "rollback_failed"
	OutcomePartialCommit  = "partial_commit"
	OutcomeBeginFailed    = "begin_failed"
)

// rollbackTimeout bounds a rollback once it is detached from the caller's
// context.
const rollbackTimeout = 10 * time.Second

// rollbackContext keeps ctx values but drops its cancellation, so a
// cancelled or timed out request still releases its triple-store
// transaction.
func rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
}

func rollback(ctx context.Context, tx repository.TripleTx, cause error) error {
	ctx, cancel := rollbackContext(ctx)
	defer cancel()
	return tx.Rollback(ctx, cause)
}

// Scope carries the store handles of one Execute call.
type Scope struct {
	Triples   repository.TripleTx
	Documents repository.DocumentSession
}

type scopeKey struct{}

// ScopeFromContext returns the scope of the Execute call ctx belongs to.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}

// Operation is a unit of work run inside a Scope.
type Operation[T any] func(ctx context.Context, scope *Scope) (T, error)

// ErrorMatcher selects errors for remapping.
type ErrorMatcher func(err error) bool

// ErrorMapper converts a matched error into the error raised to the caller.
// Returning nil keeps the original error.
type ErrorMapper func(err error) error

// MatchType matches errors whose chain contains an E.
func MatchType[E error]() ErrorMatcher {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// MatchIs matches errors whose chain contains target.
func MatchIs(target error) ErrorMatcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

type errorMapping struct {
	match ErrorMatcher
	remap ErrorMapper
}

// Option configures a single Execute call.
type Option func(*options)

type options struct {
	mappings []errorMapping
}

// WithErrorMapping remaps matching errors for this call only. Per-call
// mappings are consulted before coordinator-wide ones.
func WithErrorMapping(match ErrorMatcher, remap ErrorMapper) Option {
	return func(o *options) {
		o.mappings = append(o.mappings, errorMapping{match: match, remap: remap})
	}
}

// Coordinator runs operations across both stores.
type Coordinator struct {
	triples   repository.TripleStore
	documents repository.DocumentStore
	logger    *zap.Logger
	metrics   *observability.Collector
	tracer    trace.Tracer

	mu       sync.RWMutex
	mappings []errorMapping
}

// NewCoordinator creates a coordinator over the two stores. metrics may be nil.
func NewCoordinator(triples repository.TripleStore, documents repository.DocumentStore, logger *zap.Logger, metrics *observability.Collector) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		triples:   triples,
		documents: documents,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("opensilex/transaction"),
	}
}

// RegisterErrorMapping remaps matching errors for every subsequent call.
// Mappings are tried in registration order; the first match wins.
func (c *Coordinator) RegisterErrorMapping(match ErrorMatcher, remap ErrorMapper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings = append(c.mappings, errorMapping{match: match, remap: remap})
}

// Run executes an operation that produces no value.
func (c *Coordinator) Run(ctx context.Context, op func(ctx context.Context, scope *Scope) error, opts ...Option) error {
	_, err := Execute(ctx, c, func(ctx context.Context, scope *Scope) (struct{}, error) {
		return struct{}{}, op(ctx, scope)
	}, opts...)
	return err
}

// Execute runs op against both stores. When ctx already belongs to an
// Execute call, op joins that call's scope and its outcome is decided by the
// outer call.
func Execute[T any](ctx context.Context, c *Coordinator, op Operation[T], opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if scope, ok := ScopeFromContext(ctx); ok {
		result, err := op(ctx, scope)
		if err != nil {
			var zero T
			return zero, remap(err, o.mappings, nil)
		}
		return result, nil
	}
	return execute(ctx, c, op, &o)
}

func execute[T any](ctx context.Context, c *Coordinator, op Operation[T], o *options) (result T, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "transaction.Execute")
	defer span.End()

	tx, err := c.triples.Begin(ctx)
	if err != nil {
		c.finish(span, OutcomeBeginFailed, start, err)
		return result, c.remap(err, o.mappings)
	}
	span.SetAttributes(attribute.String("tx.id", tx.ID()))
	logger := c.logger.With(zap.String("tx_id", tx.ID()))
	logger.Debug("Transaction started")

	defer func() {
		if r := recover(); r != nil {
			if tx.IsActive() {
				if rbErr := rollback(ctx, tx, fmt.Errorf("panic: %v", r)); rbErr != nil {
					logger.Error("Rollback after panic failed", zap.Error(rbErr))
				}
			}
			c.finish(span, OutcomeRolledBack, start, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	var tripleCommitted bool
	docErr := c.documents.RunInTransaction(ctx, func(ctx context.Context, session repository.DocumentSession) error {
		scope := &Scope{Triples: tx, Documents: session}
		value, err := op(context.WithValue(ctx, scopeKey{}, scope), scope)
		if err != nil {
			return err
		}
		if tx.IsActive() {
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			tripleCommitted = true
		}
		result = value
		return nil
	})

	if docErr == nil {
		logger.Debug("Transaction committed", zap.Duration("elapsed", time.Since(start)))
		c.finish(span, OutcomeCommitted, start, nil)
		return result, nil
	}

	var zero T
	if tripleCommitted {
		logger.Error("Document store failed after triple store commit; triple writes are durable",
			zap.Error(docErr),
		)
		c.finish(span, OutcomePartialCommit, start, docErr)
		return zero, c.remap(docErr, o.mappings)
	}

	if tx.IsActive() {
		if rbErr := rollback(ctx, tx, docErr); rbErr != nil {
			rollbackErr := &apperrors.RollbackError{Cause: docErr, RollbackErr: rbErr}
			apperrors.LogError(logger, rollbackErr, "Transaction rollback failed")
			c.finish(span, OutcomeRollbackFailed, start, rollbackErr)
			return zero, rollbackErr
		}
	}

	logger.Debug("Transaction rolled back", zap.Error(docErr))
	c.finish(span, OutcomeRolledBack, start, docErr)
	return zero, c.remap(docErr, o.mappings)
}

func (c *Coordinator) finish(span trace.Span, outcome string, start time.Time, err error) {
	span.SetAttributes(attribute.String("tx.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	c.metrics.TransactionFinished(outcome, time.Since(start))
}

func (c *Coordinator) remap(err error, perCall []errorMapping) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return remap(err, perCall, c.mappings)
}

func remap(err error, groups ...[]errorMapping) error {
	for _, mappings := range groups {
		for _, m := range mappings {
			if !m.match(err) {
				continue
			}
			if mapped := m.remap(err); mapped != nil {
				return mapped
			}
			return err
		}
	}
	return err
}
