// Package decorators wraps store implementations with cross-cutting
// behavior while keeping their interfaces.
package decorators

import (
	"context"
	"time"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

// LoggingConfig controls what the logging decorators record.
type LoggingConfig struct {
	// LogQueries attaches the rendered SPARQL text to query logs.
	LogQueries bool
	LogErrors  bool
	// SlowThreshold raises completed operations slower than this to Warn.
	SlowThreshold time.Duration
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogQueries:    false,
		LogErrors:     true,
		SlowThreshold: time.Second,
	}
}

type opLogger struct {
	logger *zap.Logger
	config LoggingConfig
}

// finish logs one completed operation. Errors go to Error, slow operations
// to Warn, everything else to Debug.
func (l opLogger) finish(op string, start time.Time, err error, fields ...zap.Field) {
	duration := time.Since(start)
	fields = append(fields, zap.String("operation", op), zap.Duration("duration", duration))

	if err != nil {
		if l.config.LogErrors {
			l.logger.Error("store operation failed", append(fields, zap.Error(err))...)
		}
		return
	}
	level, message := zapcore.DebugLevel, "store operation completed"
	if l.config.SlowThreshold > 0 && duration > l.config.SlowThreshold {
		level, message = zapcore.WarnLevel, "slow store operation completed"
	}
	if ce := l.logger.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}

func (l opLogger) queryFields(q interface{ String() string }) []zap.Field {
	if !l.config.LogQueries {
		return nil
	}
	return []zap.Field{zap.String("query", q.String())}
}

// LoggingTripleStore logs every query and transaction of the wrapped store.
type LoggingTripleStore struct {
	inner repository.TripleStore
	opLogger
}

var _ repository.TripleStore = (*LoggingTripleStore)(nil)

func NewLoggingTripleStore(inner repository.TripleStore, logger *zap.Logger, config LoggingConfig) *LoggingTripleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingTripleStore{
		inner:    inner,
		opLogger: opLogger{logger: logger.Named("triple_store"), config: config},
	}
}

func (s *LoggingTripleStore) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	start := time.Now()
	rows, err := s.inner.Select(ctx, q)
	s.finish("select", start, err, append(s.queryFields(q), zap.Int("rows", len(rows)))...)
	return rows, err
}

func (s *LoggingTripleStore) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Ask(ctx, q)
	s.finish("ask", start, err, append(s.queryFields(q), zap.Bool("result", ok))...)
	return ok, err
}

func (s *LoggingTripleStore) Begin(ctx context.Context) (repository.TripleTx, error) {
	start := time.Now()
	tx, err := s.inner.Begin(ctx)
	if err != nil {
		s.finish("begin", start, err)
		return nil, err
	}
	s.finish("begin", start, nil, zap.String("tx_id", tx.ID()))
	return &loggingTx{inner: tx, opLogger: s.opLogger, opened: start}, nil
}

type loggingTx struct {
	inner repository.TripleTx
	opLogger
	opened time.Time
}

func (t *loggingTx) ID() string     { return t.inner.ID() }
func (t *loggingTx) IsActive() bool { return t.inner.IsActive() }

func (t *loggingTx) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	start := time.Now()
	rows, err := t.inner.Select(ctx, q)
	t.finish("tx.select", start, err, append(t.queryFields(q), zap.String("tx_id", t.ID()), zap.Int("rows", len(rows)))...)
	return rows, err
}

func (t *loggingTx) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	start := time.Now()
	ok, err := t.inner.Ask(ctx, q)
	t.finish("tx.ask", start, err, append(t.queryFields(q), zap.String("tx_id", t.ID()))...)
	return ok, err
}

func (t *loggingTx) Insert(ctx context.Context, quads ...quad.Quad) error {
	start := time.Now()
	err := t.inner.Insert(ctx, quads...)
	t.finish("tx.insert", start, err, zap.String("tx_id", t.ID()), zap.Int("quads", len(quads)))
	return err
}

func (t *loggingTx) Delete(ctx context.Context, quads ...quad.Quad) error {
	start := time.Now()
	err := t.inner.Delete(ctx, quads...)
	t.finish("tx.delete", start, err, zap.String("tx_id", t.ID()), zap.Int("quads", len(quads)))
	return err
}

func (t *loggingTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := t.inner.Commit(ctx)
	t.finish("tx.commit", start, err, zap.String("tx_id", t.ID()), zap.Duration("open_for", time.Since(t.opened)))
	return err
}

func (t *loggingTx) Rollback(ctx context.Context, cause error) error {
	start := time.Now()
	err := t.inner.Rollback(ctx, cause)
	fields := []zap.Field{zap.String("tx_id", t.ID())}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	t.finish("tx.rollback", start, err, fields...)
	return err
}

// LoggingDocumentStore logs every document-store transaction.
type LoggingDocumentStore struct {
	inner repository.DocumentStore
	opLogger
}

var _ repository.DocumentStore = (*LoggingDocumentStore)(nil)

func NewLoggingDocumentStore(inner repository.DocumentStore, logger *zap.Logger, config LoggingConfig) *LoggingDocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingDocumentStore{
		inner:    inner,
		opLogger: opLogger{logger: logger.Named("document_store"), config: config},
	}
}

func (s *LoggingDocumentStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, session repository.DocumentSession) error) error {
	start := time.Now()
	writes := 0
	err := s.inner.RunInTransaction(ctx, func(ctx context.Context, session repository.DocumentSession) error {
		return fn(ctx, &countingSession{DocumentSession: session, writes: &writes})
	})
	s.finish("transaction", start, err, zap.Int("writes", writes))
	return err
}

type countingSession struct {
	repository.DocumentSession
	writes *int
}

func (s *countingSession) Put(ctx context.Context, key repository.DocumentKey, doc any) error {
	err := s.DocumentSession.Put(ctx, key, doc)
	if err == nil {
		*s.writes++
	}
	return err
}

func (s *countingSession) Delete(ctx context.Context, key repository.DocumentKey) error {
	err := s.DocumentSession.Delete(ctx, key)
	if err == nil {
		*s.writes++
	}
	return err
}
