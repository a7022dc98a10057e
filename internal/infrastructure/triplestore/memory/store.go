// Package memory is an embedded triple store holding quads in process. It
// evaluates the typed SPARQL model directly and backs development setups and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

// Store is an in-memory quad store. Quads without a label live in the default
// graph; the default graph seen by queries is the union of all graphs.
type Store struct {
	mu     sync.RWMutex
	data   *quadIndex
	logger *zap.Logger
}

var _ repository.TripleStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		data:   newQuadIndex(),
		logger: logger,
	}
}

// Load adds quads outside of any transaction.
func (s *Store) Load(quads ...quad.Quad) error {
	for _, q := range quads {
		if err := validateQuad(q); err != nil {
			return apperrors.NewStoreError("load", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quads {
		s.data.add(q)
	}
	return nil
}

// Len returns the number of stored quads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.all)
}

// Contains reports whether q is stored.
func (s *Store) Contains(q quad.Quad) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.all[q]
	return ok
}

// Select evaluates q against committed data.
func (s *Store) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := evalSelect(s.data, q)
	if err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	return rows, nil
}

// Ask evaluates q against committed data.
func (s *Store) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, err := evalAsk(s.data, q)
	if err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	return ok, nil
}

// Begin opens a transaction whose writes are staged until Commit.
func (s *Store) Begin(ctx context.Context) (repository.TripleTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreError("begin", err)
	}
	tx := &Tx{
		store:   s,
		id:      uuid.NewString(),
		inserts: make(map[quad.Quad]struct{}),
		deletes: make(map[quad.Quad]struct{}),
	}
	s.logger.Debug("Triple store transaction started", zap.String("tx_id", tx.id))
	return tx, nil
}

func validateQuad(q quad.Quad) error {
	if q.Subject == nil || q.Predicate == nil || q.Object == nil {
		return fmt.Errorf("quad %v has an empty position", q)
	}
	if _, ok := q.Predicate.(quad.IRI); !ok {
		return fmt.Errorf("quad %v: predicate must be an IRI", q)
	}
	return nil
}
