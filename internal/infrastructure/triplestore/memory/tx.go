package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/cayleygraph/quad"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

// Tx stages inserts and deletes over the committed data and applies them
// atomically on Commit.
type Tx struct {
	store *Store
	id    string

	mu         sync.Mutex
	inserts    map[quad.Quad]struct{}
	deletes    map[quad.Quad]struct{}
	committed  bool
	rolledBack bool
}

var _ repository.TripleTx = (*Tx)(nil)

// ID returns the transaction identifier.
func (tx *Tx) ID() string { return tx.id }

// IsActive reports whether the transaction can still be written to.
func (tx *Tx) IsActive() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return !tx.committed && !tx.rolledBack
}

// Insert stages quads for insertion.
func (tx *Tx) Insert(ctx context.Context, quads ...quad.Quad) error {
	return tx.stage(ctx, "insert", quads, true)
}

// Delete stages quads for removal.
func (tx *Tx) Delete(ctx context.Context, quads ...quad.Quad) error {
	return tx.stage(ctx, "delete", quads, false)
}

func (tx *Tx) stage(ctx context.Context, op string, quads []quad.Quad, insert bool) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreError(op, err)
	}
	for _, q := range quads {
		if err := validateQuad(q); err != nil {
			return apperrors.NewStoreError(op, err)
		}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.committed || tx.rolledBack {
		return apperrors.NewStoreError(op, repository.ErrTransactionClosed)
	}
	into, cancel := tx.inserts, tx.deletes
	if !insert {
		into, cancel = tx.deletes, tx.inserts
	}
	for _, q := range quads {
		delete(cancel, q)
		into[q] = struct{}{}
	}
	return nil
}

// Select evaluates q against committed data overlaid with staged writes.
func (tx *Tx) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	rows, err := evalSelect(tx.view(), q)
	if err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	return rows, nil
}

// Ask evaluates q against committed data overlaid with staged writes.
func (tx *Tx) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	ok, err := evalAsk(tx.view(), q)
	if err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	return ok, nil
}

func (tx *Tx) view() source {
	if len(tx.inserts) == 0 && len(tx.deletes) == 0 {
		return tx.store.data
	}
	return &overlay{base: tx.store.data, inserts: tx.inserts, deletes: tx.deletes}
}

// Commit applies staged writes. Committing a transaction without staged
// writes does not touch the store.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.rolledBack {
		return apperrors.NewStoreError("commit", errors.New("transaction already rolled back"))
	}
	if tx.committed {
		return apperrors.NewStoreError("commit", errors.New("transaction already committed"))
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreError("commit", err)
	}

	if len(tx.inserts) > 0 || len(tx.deletes) > 0 {
		tx.store.mu.Lock()
		for q := range tx.deletes {
			tx.store.data.remove(q)
		}
		for q := range tx.inserts {
			tx.store.data.add(q)
		}
		tx.store.mu.Unlock()
	}

	tx.committed = true
	tx.store.logger.Debug("Triple store transaction committed",
		zap.String("tx_id", tx.id),
		zap.Int("inserted", len(tx.inserts)),
		zap.Int("deleted", len(tx.deletes)),
	)
	tx.inserts, tx.deletes = nil, nil
	return nil
}

// Rollback discards staged writes. Rolling back twice is a no-op.
func (tx *Tx) Rollback(ctx context.Context, cause error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return apperrors.NewStoreError("rollback", errors.New("cannot rollback committed transaction"))
	}
	if tx.rolledBack {
		return nil
	}
	tx.rolledBack = true
	tx.store.logger.Debug("Triple store transaction rolled back",
		zap.String("tx_id", tx.id),
		zap.Int("discarded", len(tx.inserts)+len(tx.deletes)),
		zap.NamedError("cause", cause),
	)
	tx.inserts, tx.deletes = nil, nil
	return nil
}
