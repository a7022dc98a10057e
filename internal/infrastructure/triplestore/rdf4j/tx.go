package rdf4j

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

// Tx is an RDF4J transaction handle.
type Tx struct {
	store *Store
	id    string

	mu         sync.Mutex
	location   *url.URL
	committed  bool
	rolledBack bool
}

var _ repository.TripleTx = (*Tx)(nil)

func newTx(s *Store) *Tx {
	return &Tx{store: s, id: uuid.NewString()}
}

// ID returns the client-side transaction identifier.
func (tx *Tx) ID() string { return tx.id }

// IsActive reports whether the transaction is neither committed nor rolled back.
func (tx *Tx) IsActive() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return !tx.committed && !tx.rolledBack
}

func (tx *Tx) actionURL(action string) string {
	u := *tx.location
	q := u.Query()
	q.Set("action", action)
	u.RawQuery = q.Encode()
	return u.String()
}

// Select runs q inside the transaction once it has been opened.
func (tx *Tx) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.location == nil {
		return tx.store.Select(ctx, q)
	}
	body, err := tx.store.do(ctx, "select", http.MethodPut, tx.actionURL("QUERY"), contentTypeQuery, q.String(), false)
	if err != nil {
		return nil, err
	}
	rows, err := sparql.DecodeResults(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	return rows, nil
}

// Ask runs q inside the transaction once it has been opened.
func (tx *Tx) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.location == nil {
		return tx.store.Ask(ctx, q)
	}
	body, err := tx.store.do(ctx, "ask", http.MethodPut, tx.actionURL("QUERY"), contentTypeQuery, q.String(), false)
	if err != nil {
		return false, err
	}
	ok, err := sparql.DecodeBoolean(bytes.NewReader(body))
	if err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	return ok, nil
}

// Insert sends an INSERT DATA update.
func (tx *Tx) Insert(ctx context.Context, quads ...quad.Quad) error {
	if len(quads) == 0 {
		return nil
	}
	return tx.update(ctx, "insert", (&sparql.InsertData{Quads: quads}).String())
}

// Delete sends a DELETE DATA update.
func (tx *Tx) Delete(ctx context.Context, quads ...quad.Quad) error {
	if len(quads) == 0 {
		return nil
	}
	return tx.update(ctx, "delete", (&sparql.DeleteData{Quads: quads}).String())
}

func (tx *Tx) update(ctx context.Context, op, update string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.committed || tx.rolledBack {
		return apperrors.NewStoreError(op, repository.ErrTransactionClosed)
	}
	if tx.location == nil {
		location, err := tx.store.openTransaction(ctx)
		if err != nil {
			return err
		}
		tx.location = location
		tx.store.logger.Debug("RDF4J transaction opened",
			zap.String("tx_id", tx.id),
			zap.String("location", location.String()),
		)
	}
	_, err := tx.store.do(ctx, op, http.MethodPut, tx.actionURL("UPDATE"), contentTypeUpdate, update, false)
	return err
}

// Commit commits the server-side transaction, if one was opened.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.rolledBack {
		return apperrors.NewStoreError("commit", errors.New("transaction already rolled back"))
	}
	if tx.committed {
		return apperrors.NewStoreError("commit", errors.New("transaction already committed"))
	}
	if tx.location != nil {
		if _, err := tx.store.do(ctx, "commit", http.MethodPut, tx.actionURL("COMMIT"), "", "", false); err != nil {
			return err
		}
	}
	tx.committed = true
	tx.store.logger.Debug("RDF4J transaction committed", zap.String("tx_id", tx.id))
	return nil
}

// Rollback aborts the server-side transaction, if one was opened.
func (tx *Tx) Rollback(ctx context.Context, cause error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.committed {
		return apperrors.NewStoreError("rollback", errors.New("cannot rollback committed transaction"))
	}
	if tx.rolledBack {
		return nil
	}
	if tx.location != nil {
		if _, err := tx.store.do(ctx, "rollback", http.MethodDelete, tx.location.String(), "", "", false); err != nil {
			return err
		}
	}
	tx.rolledBack = true
	tx.store.logger.Debug("RDF4J transaction rolled back",
		zap.String("tx_id", tx.id),
		zap.NamedError("cause", cause),
	)
	return nil
}
