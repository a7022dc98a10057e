// Package memory is an embedded document store with session-scoped
// transactions. Documents are kept as JSON so readers never share memory
// with writers.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/repository"
)

// Store holds committed documents.
type Store struct {
	mu     sync.RWMutex
	docs   map[repository.DocumentKey][]byte
	logger *zap.Logger
}

var _ repository.DocumentStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		docs:   make(map[repository.DocumentKey][]byte),
		logger: logger,
	}
}

// Len returns the number of committed documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Exists reports whether a committed document exists under key.
func (s *Store) Exists(key repository.DocumentKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key]
	return ok
}

// RunInTransaction runs fn and applies its staged writes atomically when it
// returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, session repository.DocumentSession) error) error {
	sess := &session{store: s, staged: make(map[repository.DocumentKey][]byte)}

	if err := fn(ctx, sess); err != nil {
		sess.close()
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.closed = true
	if len(sess.staged) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &apperrors.DocumentStoreTransactionError{Cause: err}
	}

	s.mu.Lock()
	for key, doc := range sess.staged {
		if doc == nil {
			delete(s.docs, key)
			continue
		}
		s.docs[key] = doc
	}
	s.mu.Unlock()

	s.logger.Debug("Document transaction committed", zap.Int("items", len(sess.staged)))
	return nil
}

type session struct {
	store *Store

	mu     sync.Mutex
	staged map[repository.DocumentKey][]byte // nil value marks a delete
	closed bool
}

func (s *session) Put(ctx context.Context, key repository.DocumentKey, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", key.Collection, key.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &apperrors.DocumentStoreTransactionError{Cause: repository.ErrTransactionClosed}
	}
	s.staged[key] = data
	return nil
}

func (s *session) Delete(ctx context.Context, key repository.DocumentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &apperrors.DocumentStoreTransactionError{Cause: repository.ErrTransactionClosed}
	}
	s.staged[key] = nil
	return nil
}

func (s *session) Get(ctx context.Context, key repository.DocumentKey, out any) (bool, error) {
	s.mu.Lock()
	data, staged := s.staged[key]
	s.mu.Unlock()

	if !staged {
		s.store.mu.RLock()
		data = s.store.docs[key]
		s.store.mu.RUnlock()
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal document %s/%s: %w", key.Collection, key.ID, err)
	}
	return true, nil
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.staged = nil
}
