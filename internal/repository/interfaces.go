// Package repository defines the store contracts the consistency core is
// written against.
//
// KEY INTERFACES:
//   - TripleStore / TripleTx: SPARQL reads and explicit write transactions
//     on the RDF triple store
//   - DocumentStore / DocumentSession: session-scoped transactions on the
//     document store
//
// Implementations live under internal/infrastructure. Triple-store backends
// report every failure as an errors.StoreError; document-store backends report
// transaction failures as an errors.DocumentStoreTransactionError.
package repository

import (
	"context"
	"errors"

	"github.com/cayleygraph/quad"

	"opensilex-backend/internal/infrastructure/sparql"
)

// TripleReader executes read queries.
type TripleReader interface {
	Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error)
	Ask(ctx context.Context, q *sparql.Ask) (bool, error)
}

// TripleStore is a triple store that can open write transactions.
type TripleStore interface {
	TripleReader
	// Begin opens a new transaction. Each transaction is owned by a single
	// caller and must not be shared between concurrent operations.
	Begin(ctx context.Context) (TripleTx, error)
}

// TripleTx is an open triple-store transaction. Reads made through it observe
// its own staged writes. Commit and Rollback end the transaction; afterwards
// IsActive reports false and further writes fail.
type TripleTx interface {
	TripleReader
	ID() string
	Insert(ctx context.Context, quads ...quad.Quad) error
	Delete(ctx context.Context, quads ...quad.Quad) error
	Commit(ctx context.Context) error
	// Rollback discards staged writes. cause is the error that triggered the
	// rollback and is used for diagnostics only.
	Rollback(ctx context.Context, cause error) error
	IsActive() bool
}

// DocumentKey addresses a document inside a collection.
type DocumentKey struct {
	Collection string
	ID         string
}

// DocumentSession is the handle given to a function running inside a
// document-store transaction.
type DocumentSession interface {
	Put(ctx context.Context, key DocumentKey, doc any) error
	Delete(ctx context.Context, key DocumentKey) error
	// Get decodes the document into out and reports whether it exists.
	// Writes staged in the same session are visible.
	Get(ctx context.Context, key DocumentKey, out any) (bool, error)
}

// DocumentStore runs functions inside session-scoped transactions.
type DocumentStore interface {
	// RunInTransaction commits when fn returns nil and discards every write
	// otherwise. fn's error is returned unchanged; commit failures are
	// returned as errors.DocumentStoreTransactionError. A transaction without
	// writes commits nothing.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, session DocumentSession) error) error
}

// ErrTransactionClosed is returned by writes on a committed or rolled back
// transaction.
var ErrTransactionClosed = errors.New("transaction is no longer active")
