package inmemory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
)

// InMemoryStore keeps the library in go-memdb. Write transactions hold the memdb writer
// lock until they end, so transactions never interleave.
type InMemoryStore struct {
	db  *memdb.MemDB
	exc *memdb.Txn // set only on the copy returned by BeginTx
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"book": {
				Name: "book",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"isbn": {
						Name:    "isbn",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "ISBN"},
					},
				},
			},
			"user": {
				Name: "user",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"email": {
						Name:    "email",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "Email"},
					},
				},
			},
			"borrowing": {
				Name: "borrowing",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"user_id": {
						Name:    "user_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					"book_id": {
						Name:    "book_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "BookID"},
					},
				},
			},
		},
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("validating in-memory schema: %w", err)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

/* Returns the transaction to read from and the function that releases it. */
func (store *InMemoryStore) read() (*memdb.Txn, func()) {
	if store.exc != nil {
		return store.exc, func() {}
	}
	txn := store.db.Txn(false)
	return txn, txn.Abort
}

/* Runs fn on the bound transaction, or on a fresh write transaction committed only when fn succeeds. */
func (store *InMemoryStore) write(fn func(txn *memdb.Txn) error) error {
	if store.exc != nil {
		return fn(store.exc)
	}

	txn := store.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// -- Transactions --

func (store *InMemoryStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (library.Repository, driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if store.exc != nil {
		return nil, nil, fmt.Errorf("nested transactions are not supported")
	}

	txn := store.db.Txn(true)
	if txn == nil {
		return nil, nil, fmt.Errorf("failed to create transaction")
	}

	txWrapper := &TxWrapper{txn: txn}
	txStore := &InMemoryStore{
		db:  store.db,
		exc: txWrapper.txn,
	}

	return txStore, txWrapper, nil
}

type TxWrapper struct {
	txn  *memdb.Txn
	done bool
}

func (tx *TxWrapper) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.txn.Commit()
	tx.done = true
	return nil
}

func (tx *TxWrapper) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.txn.Abort()
	tx.done = true
	return nil
}
