package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Querier is the query surface shared by *sqlx.DB and *sqlx.Tx, so repository
// methods run identically inside and outside a transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx wraps a transaction and collects post-commit hooks. Hooks run only after
// a successful commit and are skipped entirely on rollback, so callers can
// hand freshly persisted state to collaborators (the trigger engine) without
// racing the commit.
type Tx struct {
	*sqlx.Tx
	hooks []func()
}

// AfterCommit registers fn to run once the transaction commits.
func (t *Tx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// InTx runs fn inside a transaction. The transaction is rolled back when fn
// returns an error and committed otherwise; post-commit hooks registered on
// the Tx fire after the commit succeeds.
func InTx(ctx context.Context, db *sqlx.DB, fn func(tx *Tx) error) error {
	sqlxTx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{Tx: sqlxTx}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := sqlxTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := sqlxTx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	for _, hook := range tx.hooks {
		hook()
	}

	return nil
}
