// Package tx carries a database transaction through context so stores can
// join a caller-scoped transaction without widening their signatures.
package tx

import (
	"context"
	"database/sql"
	"fmt"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx returns ctx with the transaction attached. Stores that understand
// transactions pick it up via From.
func WithTx(ctx context.Context, txn *sql.Tx) context.Context {
	if txn == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, txn)
}

// From extracts the transaction from ctx if one is attached.
func From(ctx context.Context) (*sql.Tx, bool) {
	txn, ok := ctx.Value(txKey).(*sql.Tx)
	return txn, ok
}

// Run executes fn with a transaction attached to the context it receives.
// Commit on nil, rollback otherwise; a rollback failure never masks fn's
// error.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	txn, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(WithTx(ctx, txn)); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
