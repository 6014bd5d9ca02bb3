package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryable is the subset of pgx operations shared by *pgxpool.Pool and
// pgx.Tx. Repositories resolve one per call so the same code runs inside
// and outside a transaction.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type contextKey string

const txContextKey contextKey = "db_tx"

// TxFromContext returns the transaction stored in ctx by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey).(pgx.Tx)
	return tx
}

// ConnFromContext returns the context-scoped connection to run queries on,
// or nil when no transaction is active.
func ConnFromContext(ctx context.Context) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is stored in the
// context passed to fn, so any repository resolving its connection via
// ConnFromContext participates in it. Commit happens only when fn returns
// nil; any error (or panic) rolls everything back.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txContextKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxManager runs functions inside pool transactions. Services depend on it
// through a narrow interface so tests can substitute a pass-through runner.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Run executes fn inside a transaction stored on the context.
func (m *TxManager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, m.pool, fn)
}
