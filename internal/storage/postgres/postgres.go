// Package postgres implements the domain repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/retail-orders/db"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DB is the query surface repositories use. Both *pgxpool.Pool and pgx.Tx
// satisfy it, so the same repository code runs inside and outside a
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txKey carries the active transaction through context.
type txKey struct{}

// Store wraps the pool and runs units of work. One order mutation is one
// transaction: repositories resolve the transaction from ctx, so every write
// issued under InTx commits or rolls back atomically.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a transaction carried by the derived context. A nested
// call joins the enclosing transaction instead of opening a new one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// InSavepoint runs fn inside a savepoint on the enclosing transaction, so a
// failure in fn rolls back only fn's writes without poisoning the rest of the
// transaction. Without an enclosing transaction it behaves like InTx.
func (s *Store) InSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := txFrom(ctx)
	if tx == nil {
		return s.InTx(ctx, fn)
	}
	// pgx.BeginFunc on a pgx.Tx issues SAVEPOINT / RELEASE instead of BEGIN.
	return pgx.BeginFunc(ctx, tx, func(nested pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, nested))
	})
}

// db resolves the active querier: the transaction when one is in flight,
// otherwise the pool.
func (s *Store) db(ctx context.Context) DB {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}
