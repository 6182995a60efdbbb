package store

import (
	"context"
	"database/sql"
	"fmt"
)

// txKey carries the open transaction of one Store in a context.
type txKey struct {
	store *Store
}

// conn is what statements run on: an open transaction or the pool.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx runs fn inside a transaction and commits if fn returns nil.
//
// Tx is reentrant: when ctx already carries a transaction of this store,
// fn joins it and nothing is committed here. An error from the inner fn
// propagates to the outermost Tx, which rolls the whole composite back.
// fn must use the context it receives so its statements run in the
// transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.InTx(ctx) {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(context.WithValue(ctx, txKey{s}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// InTx reports whether ctx carries an open transaction of this store.
func (s *Store) InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{s}).(*sql.Tx)
	return ok
}

func (s *Store) conn(ctx context.Context) conn {
	if tx, ok := ctx.Value(txKey{s}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}
