package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a scoped write transaction. Every repository operation available on
// SQLiteStore is available on Tx and takes effect only on Commit.
type Tx struct {
	queries
	tx *sql.Tx
}

// BeginTx starts a database transaction.
// Callers should defer Rollback; it is a no-op after Commit.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{queries: queries{conn: tx}, tx: tx}, nil
}

// Commit makes the transaction's writes durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback abandons the transaction.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
