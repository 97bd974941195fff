package store

import (
	"context"
	"errors"
	"testing"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

func TestTx_RollbackDiscardsBufferAndCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Given: a transaction that writes a buffer row and advances the cursor
	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	rec := bufferRecord("r1", "store", omsync.ActionUpsert, time.Now())
	if err := tx.UpsertSyncBuffer(ctx, &rec); err != nil {
		t.Fatalf("UpsertSyncBuffer() error = %v", err)
	}
	cursor := int64(1)
	if err := tx.SetInt64(ctx, omsync.KeyPullCursor, &cursor); err != nil {
		t.Fatalf("SetInt64() error = %v", err)
	}

	// When: it is rolled back
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	// Then: neither write is visible
	got, _ := s.GetInt64(ctx, omsync.KeyPullCursor)
	if got != nil {
		t.Errorf("cursor = %d, want unset", *got)
	}
	if _, err := s.GetSyncBuffer(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("buffer row should not exist, err = %v", err)
	}
}

func TestTx_CommitThenRollbackIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	cursor := int64(3)
	_ = tx.SetInt64(ctx, omsync.KeyPullCursor, &cursor)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit error = %v, want nil", err)
	}

	got, _ := s.GetInt64(ctx, omsync.KeyPullCursor)
	if got == nil || *got != 3 {
		t.Errorf("cursor = %v, want 3", got)
	}
}

func TestInTx_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *Tx) error {
		v := "x"
		if err := tx.SetString(ctx, "k", &v); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	got, _ := s.GetString(ctx, "k")
	if got != nil {
		t.Errorf("value = %q, want unset", *got)
	}
}
