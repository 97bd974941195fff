package synchroniser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// ProgressReporter receives the remaining work of a step.
type ProgressReporter interface {
	Progress(ctx context.Context, step omsync.Step, remaining int64) error
}

// CentralPuller copies central records into the sync buffer.
type CentralPuller struct {
	store  *store.SQLiteStore
	client central.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewCentralPuller creates a puller.
func NewCentralPuller(st *store.SQLiteStore, client central.Client, logger *slog.Logger) *CentralPuller {
	return &CentralPuller{store: st, client: client, logger: logger, now: time.Now}
}

// Pull fetches pages of central records after the persisted cursor until
// central has nothing more. Each record is buffered in the same transaction
// that advances the cursor to it, so an interrupted pull resumes after the
// last committed record.
func (p *CentralPuller) Pull(ctx context.Context, batchSize int, progress ProgressReporter) error {
	if batchSize <= 0 {
		return fmt.Errorf("invalid pull batch size %d", batchSize)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cursor, err := p.cursor(ctx)
		if err != nil {
			return err
		}

		batch, err := p.client.PullRecords(ctx, cursor, batchSize)
		if err != nil {
			return err
		}

		if err := progress.Progress(ctx, omsync.StepPullCentral, max(batch.MaxCursor-cursor, 0)); err != nil {
			return err
		}

		advanced := false
		for _, rec := range batch.Data {
			row, err := rec.Record.ToBufferRecord(p.now().UTC())
			if err != nil {
				return err
			}
			next, err := p.saveRecord(ctx, &row, rec.Cursor)
			if err != nil {
				return err
			}
			if next > cursor {
				cursor = next
				advanced = true
			}
		}

		if err := progress.Progress(ctx, omsync.StepPullCentral, max(batch.MaxCursor-cursor, 0)); err != nil {
			return err
		}

		p.logger.Debug("pulled central page",
			"component", "central_puller",
			"records", len(batch.Data),
			"cursor", cursor,
			"max_cursor", batch.MaxCursor,
		)

		switch {
		case advanced:
			continue
		case cursor < batch.MaxCursor:
			// Central filtered out records for this site, or re-sent ones
			// already behind the cursor; step over the gap.
			if err := p.setCursor(ctx, cursor+1); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *CentralPuller) cursor(ctx context.Context) (int64, error) {
	v, err := p.store.GetInt64(ctx, omsync.KeyPullCursor)
	if err != nil {
		return 0, fmt.Errorf("read pull cursor: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func (p *CentralPuller) setCursor(ctx context.Context, cursor int64) error {
	if err := p.store.SetInt64(context.WithoutCancel(ctx), omsync.KeyPullCursor, &cursor); err != nil {
		return fmt.Errorf("advance pull cursor: %w", err)
	}
	return nil
}

// saveRecord buffers row and moves the cursor to recordCursor in one
// transaction. A record at or behind the stored cursor is still buffered but
// leaves the cursor where it is. It returns the committed cursor.
func (p *CentralPuller) saveRecord(ctx context.Context, row *omsync.SyncBufferRecord, recordCursor int64) (int64, error) {
	txCtx := context.WithoutCancel(ctx)
	committed := recordCursor
	err := p.store.InTx(txCtx, func(tx *store.Tx) error {
		if err := tx.UpsertSyncBuffer(txCtx, row); err != nil {
			return err
		}
		stored, err := tx.GetInt64(txCtx, omsync.KeyPullCursor)
		if err != nil {
			return err
		}
		if stored != nil && *stored >= recordCursor {
			committed = *stored
			return nil
		}
		return tx.SetInt64(txCtx, omsync.KeyPullCursor, &recordCursor)
	})
	if err != nil {
		return 0, fmt.Errorf("save sync buffer or cursor: %w", err)
	}
	return committed, nil
}
