package synchroniser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/translator"
)

// IntegrationResult summarises one integration run.
type IntegrationResult struct {
	Integrated int
	Failed     int
}

// Integrator drains pending sync buffer rows into domain tables.
type Integrator struct {
	store    *store.SQLiteStore
	registry *translator.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewIntegrator creates an integrator dispatching through registry.
func NewIntegrator(st *store.SQLiteStore, registry *translator.Registry, logger *slog.Logger) *Integrator {
	return &Integrator{store: st, registry: registry, logger: logger, now: time.Now}
}

type failedRecord struct {
	record omsync.SyncBufferRecord
	err    *omsync.IntegrationError
}

// IntegratePending integrates every pending row in received order. Rows that
// fail are retried once after the pass when the pass made other progress,
// since a row they depend on may have arrived later in the buffer. A failure
// is written to its row as soon as the attempt rolls back, so an aborted run
// never leaves an attempted row without an outcome, and it never stops the
// rest of the run.
func (in *Integrator) IntegratePending(ctx context.Context, progress ProgressReporter) (*IntegrationResult, error) {
	pending, err := in.store.QuerySyncBuffer(ctx, store.PendingFilter())
	if err != nil {
		return nil, fmt.Errorf("query pending sync buffer: %w", err)
	}

	remaining := int64(len(pending))
	if err := progress.Progress(ctx, omsync.StepIntegrate, remaining); err != nil {
		return nil, err
	}

	result := &IntegrationResult{}
	var failed []failedRecord
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		integrationErr, err := in.integrate(ctx, rec)
		if err != nil {
			return result, err
		}
		if integrationErr != nil {
			failed = append(failed, failedRecord{record: rec, err: integrationErr})
		} else {
			result.Integrated++
		}
		remaining--
		if err := progress.Progress(ctx, omsync.StepIntegrate, remaining); err != nil {
			return result, err
		}
	}

	if len(failed) > 0 && result.Integrated > 0 {
		retry := failed
		failed = nil
		for _, f := range retry {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			integrationErr, err := in.integrate(ctx, f.record)
			if err != nil {
				return result, err
			}
			if integrationErr != nil {
				failed = append(failed, failedRecord{record: f.record, err: integrationErr})
				continue
			}
			result.Integrated++
		}
	}

	for _, f := range failed {
		in.logger.Warn("record failed integration",
			"component", "integrator",
			"table_name", f.record.TableName,
			"record_id", f.record.RecordID,
			"error", f.err,
		)
	}
	result.Failed = len(failed)
	return result, nil
}

// integrate makes one attempt at rec and records its outcome on the row.
// A returned *omsync.IntegrationError has already been written to the row.
func (in *Integrator) integrate(ctx context.Context, rec omsync.SyncBufferRecord) (*omsync.IntegrationError, error) {
	integrationErr, err := in.integrateOne(ctx, rec)
	if err != nil || integrationErr == nil {
		return nil, err
	}

	in.logger.Debug("integration attempt failed",
		"component", "integrator",
		"table_name", rec.TableName,
		"record_id", rec.RecordID,
		"error", integrationErr,
	)
	if err := in.store.MarkIntegrationError(context.WithoutCancel(ctx), rec.RecordID, integrationErr.Error()); err != nil {
		return nil, fmt.Errorf("record integration error: %w", err)
	}
	return integrationErr, nil
}

// integrateOne applies rec and stamps it integrated in one transaction.
// The first return is the record-scoped failure, returned after the
// transaction has rolled back; the second aborts the run.
func (in *Integrator) integrateOne(ctx context.Context, rec omsync.SyncBufferRecord) (*omsync.IntegrationError, error) {
	t, ok := in.registry.Get(rec.TableName)
	if !ok {
		return &omsync.IntegrationError{TableName: rec.TableName, RecordID: rec.RecordID, Err: translator.ErrUnknownTable}, nil
	}

	txCtx := context.WithoutCancel(ctx)
	tx, err := in.store.BeginTx(txCtx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := t.Integrate(txCtx, tx, &rec); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return nil, fmt.Errorf("roll back %s %s: %w", rec.TableName, rec.RecordID, rbErr)
		}
		return &omsync.IntegrationError{TableName: rec.TableName, RecordID: rec.RecordID, Err: err}, nil
	}
	if err := tx.MarkIntegrated(txCtx, rec.RecordID, in.now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return nil, nil
}
