package synchroniser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/types"
)

// SyncLogger records the progress of one cycle in the sync_log table.
// It must not be used while a store transaction is open.
type SyncLogger struct {
	store  *store.SQLiteStore
	logger *slog.Logger
	log    types.SyncLog
	now    func() time.Time
}

// NewSyncLogger starts and persists a new sync_log row.
func NewSyncLogger(ctx context.Context, st *store.SQLiteStore, logger *slog.Logger) (*SyncLogger, error) {
	l := &SyncLogger{store: st, logger: logger, now: time.Now}
	l.log = types.SyncLog{ID: ulid.Make().String(), StartedAt: l.now().UTC()}
	if err := l.save(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SyncLogger) save(ctx context.Context) error {
	if err := l.store.SaveSyncLog(ctx, &l.log); err != nil {
		return fmt.Errorf("save sync log: %w", err)
	}
	return nil
}

func (l *SyncLogger) step(s omsync.Step) *types.SyncLogStep {
	switch s {
	case omsync.StepPullCentral:
		return &l.log.PullCentral
	case omsync.StepIntegrate:
		return &l.log.Integration
	default:
		return &l.log.PushRemote
	}
}

// StartStep marks a step as begun.
func (l *SyncLogger) StartStep(ctx context.Context, s omsync.Step) error {
	now := l.now().UTC()
	l.step(s).StartedAt = &now
	return l.save(ctx)
}

// Progress reports how much work remains for a step. The first report fixes
// the total; later reports derive done from it, growing the total if more
// work has appeared since.
func (l *SyncLogger) Progress(ctx context.Context, s omsync.Step, remaining int64) error {
	if remaining < 0 {
		remaining = 0
	}
	st := l.step(s)
	if st.Total == nil || remaining > *st.Total {
		total := remaining
		if st.Total != nil && st.Done != nil {
			total = remaining + *st.Done
		}
		st.Total = &total
	}
	done := *st.Total - remaining
	st.Done = &done

	l.logger.Debug("sync progress",
		"component", "synchroniser",
		"step", string(s),
		"total", *st.Total,
		"done", done,
	)
	return l.save(ctx)
}

// DoneStep marks a step as finished.
func (l *SyncLogger) DoneStep(ctx context.Context, s omsync.Step) error {
	now := l.now().UTC()
	l.step(s).FinishedAt = &now
	return l.save(ctx)
}

// Fail records the failing stage and finishes the log.
func (l *SyncLogger) Fail(ctx context.Context, stage omsync.Stage, err error) error {
	st, msg := string(stage), err.Error()
	l.log.ErrorStage, l.log.ErrorMessage = &st, &msg
	return l.Finish(ctx)
}

// Finish stamps the finish time.
func (l *SyncLogger) Finish(ctx context.Context) error {
	now := l.now().UTC()
	l.log.FinishedAt = &now
	return l.save(ctx)
}

// Log returns a copy of the current log.
func (l *SyncLogger) Log() types.SyncLog {
	return l.log
}
