package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// Syncer runs one sync cycle. Implemented by synchroniser.Synchroniser.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncCoordinator runs sync cycles on an interval.
type SyncCoordinator struct {
	syncer   Syncer
	interval time.Duration
}

// NewSyncCoordinator creates a coordinator for syncer.
func NewSyncCoordinator(syncer Syncer, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		syncer:   syncer,
		interval: interval,
	}
}

// Run starts the coordinator loop. A cycle runs immediately and then on each
// tick. It blocks until ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle runs one cycle. Failures are logged; the next tick retries.
func (c *SyncCoordinator) runCycle(ctx context.Context) {
	err := c.syncer.Sync(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, omsync.ErrSyncAlreadyRunning):
		// A manual trigger got there first.
		slog.Debug("sync cycle skipped",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "cycle_skipped",
			"reason", "already_running",
		)
	case ctx.Err() != nil:
		return // Graceful shutdown
	default:
		slog.Warn("sync cycle failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "cycle_failed",
			"error", err,
		)
	}
}
