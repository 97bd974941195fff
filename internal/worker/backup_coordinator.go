package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ria8651/open-msupply/internal/snapshot"
)

// BackupSource writes a consistent copy of the site database.
// Implemented by store.SQLiteStore.
type BackupSource interface {
	BackupTo(ctx context.Context, destPath string) error
}

// BackupCoordinator writes compressed database backups on an interval and
// ships them through an uploader.
type BackupCoordinator struct {
	source   BackupSource
	uploader snapshot.Uploader
	dir      string
	interval time.Duration
	now      func() time.Time
}

// NewBackupCoordinator creates a coordinator writing backups into dir.
// The uploader parameter is optional; if nil, backups stay local.
func NewBackupCoordinator(
	source BackupSource,
	uploader snapshot.Uploader,
	dir string,
	interval time.Duration,
) *BackupCoordinator {
	return &BackupCoordinator{
		source:   source,
		uploader: uploader,
		dir:      dir,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the backup loop. It blocks until ctx is cancelled.
//
// The first backup waits for the first tick so startup is not slowed by a
// full database copy.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			if _, err := c.BackupOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("backup failed",
					"component", "worker",
					"worker", "backup-coordinator",
					"action", "backup_failed",
					"error", err,
				)
			}
		}
	}
}

// BackupOnce writes one compressed backup and uploads it. It returns the
// path of the compressed file. Upload failures are logged but not returned;
// the local backup remains valid.
func (c *BackupCoordinator) BackupOnce(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := c.now().UTC().Format("20060102T150405Z") + ".db"
	raw := filepath.Join(c.dir, name)
	if err := c.source.BackupTo(ctx, raw); err != nil {
		return "", err
	}
	defer os.Remove(raw)

	compressed := raw + snapshot.CompressedExt
	size, err := snapshot.Compress(raw, compressed)
	if err != nil {
		return "", err
	}

	slog.Info("backup written",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "backup_written",
		"path", compressed,
		"bytes", size,
	)

	if c.uploader != nil {
		c.upload(ctx, filepath.Base(compressed), compressed)
	}
	return compressed, nil
}

func (c *BackupCoordinator) upload(ctx context.Context, name, path string) {
	if err := c.uploader.Upload(ctx, name, path); err != nil {
		slog.Warn("backup upload failed",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "backup_upload_failed",
			"name", name,
			"error", err,
		)
		return
	}
	slog.Info("backup uploaded",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "backup_uploaded",
		"name", name,
	)
}
