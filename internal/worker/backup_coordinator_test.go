package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ria8651/open-msupply/internal/snapshot"
	"github.com/ria8651/open-msupply/internal/store"
)

// mockUploader records uploads.
type mockUploader struct {
	mu    sync.Mutex
	names []string
	paths []string
	err   error
}

func (m *mockUploader) Upload(ctx context.Context, name, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	m.paths = append(m.paths, filePath)
	return m.err
}

func (m *mockUploader) uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

// failingSource fails every backup.
type failingSource struct{}

func (failingSource) BackupTo(ctx context.Context, destPath string) error {
	return errors.New("disk full")
}

func newFileStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "site.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
}

func TestBackupCoordinator_BackupOnce(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	v := int64(42)
	if err := st.SetInt64(ctx, "central_sync_pull_cursor", &v); err != nil {
		t.Fatalf("SetInt64() error = %v", err)
	}

	dir := filepath.Join(t.TempDir(), "backups")
	uploader := &mockUploader{}
	c := NewBackupCoordinator(st, uploader, dir, time.Hour)
	c.now = fixedClock

	// When: a backup is taken
	path, err := c.BackupOnce(ctx)
	if err != nil {
		t.Fatalf("BackupOnce() error = %v", err)
	}

	// Then: only the compressed file remains and it was uploaded
	if filepath.Base(path) != "20240501T123000Z.db.sz" {
		t.Errorf("backup path = %q", path)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("backup dir has %d entries, want 1", len(entries))
	}
	if got := uploader.uploads(); len(got) != 1 || got[0] != "20240501T123000Z.db.sz" {
		t.Errorf("uploads = %v", got)
	}

	// And: the backup restores to a working database
	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := snapshot.Decompress(path, restored); err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	rs, err := store.NewSQLiteStore(restored)
	if err != nil {
		t.Fatalf("open restored store: %v", err)
	}
	defer rs.Close()
	got, err := rs.GetInt64(ctx, "central_sync_pull_cursor")
	if err != nil || got == nil || *got != 42 {
		t.Errorf("restored cursor = %v, %v, want 42", got, err)
	}
}

func TestBackupCoordinator_UploadFailureKeepsLocalBackup(t *testing.T) {
	st := newFileStore(t)
	dir := t.TempDir()
	c := NewBackupCoordinator(st, &mockUploader{err: errors.New("bucket missing")}, dir, time.Hour)

	path, err := c.BackupOnce(context.Background())
	if err != nil {
		t.Fatalf("BackupOnce() error = %v, upload failures must not fail the backup", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local backup missing: %v", err)
	}
}

func TestBackupCoordinator_NilUploader(t *testing.T) {
	st := newFileStore(t)
	c := NewBackupCoordinator(st, nil, t.TempDir(), time.Hour)

	path, err := c.BackupOnce(context.Background())
	if err != nil {
		t.Fatalf("BackupOnce() error = %v", err)
	}
	if !strings.HasSuffix(path, snapshot.CompressedExt) {
		t.Errorf("path = %q, want %s suffix", path, snapshot.CompressedExt)
	}
}

func TestBackupCoordinator_SourceFailure(t *testing.T) {
	uploader := &mockUploader{}
	c := NewBackupCoordinator(failingSource{}, uploader, t.TempDir(), time.Hour)

	if _, err := c.BackupOnce(context.Background()); err == nil {
		t.Fatal("BackupOnce() expected error")
	}
	if len(uploader.uploads()) != 0 {
		t.Error("nothing should be uploaded when the backup fails")
	}
}

func TestBackupCoordinator_RunBacksUpOnTick(t *testing.T) {
	st := newFileStore(t)
	uploader := &mockUploader{}
	c := NewBackupCoordinator(st, uploader, t.TempDir(), 20*time.Millisecond)
	// Distinct names per tick.
	var mu sync.Mutex
	tick := 0
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return fixedClock().Add(time.Duration(tick) * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(uploader.uploads()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("uploads = %d, want at least 2", len(uploader.uploads()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
