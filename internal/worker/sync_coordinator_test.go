package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

// mockSyncer implements Syncer for testing.
type mockSyncer struct {
	mu    sync.Mutex
	calls int
	errs  []error // returned in order; the last one repeats
}

func (m *mockSyncer) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	if len(m.errs) > 1 {
		m.errs = m.errs[1:]
	}
	return err
}

func (m *mockSyncer) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// waitForCalls polls until the syncer has been called n times.
func (m *mockSyncer) waitForCalls(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.getCalls() >= n {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func runCoordinator(t *testing.T, c *SyncCoordinator) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	return func() {
		cancelCtx()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("coordinator did not stop after cancellation")
		}
	}
}

func TestSyncCoordinator_RunsImmediately(t *testing.T) {
	syncer := &mockSyncer{}
	stop := runCoordinator(t, NewSyncCoordinator(syncer, time.Hour))
	defer stop()

	if !syncer.waitForCalls(1, 2*time.Second) {
		t.Fatal("Timed out waiting for the initial cycle")
	}
}

func TestSyncCoordinator_RunsOnEachTick(t *testing.T) {
	syncer := &mockSyncer{}
	stop := runCoordinator(t, NewSyncCoordinator(syncer, 20*time.Millisecond))
	defer stop()

	if !syncer.waitForCalls(3, 2*time.Second) {
		t.Fatalf("calls = %d, want at least 3", syncer.getCalls())
	}
}

func TestSyncCoordinator_ContinuesAfterFailures(t *testing.T) {
	// Given: a cycle that fails, one skipped because another is running, then success
	syncer := &mockSyncer{errs: []error{
		errors.New("central unreachable"),
		omsync.ErrSyncAlreadyRunning,
		nil,
	}}

	stop := runCoordinator(t, NewSyncCoordinator(syncer, 20*time.Millisecond))
	defer stop()

	// Then: the loop keeps ticking
	if !syncer.waitForCalls(4, 2*time.Second) {
		t.Fatalf("calls = %d, want at least 4", syncer.getCalls())
	}
}

func TestSyncCoordinator_StopsOnCancel(t *testing.T) {
	syncer := &mockSyncer{}
	stop := runCoordinator(t, NewSyncCoordinator(syncer, 10*time.Millisecond))
	if !syncer.waitForCalls(1, 2*time.Second) {
		t.Fatal("Timed out waiting for the initial cycle")
	}
	stop()

	calls := syncer.getCalls()
	time.Sleep(50 * time.Millisecond)
	if got := syncer.getCalls(); got != calls {
		t.Errorf("calls after stop = %d, want %d", got, calls)
	}
}
