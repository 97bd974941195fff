package synchroniser

import (
	"context"
	"errors"
	"testing"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

func TestSyncLogger_Progress(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l, err := NewSyncLogger(ctx, st, discardLogger())
	if err != nil {
		t.Fatalf("NewSyncLogger() error = %v", err)
	}

	steps := []struct {
		remaining int64
		wantTotal int64
		wantDone  int64
	}{
		{remaining: 10, wantTotal: 10, wantDone: 0},
		{remaining: 4, wantTotal: 10, wantDone: 6},
		// More work appeared mid-step.
		{remaining: 12, wantTotal: 18, wantDone: 6},
		{remaining: 0, wantTotal: 18, wantDone: 18},
	}
	for _, s := range steps {
		if err := l.Progress(ctx, omsync.StepPullCentral, s.remaining); err != nil {
			t.Fatalf("Progress(%d) error = %v", s.remaining, err)
		}
		got := l.Log().PullCentral
		if *got.Total != s.wantTotal || *got.Done != s.wantDone {
			t.Errorf("after remaining=%d: total=%d done=%d, want %d/%d",
				s.remaining, *got.Total, *got.Done, s.wantTotal, s.wantDone)
		}
	}

	if l.Log().Integration.Total != nil {
		t.Error("other steps should be untouched")
	}
}

func TestSyncLogger_PersistsSteps(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	l, err := NewSyncLogger(ctx, st, discardLogger())
	if err != nil {
		t.Fatalf("NewSyncLogger() error = %v", err)
	}

	_ = l.StartStep(ctx, omsync.StepIntegrate)
	_ = l.Progress(ctx, omsync.StepIntegrate, 2)
	_ = l.DoneStep(ctx, omsync.StepIntegrate)
	if err := l.Fail(ctx, omsync.StagePush, errors.New("central unreachable")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	saved, err := st.LatestSyncLog(ctx)
	if err != nil {
		t.Fatalf("LatestSyncLog() error = %v", err)
	}
	if saved.ID != l.Log().ID {
		t.Errorf("ID = %s, want %s", saved.ID, l.Log().ID)
	}
	if saved.Integration.StartedAt == nil || saved.Integration.FinishedAt == nil {
		t.Errorf("integration step = %+v, want started and finished", saved.Integration)
	}
	if saved.ErrorStage == nil || *saved.ErrorStage != "push" {
		t.Errorf("ErrorStage = %v, want push", saved.ErrorStage)
	}
	if saved.ErrorMessage == nil || *saved.ErrorMessage != "central unreachable" {
		t.Errorf("ErrorMessage = %v", saved.ErrorMessage)
	}
	if saved.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
}
