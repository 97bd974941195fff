package synchroniser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ria8651/open-msupply/internal/central"
	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/translator"
)

// State is the driver's position in its cycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// Config holds the batch sizes of a cycle.
type Config struct {
	PullBatchSize int
	PushBatchSize int
}

// Status is a snapshot of the driver for status queries.
type Status struct {
	State          State      `json:"state"`
	IsSyncing      bool       `json:"is_syncing"`
	LastError      *string    `json:"last_error,omitempty"`
	LastStage      *string    `json:"last_stage,omitempty"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
}

// Synchroniser runs pull, integrate and push cycles, one at a time.
type Synchroniser struct {
	store      *store.SQLiteStore
	config     Config
	logger     *slog.Logger
	siteInfo   *SiteInfoResolver
	puller     *CentralPuller
	integrator *Integrator
	pusher     *RemotePusher

	running atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a synchroniser.
func New(st *store.SQLiteStore, client central.Client, registry *translator.Registry, cfg Config, logger *slog.Logger) *Synchroniser {
	return &Synchroniser{
		store:      st,
		config:     cfg,
		logger:     logger,
		siteInfo:   NewSiteInfoResolver(st, client, logger),
		puller:     NewCentralPuller(st, client, logger),
		integrator: NewIntegrator(st, registry, logger),
		pusher:     NewRemotePusher(st, client, logger),
		status:     Status{State: StateIdle},
	}
}

// SiteInfo returns the resolver used to bootstrap site identity.
func (s *Synchroniser) SiteInfo() *SiteInfoResolver {
	return s.siteInfo
}

// IsRunning reports whether a cycle is in progress.
func (s *Synchroniser) IsRunning() bool {
	return s.running.Load()
}

// Status returns a snapshot of the driver state.
func (s *Synchroniser) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Sync runs one full cycle. It returns omsync.ErrSyncAlreadyRunning if a
// cycle is in progress, and a *omsync.StageError naming the failed stage
// otherwise. Cancelling ctx stops the cycle at its next network call or
// transaction boundary.
func (s *Synchroniser) Sync(ctx context.Context) error {
	run, err := s.Begin()
	if err != nil {
		return err
	}
	return run(ctx)
}

// Begin takes the single-run guard and returns the cycle to run, or
// omsync.ErrSyncAlreadyRunning. The caller must invoke run exactly once;
// the guard is released when run returns.
func (s *Synchroniser) Begin() (run func(ctx context.Context) error, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, omsync.ErrSyncAlreadyRunning
	}
	var once sync.Once
	return func(ctx context.Context) error {
		err := omsync.ErrSyncAlreadyRunning
		once.Do(func() { err = s.run(ctx) })
		return err
	}, nil
}

func (s *Synchroniser) run(ctx context.Context) error {
	defer s.running.Store(false)

	start := time.Now().UTC()
	s.mu.Lock()
	s.status.State = StateRunning
	s.status.IsSyncing = true
	s.status.LastStartedAt = &start
	s.mu.Unlock()

	s.logger.Info("sync cycle started", "component", "synchroniser")

	err := s.cycle(ctx)

	finish := time.Now().UTC()
	s.mu.Lock()
	s.status.IsSyncing = false
	s.status.LastFinishedAt = &finish
	if err != nil {
		msg := err.Error()
		s.status.State = StateFailed
		s.status.LastError = &msg
		var stageErr *omsync.StageError
		if errors.As(err, &stageErr) {
			stage := string(stageErr.Stage)
			s.status.LastStage = &stage
		}
	} else {
		s.status.State = StateIdle
		s.status.LastError = nil
		s.status.LastStage = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("sync cycle failed",
			"component", "synchroniser",
			"error", err,
			"duration_ms", finish.Sub(start).Milliseconds(),
		)
		return err
	}
	s.logger.Info("sync cycle completed",
		"component", "synchroniser",
		"duration_ms", finish.Sub(start).Milliseconds(),
	)
	return nil
}

func (s *Synchroniser) cycle(ctx context.Context) error {
	log, err := NewSyncLogger(ctx, s.store, s.logger)
	if err != nil {
		return err
	}

	if err := s.runStages(ctx, log); err != nil {
		var stageErr *omsync.StageError
		stage := omsync.Stage("unknown")
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		if logErr := log.Fail(context.WithoutCancel(ctx), stage, err); logErr != nil {
			s.logger.Warn("failed to record sync error", "component", "synchroniser", "error", logErr)
		}
		return err
	}
	return log.Finish(ctx)
}

func (s *Synchroniser) runStages(ctx context.Context, log *SyncLogger) error {
	siteID, err := s.ensureSiteID(ctx)
	if err != nil {
		return &omsync.StageError{Stage: omsync.StageSiteInfo, Err: err}
	}

	if err := s.step(ctx, log, omsync.StepPullCentral, func() error {
		return s.puller.Pull(ctx, s.config.PullBatchSize, log)
	}); err != nil {
		return &omsync.StageError{Stage: omsync.StagePull, Err: err}
	}

	if err := s.step(ctx, log, omsync.StepIntegrate, func() error {
		res, err := s.integrator.IntegratePending(ctx, log)
		if res != nil {
			s.logger.Info("integration finished",
				"component", "synchroniser",
				"integrated", res.Integrated,
				"failed", res.Failed,
			)
		}
		return err
	}); err != nil {
		return &omsync.StageError{Stage: omsync.StageIntegrate, Err: err}
	}

	active, err := ResolveActiveStores(ctx, s.store)
	if err != nil {
		return &omsync.StageError{Stage: omsync.StageActiveStores, Err: err}
	}

	if err := s.step(ctx, log, omsync.StepPushRemote, func() error {
		_, err := s.pusher.Push(ctx, siteID, active, s.config.PushBatchSize, log)
		return err
	}); err != nil {
		return &omsync.StageError{Stage: omsync.StagePush, Err: err}
	}
	return nil
}

func (s *Synchroniser) step(ctx context.Context, log *SyncLogger, step omsync.Step, fn func() error) error {
	if err := log.StartStep(ctx, step); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return log.DoneStep(ctx, step)
}

// ensureSiteID bootstraps site identity from central when it is not yet set.
func (s *Synchroniser) ensureSiteID(ctx context.Context) (int64, error) {
	id, ok, err := s.siteInfo.GetSiteID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read site id: %w", err)
	}
	if ok {
		return id, nil
	}
	info, err := s.siteInfo.RequestAndSet(ctx)
	if err != nil {
		return 0, err
	}
	return info.SiteID, nil
}
