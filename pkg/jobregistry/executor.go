package jobregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
	"github.com/3leaps/taglaunch/pkg/paths"
	"github.com/3leaps/taglaunch/pkg/signal"
)

// ErrJobInFlight is returned when another tagger job is already launching
// or running on this machine. The signal and log files are shared, so only
// one job can be tracked at a time.
var ErrJobInFlight = errors.New("a tagger job is already in flight on this machine")

// Builder produces launch descriptors. *command.Builder implements it.
type Builder interface {
	Build(spec command.JobSpec) (*command.LaunchDescriptor, error)
}

// Spawner starts descriptors in the background. *launcher.Launcher
// implements it.
type Spawner interface {
	Launch(ctx context.Context, desc *command.LaunchDescriptor) (*launcher.Handle, error)
}

// ExecutorConfig holds the fixed paths an Executor coordinates through.
type ExecutorConfig struct {
	// SignalPath is the completion-signal file.
	// Default: paths.SignalPath()
	SignalPath string

	// LockPath is the machine-wide launch lock.
	// Default: paths.LockPath()
	LockPath string
}

// LaunchOptions annotate a launch.
type LaunchOptions struct {
	Name          string
	PlannedImages int

	// Force skips the running-job check. The launch lock is still taken.
	Force bool
}

// Executor sequences launches and records their lifecycle.
//
// A launch is: take the machine lock, clear any stale signal file, build
// the descriptor, spawn it, and persist the record. The signal deletion
// happens before the spawn so the new job's first write is never confused
// with a previous run's.
type Executor struct {
	store   *Store
	builder Builder
	spawner Spawner
	cfg     ExecutorConfig
	logger  *zap.Logger

	// mu serializes record writes between heartbeats and Finish.
	mu sync.Mutex
}

func NewExecutor(store *Store, b Builder, sp Spawner, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.SignalPath == "" {
		cfg.SignalPath = paths.SignalPath()
	}
	if cfg.LockPath == "" {
		cfg.LockPath = paths.LockPath()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: store, builder: b, spawner: sp, cfg: cfg, logger: logger}
}

func (e *Executor) Store() *Store {
	return e.store
}

// SignalPath returns the signal file jobs from this executor write.
func (e *Executor) SignalPath() string {
	return e.cfg.SignalPath
}

// Launch starts spec in the background and returns its running record.
//
// Construction and spawn failures are returned as-is (command.ConstructionError,
// launcher.SpawnError) and leave no record behind.
func (e *Executor) Launch(ctx context.Context, spec command.JobSpec, opts LaunchOptions) (*JobRecord, error) {
	if e == nil || e.store == nil || e.builder == nil || e.spawner == nil {
		return nil, fmt.Errorf("executor is not initialized")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	lock := flock.New(e.cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire launch lock: %w", err)
	}
	if !locked {
		return nil, ErrJobInFlight
	}
	defer func() { _ = lock.Unlock() }()

	if !opts.Force {
		running, err := e.store.Running()
		if err != nil {
			return nil, err
		}
		if len(running) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrJobInFlight, running[0].JobID)
		}
	}

	if err := signal.Remove(e.cfg.SignalPath); err != nil {
		return nil, err
	}

	desc, err := e.builder.Build(spec)
	if err != nil {
		return nil, err
	}

	h, err := e.spawner.Launch(ctx, desc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	started := h.StartedAt.UTC()
	rec := &JobRecord{
		JobID:          uuid.New().String(),
		Name:           strings.TrimSpace(opts.Name),
		State:          JobStateRunning,
		Targets:        append([]string(nil), spec.Targets...),
		DryRun:         spec.DryRun,
		Resume:         spec.Resume,
		Expected:       spec.Expected(),
		PlannedImages:  opts.PlannedImages,
		Platform:       desc.Platform,
		Mode:           string(desc.Mode),
		PID:            h.PID,
		CommandLine:    desc.CommandLine,
		LogPath:        desc.LogPath,
		SignalPath:     e.cfg.SignalPath,
		BatchScript:    desc.BatchScript,
		LauncherScript: desc.LauncherScript,
		CreatedAt:      now,
		StartedAt:      &started,
		LastHeartbeat:  &now,
	}
	if err := e.store.Write(rec); err != nil {
		// The job is running regardless; report it so the caller can still
		// monitor the signal file.
		e.logger.Warn("Job launched but its record could not be saved", zap.Int("pid", h.PID), zap.Error(err))
		return rec, fmt.Errorf("save job record: %w", err)
	}

	e.logger.Info("Job started",
		zap.String("job_id", rec.JobID),
		zap.Int("pid", rec.PID),
		zap.Int("targets", len(rec.Targets)),
		zap.Int("expected", rec.Expected))
	return rec, nil
}

// Monitor creates a completion monitor for rec.
func (e *Executor) Monitor(rec *JobRecord, cfg monitor.Config, logger *zap.Logger, opts ...monitor.Option) (*monitor.Monitor, error) {
	if rec == nil {
		return nil, fmt.Errorf("job record is nil")
	}
	if logger == nil {
		logger = e.logger
	}
	path := rec.SignalPath
	if path == "" {
		path = e.cfg.SignalPath
	}
	return monitor.New(path, rec.Expected, cfg, logger.With(zap.String("job_id", rec.JobID)), opts...)
}

// Finish records a monitor outcome on rec and persists it.
//
// A cancelled outcome only refreshes the heartbeat: the job is still
// running and may be watched again.
func (e *Executor) Finish(rec *JobRecord, out monitor.Outcome) error {
	if rec == nil {
		return fmt.Errorf("job record is nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	rec.LastHeartbeat = &now
	rec.Outcome = string(out.Kind)
	rec.Error = ""
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}

	switch out.Kind {
	case monitor.OutcomeCompleted:
		rec.State = JobStateSuccess
		rec.Stats = out.Stats
	case monitor.OutcomeDegraded:
		rec.State = JobStatePartial
	case monitor.OutcomeTimedOut:
		rec.State = JobStateUnknown
	case monitor.OutcomeCancelled:
		return e.store.Write(rec)
	default:
		return fmt.Errorf("unknown outcome kind %q", out.Kind)
	}
	rec.EndedAt = &now
	return e.store.Write(rec)
}

// Heartbeat refreshes rec's LastHeartbeat every interval until the returned
// stop function is called or ctx is done.
func (e *Executor) Heartbeat(ctx context.Context, rec *JobRecord, interval time.Duration) (stop func()) {
	if rec == nil || interval <= 0 {
		return func() {}
	}

	t := time.NewTicker(interval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				e.mu.Lock()
				if rec.State == JobStateRunning {
					now := time.Now().UTC()
					rec.LastHeartbeat = &now
					_ = e.store.Write(rec)
				}
				e.mu.Unlock()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
			<-stopped
		})
	}
}
