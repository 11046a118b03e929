// Package monitor decides when a detached tagger job has finished by
// polling its completion-signal file.
//
// The job's process is never awaited. Instead the monitor waits for the
// signal's sequence counter to reach the expected number of invocations
// and then stay unchanged for a stability window, so a file caught in the
// middle of a rewrite is never reported as final. The wait is bounded by
// MaxWait; a timeout leaves the job running.
//
// A Monitor runs as a single goroutine whose only suspension point is the
// sleep between polls. The sleep is injectable so tests can drive the state
// machine on virtual time.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/taglaunch/pkg/signal"
)

// ErrAlreadyStarted is reported when a Monitor is run more than once.
var ErrAlreadyStarted = errors.New("monitor already started")

// Config tunes the polling loop.
type Config struct {
	// PollInterval is the delay between signal reads.
	// Default: 5s
	PollInterval time.Duration

	// MaxWait bounds the whole wait. Reaching it is terminal.
	// Default: 4h
	MaxWait time.Duration

	// StabilityWindow is how long the sequence must stay unchanged at or
	// above the expected count before the job is declared done.
	// Default: 45s
	StabilityWindow time.Duration

	// ProgressLogInterval throttles progress log lines.
	// Default: 60s
	ProgressLogInterval time.Duration

	// SettleDelay is the pause before the final read, letting a trailing
	// write land. Negative disables it.
	// Default: 2s
	SettleDelay time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:        5 * time.Second,
		MaxWait:             4 * time.Hour,
		StabilityWindow:     45 * time.Second,
		ProgressLogInterval: 60 * time.Second,
		SettleDelay:         2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = d.StabilityWindow
	}
	if c.ProgressLogInterval <= 0 {
		c.ProgressLogInterval = d.ProgressLogInterval
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = d.SettleDelay
	}
	return c
}

// SleepFunc suspends for d or until ctx is done, returning ctx's error in
// the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Monitor.
type Option func(*Monitor)

// WithSleep replaces the real-time sleep between polls.
func WithSleep(fn SleepFunc) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.sleep = fn
		}
	}
}

// WithProgress registers fn to receive the same throttled progress updates
// that are logged, plus one update when the expected sequence is first
// reached. fn runs on the monitor goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(m *Monitor) {
		m.progress = fn
	}
}

// Monitor watches one job's signal file.
//
// A Monitor is single use.
type Monitor struct {
	path     string
	expected int
	cfg      Config
	logger   *zap.Logger
	sleep    SleepFunc
	progress func(Progress)

	state   atomic.Int32
	started atomic.Bool
}

// New creates a Monitor for the signal file at signalPath that completes
// once the sequence reaches expected.
func New(signalPath string, expected int, cfg Config, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if signalPath == "" {
		return nil, errors.New("signal path is required")
	}
	if expected < 1 {
		return nil, fmt.Errorf("expected count must be >= 1, got %d", expected)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		path:     signalPath,
		expected: expected,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration after defaults.
func (m *Monitor) Config() Config { return m.cfg }

// State returns the current state. It is safe to call from any goroutine.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}

// Start runs the monitor in a new goroutine. The returned channel delivers
// exactly one Outcome and is then closed.
func (m *Monitor) Start(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		out <- m.Run(ctx)
	}()
	return out
}

// Run polls until the job is done, the wait times out, or ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) Outcome {
	if !m.started.CompareAndSwap(false, true) {
		return Outcome{Kind: OutcomeCancelled, Err: ErrAlreadyStarted}
	}

	m.setState(StateWatching)
	m.logger.Info("Watching for job completion",
		zap.String("signal_path", m.path),
		zap.Int("expected", m.expected),
		zap.Duration("poll_interval", m.cfg.PollInterval),
		zap.Duration("stability_window", m.cfg.StabilityWindow),
		zap.Duration("max_wait", m.cfg.MaxWait))

	var (
		elapsed time.Duration
		stable  time.Duration
		last    int
		seen    bool

		// Progress logs are throttled on virtual time so the throttle
		// behaves the same under an injected sleep.
		origin   = time.Now()
		progress = rate.NewLimiter(rate.Every(m.cfg.ProgressLogInterval), 1)
	)

	for {
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return m.cancelled(err, elapsed, last)
		}
		elapsed += m.cfg.PollInterval

		if elapsed >= m.cfg.MaxWait {
			m.setState(StateTimedOut)
			m.logger.Warn("Timed out waiting for job completion; job left running",
				zap.Duration("elapsed", elapsed),
				zap.Int("last_sequence", last),
				zap.Int("expected", m.expected))
			return Outcome{Kind: OutcomeTimedOut, Sequence: last, Elapsed: elapsed}
		}

		sig, err := signal.ReadFile(m.path)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
			case errors.Is(err, signal.ErrNoSequence):
				m.logger.Debug("Signal file has no usable sequence", zap.Duration("elapsed", elapsed))
			default:
				m.logger.Debug("Signal file not readable", zap.Duration("elapsed", elapsed), zap.Error(err))
			}
			// Once the target was seen, a vanished or torn file counts as
			// unchanged; finish reports it as degraded if it stays that way.
			if seen && last >= m.expected {
				stable += m.cfg.PollInterval
				if stable >= m.cfg.StabilityWindow {
					return m.finish(ctx, elapsed, last)
				}
			}
			continue
		}

		if sig.Sequence < m.expected {
			stable = 0
			last, seen = sig.Sequence, true
			m.setState(StateWatching)
			if progress.AllowN(origin.Add(elapsed), 1) {
				m.logger.Info("Job in progress",
					zap.Int("sequence", sig.Sequence),
					zap.Int("expected", m.expected),
					zap.Int("total_images", sig.TotalImages),
					zap.Duration("elapsed", elapsed))
				m.report(StateWatching, sig, elapsed)
			}
			continue
		}

		if seen && sig.Sequence == last {
			stable += m.cfg.PollInterval
		} else {
			stable = 0
		}
		last, seen = sig.Sequence, true
		if m.State() != StateStabilizing {
			m.setState(StateStabilizing)
			m.report(StateStabilizing, sig, elapsed)
		}

		if stable >= m.cfg.StabilityWindow {
			return m.finish(ctx, elapsed, last)
		}
	}
}

func (m *Monitor) report(state State, sig signal.Signal, elapsed time.Duration) {
	if m.progress == nil {
		return
	}
	m.progress(Progress{
		State:       state,
		Sequence:    sig.Sequence,
		Expected:    m.expected,
		TotalImages: sig.TotalImages,
		Elapsed:     elapsed,
	})
}

// finish performs the authoritative final read and consumes the signal.
func (m *Monitor) finish(ctx context.Context, elapsed time.Duration, last int) Outcome {
	if m.cfg.SettleDelay > 0 {
		if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
			return m.cancelled(err, elapsed, last)
		}
	}

	sig, readErr := signal.ReadFile(m.path)
	if err := signal.Remove(m.path); err != nil {
		m.logger.Warn("Failed to remove signal file", zap.String("signal_path", m.path), zap.Error(err))
	}
	m.setState(StateDone)

	if readErr != nil {
		m.logger.Warn("Job complete but final statistics unavailable",
			zap.Int("sequence", last),
			zap.Duration("elapsed", elapsed),
			zap.Error(readErr))
		return Outcome{
			Kind:     OutcomeDegraded,
			Sequence: last,
			Elapsed:  elapsed,
			Err:      fmt.Errorf("final signal read: %w", readErr),
		}
	}

	m.logger.Info("Job complete",
		zap.Int("sequence", sig.Sequence),
		zap.Int("total_images", sig.TotalImages),
		zap.Int("successful", sig.Successful),
		zap.Int("failed", sig.Failed),
		zap.Int("no_car", sig.NoCar),
		zap.Bool("dry_run", sig.DryRun),
		zap.Duration("elapsed", elapsed))

	return Outcome{Kind: OutcomeCompleted, Stats: &sig, Sequence: sig.Sequence, Elapsed: elapsed}
}

// cancelled leaves the signal file alone: the job is still running and may
// be watched again.
func (m *Monitor) cancelled(err error, elapsed time.Duration, last int) Outcome {
	m.setState(StateCancelled)
	m.logger.Info("Stopped watching job", zap.Duration("elapsed", elapsed), zap.Error(err))
	return Outcome{Kind: OutcomeCancelled, Sequence: last, Elapsed: elapsed, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
