package jobregistry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
	"github.com/3leaps/taglaunch/pkg/signal"
)

type fakeBuilder struct {
	signalPath   string
	err          error
	sawStaleFile bool
	calls        int
}

func (b *fakeBuilder) Build(spec command.JobSpec) (*command.LaunchDescriptor, error) {
	b.calls++
	b.sawStaleFile = signal.Exists(b.signalPath)
	if b.err != nil {
		return nil, b.err
	}
	mode := command.ModeSingle
	if spec.IsBatch() {
		mode = command.ModeBatch
	}
	return &command.LaunchDescriptor{
		Platform:    "posix",
		Mode:        mode,
		LogPath:     "/tmp/racing_tagger_output.log",
		CommandLine: "tagger",
	}, nil
}

type fakeSpawner struct {
	pid   int
	err   error
	calls int
}

func (s *fakeSpawner) Launch(_ context.Context, desc *command.LaunchDescriptor) (*launcher.Handle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &launcher.Handle{PID: s.pid, StartedAt: time.Now(), CommandLine: desc.CommandLine}, nil
}

type executorFixture struct {
	exec    *Executor
	builder *fakeBuilder
	spawner *fakeSpawner
	cfg     ExecutorConfig
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	dir := t.TempDir()
	cfg := ExecutorConfig{
		SignalPath: filepath.Join(dir, "racing_tagger_output.complete"),
		LockPath:   filepath.Join(dir, "taglaunch.lock"),
	}
	b := &fakeBuilder{signalPath: cfg.SignalPath}
	sp := &fakeSpawner{pid: os.Getpid()}
	return &executorFixture{
		exec:    NewExecutor(NewStore(filepath.Join(dir, "jobs")), b, sp, cfg, nil),
		builder: b,
		spawner: sp,
		cfg:     cfg,
	}
}

func TestExecutor_Launch(t *testing.T) {
	f := newExecutorFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.SignalPath, []byte(`{"sequence": 2}`), 0644))

	spec := command.JobSpec{Targets: []string{"/photos/a", "/photos/b"}, DryRun: true}
	rec, err := f.exec.Launch(context.Background(), spec, LaunchOptions{Name: " sunday ", PlannedImages: 12})
	require.NoError(t, err)

	assert.False(t, f.builder.sawStaleFile, "stale signal must be removed before the build")
	assert.False(t, signal.Exists(f.cfg.SignalPath))

	assert.NotEmpty(t, rec.JobID)
	assert.Equal(t, "sunday", rec.Name)
	assert.Equal(t, JobStateRunning, rec.State)
	assert.Equal(t, spec.Targets, rec.Targets)
	assert.True(t, rec.DryRun)
	assert.Equal(t, 2, rec.Expected)
	assert.Equal(t, 12, rec.PlannedImages)
	assert.Equal(t, "batch", rec.Mode)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, f.cfg.SignalPath, rec.SignalPath)
	require.NotNil(t, rec.StartedAt)

	stored, err := f.exec.Store().Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, stored.JobID)
	assert.Equal(t, JobStateRunning, stored.State)
}

func TestExecutor_OneJobInFlight(t *testing.T) {
	f := newExecutorFixture(t)
	spec := command.JobSpec{Targets: []string{"/photos/a"}}

	first, err := f.exec.Launch(context.Background(), spec, LaunchOptions{})
	require.NoError(t, err)

	_, err = f.exec.Launch(context.Background(), spec, LaunchOptions{})
	require.ErrorIs(t, err, ErrJobInFlight)
	assert.Contains(t, err.Error(), first.JobID)
	assert.Equal(t, 1, f.spawner.calls)

	_, err = f.exec.Launch(context.Background(), spec, LaunchOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.spawner.calls)
}

func TestExecutor_LockHeldElsewhere(t *testing.T) {
	f := newExecutorFixture(t)

	other := flock.New(f.cfg.LockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	_, err = f.exec.Launch(context.Background(), command.JobSpec{Targets: []string{"/a"}}, LaunchOptions{})
	require.ErrorIs(t, err, ErrJobInFlight)
	assert.Zero(t, f.builder.calls)
}

func TestExecutor_LaunchFailuresLeaveNoRecord(t *testing.T) {
	buildErr := &command.ConstructionError{Op: "write script", Path: "/nope", Err: os.ErrPermission}
	spawnErr := &launcher.SpawnError{Platform: "posix", Err: errors.New("exec format error")}

	tests := []struct {
		name     string
		buildErr error
		spawnErr error
		check    func(t *testing.T, err error)
	}{
		{
			name:     "construction error",
			buildErr: buildErr,
			check: func(t *testing.T, err error) {
				assert.True(t, command.IsConstructionError(err))
			},
		},
		{
			name:     "spawn error",
			spawnErr: spawnErr,
			check: func(t *testing.T, err error) {
				assert.True(t, launcher.IsSpawnError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t)
			f.builder.err = tt.buildErr
			f.spawner.err = tt.spawnErr

			rec, err := f.exec.Launch(context.Background(), command.JobSpec{Targets: []string{"/a"}}, LaunchOptions{})
			require.Error(t, err)
			assert.Nil(t, rec)
			tt.check(t, err)

			jobs, err := f.exec.Store().List()
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestExecutor_LaunchRejectsInvalidSpec(t *testing.T) {
	f := newExecutorFixture(t)
	_, err := f.exec.Launch(context.Background(), command.JobSpec{}, LaunchOptions{})
	require.ErrorIs(t, err, command.ErrNoTargets)
	assert.Zero(t, f.builder.calls)
}

func TestExecutor_Finish(t *testing.T) {
	stats := &signal.Signal{Sequence: 1, TotalImages: 9, Successful: 9}

	tests := []struct {
		name      string
		outcome   monitor.Outcome
		wantState JobState
		wantEnded bool
		wantStats bool
	}{
		{"completed", monitor.Outcome{Kind: monitor.OutcomeCompleted, Stats: stats}, JobStateSuccess, true, true},
		{"degraded", monitor.Outcome{Kind: monitor.OutcomeDegraded, Err: signal.ErrNoSequence}, JobStatePartial, true, false},
		{"timed out", monitor.Outcome{Kind: monitor.OutcomeTimedOut}, JobStateUnknown, true, false},
		{"cancelled", monitor.Outcome{Kind: monitor.OutcomeCancelled, Err: context.Canceled}, JobStateRunning, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t)
			rec, err := f.exec.Launch(context.Background(), command.JobSpec{Targets: []string{"/a"}}, LaunchOptions{})
			require.NoError(t, err)

			require.NoError(t, f.exec.Finish(rec, tt.outcome))

			got, err := f.exec.Store().Get(rec.JobID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, string(tt.outcome.Kind), got.Outcome)
			assert.Equal(t, tt.wantEnded, got.EndedAt != nil)
			assert.Equal(t, tt.wantStats, got.Stats != nil)
			if tt.outcome.Err != nil {
				assert.Equal(t, tt.outcome.Err.Error(), got.Error)
			}
		})
	}
}

func TestExecutor_FinishUnknownKind(t *testing.T) {
	f := newExecutorFixture(t)
	err := f.exec.Finish(&JobRecord{JobID: "x"}, monitor.Outcome{Kind: "bogus"})
	require.Error(t, err)
	require.Error(t, f.exec.Finish(nil, monitor.Outcome{}))
}

func TestExecutor_Monitor(t *testing.T) {
	f := newExecutorFixture(t)
	rec, err := f.exec.Launch(context.Background(), command.JobSpec{Targets: []string{"/a", "/b", "/c"}}, LaunchOptions{})
	require.NoError(t, err)

	m, err := f.exec.Monitor(rec, monitor.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, monitor.StateIdle, m.State())
	assert.Equal(t, monitor.DefaultConfig(), m.Config())

	_, err = f.exec.Monitor(nil, monitor.Config{}, nil)
	require.Error(t, err)
}

func TestExecutor_Heartbeat(t *testing.T) {
	f := newExecutorFixture(t)
	rec, err := f.exec.Launch(context.Background(), command.JobSpec{Targets: []string{"/a"}}, LaunchOptions{})
	require.NoError(t, err)
	first := *rec.LastHeartbeat

	stop := f.exec.Heartbeat(context.Background(), rec, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		got, err := f.exec.Store().Get(rec.JobID)
		return err == nil && got.LastHeartbeat != nil && got.LastHeartbeat.After(first)
	}, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		stop()
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("heartbeat stop blocked")
	}
}
