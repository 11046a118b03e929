// Package launcher starts a built tagger command as a detached background
// process and returns as soon as the spawn itself has succeeded.
//
// A successful Launch says nothing about whether the job will succeed. The
// job's completion is observed separately through the signal file (see
// package monitor); its exit status is never consulted.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/platform"
)

// ErrEmptyCommand indicates a descriptor without a command line.
var ErrEmptyCommand = errors.New("launch descriptor has no command line")

// SpawnError reports that the platform failed to start the process.
type SpawnError struct {
	Platform    string
	CommandLine string
	Err         error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s job: %v", e.Platform, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSpawnError reports whether err came from a failed spawn.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// Handle identifies a launched job.
type Handle struct {
	// PID is the shell process that runs the job. It may exit before the
	// tagger itself finishes on platforms that re-parent the job.
	PID int

	StartedAt   time.Time
	CommandLine string
}

// Launcher spawns detached jobs for one platform.
type Launcher struct {
	platform platform.Platform
	logger   *zap.Logger
}

// New creates a Launcher. A nil platform selects platform.Current(); a nil
// logger disables logging.
func New(p platform.Platform, logger *zap.Logger) *Launcher {
	if p == nil {
		p = platform.Current()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{platform: p, logger: logger}
}

// Launch starts desc in the background and returns immediately.
//
// ctx only gates the spawn: a cancelled context prevents the launch, but
// cancelling it afterwards does not affect the running job.
func (l *Launcher) Launch(ctx context.Context, desc *command.LaunchDescriptor) (*Handle, error) {
	if desc == nil || strings.TrimSpace(desc.CommandLine) == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := l.platform.Shell(desc.CommandLine)
	cmd := exec.Command(name, args...)
	detach(cmd, name, args)

	if err := cmd.Start(); err != nil {
		l.logger.Error("Failed to spawn job",
			zap.String("platform", l.platform.Name()),
			zap.String("command_line", desc.CommandLine),
			zap.Error(err))
		return nil, &SpawnError{Platform: l.platform.Name(), CommandLine: desc.CommandLine, Err: err}
	}

	h := &Handle{
		PID:         cmd.Process.Pid,
		StartedAt:   time.Now().UTC(),
		CommandLine: desc.CommandLine,
	}

	// Reap the shell when it exits so it does not linger as a zombie while
	// this process keeps monitoring. Its exit status is deliberately unused.
	go func() { _ = cmd.Wait() }()

	l.logger.Info("Launched background job",
		zap.String("platform", l.platform.Name()),
		zap.String("mode", string(desc.Mode)),
		zap.Int("pid", h.PID),
		zap.String("log_path", desc.LogPath))

	return h, nil
}
