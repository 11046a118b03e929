package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{name: "set all values", version: "1.0.0", commit: "abc123", buildDate: "2026-01-15"},
		{name: "set dev version", version: "dev", commit: "HEAD", buildDate: "unknown"},
		{name: "set empty values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
		err     error
		want    string
	}{
		{name: "basic error", code: 1, message: "Something failed", err: assert.AnError, want: "Something failed"},
		{name: "includes exit code", code: 2, message: "Launch failed", err: assert.AnError, want: "exit code 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitError(tt.code, tt.message, tt.err)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want))
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.code, ExitWithCode(err))
		})
	}
}

func TestExitWithCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitUsage},
		{"explicit code wins", exitError(ExitTimedOut, "x", context.Canceled), ExitTimedOut},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), ExitCancelled},
		{"construction", &command.ConstructionError{Op: "write batch script", Path: "/tmp/x.sh", Err: assert.AnError}, ExitLaunchFailed},
		{"spawn", &launcher.SpawnError{Platform: "posix", CommandLine: "x", Err: assert.AnError}, ExitLaunchFailed},
		{"in flight", fmt.Errorf("%w: abc", jobregistry.ErrJobInFlight), ExitLaunchFailed},
		{"completed outcome", outcomeExit(monitor.Outcome{Kind: monitor.OutcomeCompleted}), ExitSuccess},
		{"degraded outcome", outcomeExit(monitor.Outcome{Kind: monitor.OutcomeDegraded}), ExitDegraded},
		{"timed out outcome", outcomeExit(monitor.Outcome{Kind: monitor.OutcomeTimedOut}), ExitTimedOut},
		{"cancelled outcome", outcomeExit(monitor.Outcome{Kind: monitor.OutcomeCancelled}), ExitCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitWithCode(tt.err))
		})
	}
}

func TestOutcomeExit(t *testing.T) {
	assert.NoError(t, outcomeExit(monitor.Outcome{Kind: monitor.OutcomeCompleted}))

	err := outcomeExit(monitor.Outcome{Kind: monitor.OutcomeTimedOut})
	require.Error(t, err)
	assert.True(t, isOutcomeError(err))
	assert.Contains(t, err.Error(), "timed_out")

	assert.False(t, isOutcomeError(errors.New("other")))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "watch", "jobs", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	sub := map[string]bool{}
	for _, c := range jobsCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, want := range []string{"list", "status", "stop", "logs", "gc"} {
		assert.True(t, sub[want], "missing jobs subcommand %q", want)
	}
}
