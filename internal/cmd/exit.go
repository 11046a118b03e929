package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitUsage        = 1
	ExitLaunchFailed = 2
	ExitTimedOut     = 3
	ExitDegraded     = 4
	ExitCancelled    = 130
)

// exitCodeError carries an explicit exit code.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}

// outcomeError reports a monitor outcome that has already been printed, so
// Execute only needs its exit code.
type outcomeError struct {
	kind monitor.OutcomeKind
}

func (e *outcomeError) Error() string {
	return "job outcome: " + string(e.kind)
}

func isOutcomeError(err error) bool {
	var oe *outcomeError
	return errors.As(err, &oe)
}

// outcomeExit returns nil for a completed job and an outcomeError otherwise.
func outcomeExit(out monitor.Outcome) error {
	if out.Kind == monitor.OutcomeCompleted {
		return nil
	}
	return &outcomeError{kind: out.Kind}
}

func exitCodeForOutcome(kind monitor.OutcomeKind) int {
	switch kind {
	case monitor.OutcomeCompleted:
		return ExitSuccess
	case monitor.OutcomeDegraded:
		return ExitDegraded
	case monitor.OutcomeTimedOut:
		return ExitTimedOut
	case monitor.OutcomeCancelled:
		return ExitCancelled
	default:
		return ExitUsage
	}
}

// ExitWithCode maps an error returned by a command to a process exit code.
func ExitWithCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var oe *outcomeError
	if errors.As(err, &oe) {
		return exitCodeForOutcome(oe.kind)
	}
	var ee *exitCodeError
	if errors.As(err, &ee) {
		return ee.code
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case command.IsConstructionError(err), launcher.IsSpawnError(err), errors.Is(err, jobregistry.ErrJobInFlight):
		return ExitLaunchFailed
	default:
		return ExitUsage
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
