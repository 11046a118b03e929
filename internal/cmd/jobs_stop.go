package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/observability"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
)

// stopPollInterval is how often stopJob checks whether the job has exited.
var stopPollInterval = 250 * time.Millisecond

func runJobsStop(cmd *cobra.Command, args []string) error {
	sigStr, _ := cmd.Flags().GetString("signal")
	sigStr = strings.TrimSpace(strings.ToLower(sigStr))
	if sigStr == "" {
		sigStr = "term"
	}
	if sigStr != "term" && sigStr != "kill" {
		return exitError(ExitUsage, "Invalid --signal", fmt.Errorf("%q (expected term or kill)", sigStr))
	}
	grace, _ := cmd.Flags().GetDuration("grace")

	store := jobStore()
	rec, err := lookupJob(store, args)
	if err != nil {
		return err
	}
	return stopJob(cmd.OutOrStdout(), store, rec, sigStr == "kill", grace)
}

// stopJob signals a running job and records it as stopped. A term that is
// not honoured within grace is followed by kill.
func stopJob(out io.Writer, store *jobregistry.Store, rec *jobregistry.JobRecord, force bool, grace time.Duration) error {
	if rec.PID <= 0 {
		return fmt.Errorf("job has no pid recorded")
	}
	if rec.State != jobregistry.JobStateRunning {
		return fmt.Errorf("job is not running (state=%s)", rec.State)
	}

	now := time.Now().UTC()
	rec.State = jobregistry.JobStateStopping
	rec.LastHeartbeat = &now
	_ = store.Write(rec)

	sent := "term"
	if force {
		sent = "kill"
	}
	if err := jobregistry.SignalJob(rec.PID, force); err != nil {
		return fmt.Errorf("signal %s: %w", sent, err)
	}

	if !force && !waitForExit(rec.PID, grace) {
		observability.CLILogger.Warn("Job ignored term, sending kill",
			zap.String("job_id", rec.JobID),
			zap.Int("pid", rec.PID),
			zap.Duration("grace", grace),
		)
		_ = jobregistry.SignalJob(rec.PID, true)
		sent = "term;forced=kill"
	}

	now = time.Now().UTC()
	rec.State = jobregistry.JobStateStopped
	rec.EndedAt = &now
	rec.LastHeartbeat = &now
	if err := store.Write(rec); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "sent=%s\n", sent)
	return nil
}

func waitForExit(pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for {
		if !jobregistry.IsProcessAlive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(stopPollInterval)
	}
}
