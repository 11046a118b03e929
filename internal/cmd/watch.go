package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Watch a launched job until it completes (default: most recent)",
	Long: `Watch the completion signal of a job started with 'run --detach', or
resume watching after an interrupted 'run'.

A job that already has a recorded outcome is reported without polling.
Exit codes match 'run'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Int("expected", 0, "Override the recorded completion target")
	watchCmd.Flags().Duration("max-wait", 0, "Override monitor.max_wait for this watch")
	watchCmd.Flags().Bool("json", false, "Emit JSONL records instead of text")
}

func runWatch(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	rep := newReporter(cmd.OutOrStdout(), jsonOutput)

	err := watchExisting(cmd, args, rep)
	rep.failed(cmd.Context(), err)
	return err
}

func watchExisting(cmd *cobra.Command, args []string, rep *reporter) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	exec, err := newExecutor(cfg)
	if err != nil {
		return exitError(ExitUsage, "Failed to initialize launcher", err)
	}

	rec, err := lookupJob(exec.Store(), args)
	if err != nil {
		if errors.Is(err, jobregistry.ErrJobNotFound) {
			return exitError(ExitUsage, "No job to watch", err)
		}
		return err
	}

	if stored, ok := recordedOutcome(rec); ok {
		rep.outcome(ctx, rec, stored)
		return outcomeExit(stored)
	}
	if rec.State == jobregistry.JobStateStopped || rec.State == jobregistry.JobStateFailed {
		return exitError(ExitUsage, "Job already ended", fmt.Errorf("job %s state=%s", shortJobID(rec.JobID), rec.State))
	}

	if cmd.Flags().Changed("expected") {
		n, _ := cmd.Flags().GetInt("expected")
		if n < 1 {
			return exitError(ExitUsage, "Invalid --expected", fmt.Errorf("must be >= 1, got %d", n))
		}
		rec.Expected = n
	}

	mcfg := monitorConfig(cfg)
	if d, _ := cmd.Flags().GetDuration("max-wait"); d > 0 {
		mcfg.MaxWait = d
	}

	rep.watching(rec)
	outcome, err := watchJob(ctx, exec, rec, mcfg, rep.monitorOptions(ctx)...)
	if err != nil {
		return exitError(ExitUsage, "Failed to start monitor", err)
	}
	rep.outcome(ctx, rec, outcome)
	return outcomeExit(outcome)
}

// recordedOutcome rebuilds the outcome of a job that has already finished.
// Jobs that timed out or were only interrupted are watched again.
func recordedOutcome(rec *jobregistry.JobRecord) (monitor.Outcome, bool) {
	switch rec.State {
	case jobregistry.JobStateSuccess:
		out := monitor.Outcome{Kind: monitor.OutcomeCompleted, Stats: rec.Stats}
		if rec.Stats != nil {
			out.Sequence = rec.Stats.Sequence
		}
		return out, true
	case jobregistry.JobStatePartial:
		out := monitor.Outcome{Kind: monitor.OutcomeDegraded}
		if rec.Error != "" {
			out.Err = errors.New(rec.Error)
		}
		return out, true
	default:
		return monitor.Outcome{}, false
	}
}
