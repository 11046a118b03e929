package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/config"
	"github.com/3leaps/taglaunch/internal/observability"
	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/paths"
	"github.com/3leaps/taglaunch/pkg/targets"
)

var runCmd = &cobra.Command{
	Use:   "run [target...]",
	Short: "Launch the tagger in the background and wait for it to finish",
	Long: `Launch the racing tagger on one or more image files or directories.

Each target becomes one tagger invocation. Several targets are written to a
batch script that runs them in order. The job is detached: closing this
terminal does not stop it.

Unless --detach is given, run then watches the completion signal and exits
with a code describing the outcome:

  0    completed with statistics
  2    the job could not be started
  3    timed out (the job may still be running)
  4    completed, statistics unavailable
  130  interrupted (the job keeps running; resume with 'taglaunch watch')`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().String("job", "", "Job spec file (YAML or JSON) listing targets and flags")
	c.Flags().Bool("dry-run", false, "Ask the tagger to simulate without writing metadata")
	c.Flags().Bool("resume", false, "Ask the tagger to skip images finished by a previous run")
	c.Flags().Int("expected", 0, "Completion target for the signal sequence (default: one per target)")
	c.Flags().Bool("detach", false, "Return after launching instead of watching for completion")
	c.Flags().Bool("plan", false, "Show what would be launched without launching")
	c.Flags().String("name", "", "Optional job name")
	c.Flags().Bool("force", false, "Launch even if another job is recorded as running")
	c.Flags().String("python", "", "Python interpreter (overrides tagger.python)")
	c.Flags().String("script", "", "Path to racing_tagger.py (overrides tagger.script)")
	c.Flags().Bool("json", false, "Emit JSONL records instead of text")
}

// jobSpecFromFlags merges a spec file, positional targets, and flags.
func jobSpecFromFlags(cmd *cobra.Command, args []string) (*command.JobSpec, error) {
	specPath, _ := cmd.Flags().GetString("job")
	specPath = strings.TrimSpace(specPath)

	var spec command.JobSpec
	switch {
	case specPath != "" && len(args) > 0:
		return nil, errors.New("use either --job or positional targets, not both")
	case specPath != "":
		loaded, err := command.LoadSpec(specPath)
		if err != nil {
			return nil, err
		}
		spec = *loaded
	default:
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, fmt.Errorf("resolve target %s: %w", a, err)
			}
			spec.Targets = append(spec.Targets, abs)
		}
	}

	if v, _ := cmd.Flags().GetBool("dry-run"); v {
		spec.DryRun = true
	}
	if v, _ := cmd.Flags().GetBool("resume"); v {
		spec.Resume = true
	}
	if cmd.Flags().Changed("expected") {
		n, _ := cmd.Flags().GetInt("expected")
		spec.ExpectedCount = n
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// taggerConfig applies --python and --script on top of the loaded config.
func taggerConfig(cmd *cobra.Command, base *config.Config) *config.Config {
	cfg := *base
	if v, _ := cmd.Flags().GetString("python"); strings.TrimSpace(v) != "" {
		cfg.Tagger.Python = strings.TrimSpace(v)
	}
	if v, _ := cmd.Flags().GetString("script"); strings.TrimSpace(v) != "" {
		cfg.Tagger.Script = strings.TrimSpace(v)
	}
	return &cfg
}

func runRun(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	rep := newReporter(cmd.OutOrStdout(), jsonOutput)

	err := launchAndWatch(cmd, args, rep)
	rep.failed(cmd.Context(), err)
	return err
}

func launchAndWatch(cmd *cobra.Command, args []string, rep *reporter) error {
	ctx := cmd.Context()
	cfg := taggerConfig(cmd, currentConfig())

	spec, err := jobSpecFromFlags(cmd, args)
	if err != nil {
		return exitError(ExitUsage, "Invalid job", err)
	}

	scanner, err := targets.NewScanner(targets.DefaultConfig(), observability.CLILogger)
	if err != nil {
		return exitError(ExitUsage, "Invalid target filter", err)
	}
	summary, err := scanner.Scan(ctx, spec.Targets)
	if err != nil {
		return exitError(ExitUsage, "Invalid target", err)
	}

	b, err := newBuilder(cfg)
	if err != nil {
		return exitError(ExitUsage, "Invalid platform", err)
	}

	if plan, _ := cmd.Flags().GetBool("plan"); plan {
		return showLaunchPlan(cmd.OutOrStdout(), b, spec, summary)
	}

	if cfg.Tagger.Script == "" {
		return exitError(ExitUsage, "Tagger script not configured (set tagger.script, TAGLAUNCH_TAGGER_SCRIPT, or --script)", command.ErrNoExecutable)
	}
	if _, err := os.Stat(cfg.Tagger.Script); err != nil {
		return exitError(ExitUsage, "Tagger script not found", err)
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		return exitError(ExitUsage, "Failed to initialize launcher", err)
	}

	name, _ := cmd.Flags().GetString("name")
	force, _ := cmd.Flags().GetBool("force")
	rec, err := exec.Launch(ctx, *spec, jobregistry.LaunchOptions{
		Name:          name,
		PlannedImages: summary.Images,
		Force:         force,
	})
	if err != nil {
		if rec == nil {
			return exitError(ExitLaunchFailed, "Failed to launch tagger", err)
		}
		observability.CLILogger.Warn("Continuing without a job record", zap.Error(err))
	}

	rep.started(ctx, rec, summary.Images)

	if detach, _ := cmd.Flags().GetBool("detach"); detach {
		rep.detached(rec)
		return nil
	}

	outcome, err := watchJob(ctx, exec, rec, monitorConfig(cfg), rep.monitorOptions(ctx)...)
	if err != nil {
		return exitError(ExitUsage, "Failed to start monitor", err)
	}
	rep.outcome(ctx, rec, outcome)
	return outcomeExit(outcome)
}

// showLaunchPlan prints what run would do without writing scripts or
// starting anything.
func showLaunchPlan(w io.Writer, b *command.Builder, spec *command.JobSpec, summary *targets.Summary) error {
	p := b.Platform()
	mode := command.ModeSingle
	if spec.IsBatch() {
		mode = command.ModeBatch
	}

	_, _ = fmt.Fprintln(w, "=== Launch Plan (dry-run) ===")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Platform:    %s\n", p.Name())
	_, _ = fmt.Fprintf(w, "Mode:        %s\n", mode)
	_, _ = fmt.Fprintf(w, "Expected:    %d\n", spec.Expected())
	_, _ = fmt.Fprintf(w, "Dry run:     %t\n", spec.DryRun)
	_, _ = fmt.Fprintf(w, "Resume:      %t\n", spec.Resume)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "Targets:")
	for _, t := range summary.Targets {
		note := ""
		if t.Unsupported {
			note = " (unsupported, skipped by tagger)"
		}
		_, _ = fmt.Fprintf(w, "  - %s: %d images%s\n", t.Path, t.Images, note)
	}
	_, _ = fmt.Fprintf(w, "Total images: %d\n", summary.Images)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "Invocations:")
	for _, target := range spec.Targets {
		_, _ = fmt.Fprintf(w, "  %s\n", b.Invocation(target, *spec))
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Signal file: %s\n", paths.SignalPath())
	_, _ = fmt.Fprintf(w, "Log file:    %s\n", paths.LogPath())
	return nil
}
