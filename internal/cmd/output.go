package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/observability"
	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
	"github.com/3leaps/taglaunch/pkg/output"
)

// reporter renders job events either for a terminal or as JSONL records.
type reporter struct {
	out   io.Writer
	jsonl *output.JSONLWriter
}

func newReporter(out io.Writer, jsonOutput bool) *reporter {
	r := &reporter{out: out}
	if jsonOutput {
		r.jsonl = output.NewJSONLWriter(out, "")
	}
	return r
}

// write runs fn with cancellation stripped from ctx and logs any failure.
func (r *reporter) write(ctx context.Context, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		observability.CLILogger.Warn("Failed to write output record", zap.Error(err))
	}
}

func (r *reporter) started(ctx context.Context, rec *jobregistry.JobRecord, images int) {
	if r.jsonl == nil {
		printJobStarted(r.out, rec, images)
		return
	}
	r.jsonl.SetJobID(rec.JobID)
	r.write(ctx, func(ctx context.Context) error {
		return r.jsonl.WriteJob(ctx, &output.JobRecord{
			PID:           rec.PID,
			Platform:      rec.Platform,
			Mode:          rec.Mode,
			Targets:       rec.Targets,
			Expected:      rec.Expected,
			PlannedImages: images,
			LogPath:       rec.LogPath,
			SignalPath:    rec.SignalPath,
			DryRun:        rec.DryRun,
		})
	})
}

// watching announces a watch of an existing job.
func (r *reporter) watching(rec *jobregistry.JobRecord) {
	if r.jsonl == nil {
		_, _ = fmt.Fprintf(r.out, "Watching job %s (expected sequence %d)\n", shortJobID(rec.JobID), rec.Expected)
		return
	}
	r.jsonl.SetJobID(rec.JobID)
}

func (r *reporter) detached(rec *jobregistry.JobRecord) {
	if r.jsonl == nil {
		_, _ = fmt.Fprintf(r.out, "Watch with: taglaunch watch %s\n", shortJobID(rec.JobID))
	}
}

// monitorOptions returns the monitor options the reporter needs. Terminal
// output relies on the monitor's own progress logs.
func (r *reporter) monitorOptions(ctx context.Context) []monitor.Option {
	if r.jsonl == nil {
		return nil
	}
	return []monitor.Option{monitor.WithProgress(func(p monitor.Progress) {
		r.write(ctx, func(ctx context.Context) error {
			return r.jsonl.WriteProgress(ctx, &output.ProgressRecord{
				State:       p.State.String(),
				Sequence:    p.Sequence,
				Expected:    p.Expected,
				TotalImages: p.TotalImages,
				ElapsedMs:   p.Elapsed.Milliseconds(),
			})
		})
	})}
}

func (r *reporter) outcome(ctx context.Context, rec *jobregistry.JobRecord, o monitor.Outcome) {
	if r.jsonl == nil {
		printOutcome(r.out, rec, o)
		return
	}
	r.jsonl.SetJobID(rec.JobID)
	rr := &output.OutcomeRecord{
		Kind:      string(o.Kind),
		Sequence:  o.Sequence,
		ElapsedMs: o.Elapsed.Milliseconds(),
		Stats:     o.Stats,
		ExitCode:  exitCodeForOutcome(o.Kind),
	}
	if o.Kind == monitor.OutcomeCompleted {
		rr.ResultsPath = rec.ResultsPath()
	}
	if o.Err != nil {
		rr.Error = o.Err.Error()
	}
	r.write(ctx, func(ctx context.Context) error { return r.jsonl.WriteOutcome(ctx, rr) })
}

// failed emits an error record for a command error. Terminal output is
// left to Execute.
func (r *reporter) failed(ctx context.Context, err error) {
	if r.jsonl == nil || err == nil || isOutcomeError(err) {
		return
	}
	code := ExitWithCode(err)
	category := output.ErrCodeUsage
	switch {
	case code == ExitLaunchFailed, command.IsConstructionError(err), launcher.IsSpawnError(err):
		category = output.ErrCodeLaunchFailed
	case code != ExitUsage:
		category = output.ErrCodeInternal
	}
	r.write(ctx, func(ctx context.Context) error {
		return r.jsonl.WriteError(ctx, &output.ErrorRecord{Code: category, Message: err.Error(), ExitCode: code})
	})
}

func printJobStarted(out io.Writer, rec *jobregistry.JobRecord, images int) {
	_, _ = color.New(color.FgCyan).Fprintf(out, "Started tagger job %s\n", shortJobID(rec.JobID))
	_, _ = fmt.Fprintf(out, "  pid:       %d\n", rec.PID)
	_, _ = fmt.Fprintf(out, "  mode:      %s (%d target(s), %d image(s))\n", rec.Mode, len(rec.Targets), images)
	_, _ = fmt.Fprintf(out, "  expected:  %d\n", rec.Expected)
	if rec.LogPath != "" {
		_, _ = fmt.Fprintf(out, "  log:       %s\n", rec.LogPath)
	}
	_, _ = fmt.Fprintf(out, "  signal:    %s\n", rec.SignalPath)
}

// printOutcome writes the human summary of a finished watch.
func printOutcome(out io.Writer, rec *jobregistry.JobRecord, o monitor.Outcome) {
	_, _ = fmt.Fprint(out, formatOutcome(rec, o))
}

func formatOutcome(rec *jobregistry.JobRecord, o monitor.Outcome) string {
	var sb strings.Builder
	id := shortJobID(rec.JobID)

	switch o.Kind {
	case monitor.OutcomeCompleted:
		sb.WriteString(color.GreenString("✓ Job %s completed", id))
		if o.Elapsed > 0 {
			sb.WriteString(fmt.Sprintf(" after %s", o.Elapsed.Round(time.Second)))
		}
		sb.WriteString("\n")
		if s := o.Stats; s != nil {
			sb.WriteString(fmt.Sprintf("  Images:     %d\n", s.TotalImages))
			sb.WriteString(color.GreenString("  Tagged:     %d\n", s.Successful))
			if s.NoCar > 0 {
				sb.WriteString(color.YellowString("  No car:     %d\n", s.NoCar))
			}
			if s.Failed > 0 {
				sb.WriteString(color.RedString("  Failed:     %d\n", s.Failed))
			}
			if s.AvgTimePerImage > 0 {
				sb.WriteString(fmt.Sprintf("  Avg/image:  %.2fs\n", s.AvgTimePerImage))
			}
			if s.DryRun {
				sb.WriteString(color.YellowString("  (dry run, no metadata written)\n"))
			}
		}
		if p := rec.ResultsPath(); p != "" {
			sb.WriteString(fmt.Sprintf("  Results:    %s\n", p))
		}

	case monitor.OutcomeDegraded:
		sb.WriteString(color.YellowString("⚠ Job %s completed, statistics unavailable\n", id))
		if o.Err != nil {
			sb.WriteString(fmt.Sprintf("  Reason:     %v\n", o.Err))
		}
		if rec.LogPath != "" {
			sb.WriteString(fmt.Sprintf("  Log:        %s\n", rec.LogPath))
		}

	case monitor.OutcomeTimedOut:
		sb.WriteString(color.RedString("✗ Gave up waiting for job %s after %s\n", id, o.Elapsed.Round(time.Second)))
		sb.WriteString(fmt.Sprintf("  Last sequence: %d of %d\n", o.Sequence, rec.Expected))
		sb.WriteString("  The job may still be running. Check 'taglaunch jobs logs' or watch again.\n")

	case monitor.OutcomeCancelled:
		sb.WriteString(color.YellowString("Stopped watching job %s; the job keeps running\n", id))
		sb.WriteString(fmt.Sprintf("  Resume with: taglaunch watch %s\n", id))

	default:
		sb.WriteString(fmt.Sprintf("Job %s: %s\n", id, o.Kind))
	}
	return sb.String()
}
