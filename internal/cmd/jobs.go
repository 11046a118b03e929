package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/taglaunch/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage tagger jobs",
	Long: `Manage the records taglaunch keeps for launched tagger jobs.

Job ids are stable and may be abbreviated to any unique prefix. Most
subcommands accept --json for machine parsing.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tagger jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Show status for a job (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsStatus,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Stop a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs [job_id]",
	Short: "Show the tagger log or results for a job (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsLogs,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old job records",
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsStopCmd)
	jobsCmd.AddCommand(jobsLogsCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStopCmd.Flags().String("signal", "term", "Signal to send: term or kill")
	jobsStopCmd.Flags().Duration("grace", 30*time.Second, "How long to wait after term before forcing kill")
	jobsLogsCmd.Flags().String("stream", "log", "Stream: log or results")
	jobsLogsCmd.Flags().Int("tail", 200, "Show last N lines (0 = everything)")
	jobsLogsCmd.Flags().Bool("follow", false, "Follow log output until interrupted")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete finished jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
	jobsGCCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	jobs, err := jobStore().List()
	if err != nil {
		return err
	}
	return writeJobList(cmd.OutOrStdout(), jobs, jsonOutput)
}

func writeJobList(out io.Writer, jobs []jobregistry.JobRecord, jsonOutput bool) error {
	if jsonOutput {
		if jobs == nil {
			jobs = []jobregistry.JobRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tSTATE\tMODE\tEXPECTED\tIMAGES\tSTARTED\tENDED\tOUTCOME")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			shortJobID(j.JobID),
			orDash(j.Name),
			j.State,
			orDash(j.Mode),
			j.Expected,
			j.PlannedImages,
			formatOptionalTime(j.StartedAt),
			formatOptionalTime(j.EndedAt),
			orDash(j.Outcome),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	rec, err := lookupJob(jobStore(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	writeJobStatus(out, rec)
	return nil
}

func writeJobStatus(out io.Writer, rec *jobregistry.JobRecord) {
	_, _ = fmt.Fprintf(out, "job_id=%s\n", rec.JobID)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(out, "name=%s\n", rec.Name)
	}
	_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(out, "platform=%s\n", rec.Platform)
	_, _ = fmt.Fprintf(out, "mode=%s\n", rec.Mode)
	_, _ = fmt.Fprintf(out, "expected=%d\n", rec.Expected)
	for _, t := range rec.Targets {
		_, _ = fmt.Fprintf(out, "target=%s\n", t)
	}
	if rec.PID > 0 {
		_, _ = fmt.Fprintf(out, "pid=%d\n", rec.PID)
	}
	_, _ = fmt.Fprintf(out, "signal_path=%s\n", rec.SignalPath)
	if rec.LogPath != "" {
		_, _ = fmt.Fprintf(out, "log_path=%s\n", rec.LogPath)
		_, _ = fmt.Fprintf(out, "results_path=%s\n", rec.ResultsPath())
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(out, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(out, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.Outcome != "" {
		_, _ = fmt.Fprintf(out, "outcome=%s\n", rec.Outcome)
	}
	if rec.Stats != nil {
		_, _ = fmt.Fprintf(out, "total_images=%d\n", rec.Stats.TotalImages)
		_, _ = fmt.Fprintf(out, "successful=%d\n", rec.Stats.Successful)
		_, _ = fmt.Fprintf(out, "failed=%d\n", rec.Stats.Failed)
		_, _ = fmt.Fprintf(out, "no_car=%d\n", rec.Stats.NoCar)
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(out, "error=%s\n", rec.Error)
	}
}

// lookupJob resolves an optional job id argument, defaulting to the most
// recent job.
func lookupJob(store *jobregistry.Store, args []string) (*jobregistry.JobRecord, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		rec, err := store.Latest()
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	id, err := store.Resolve(args[0])
	if err != nil {
		return nil, err
	}
	return store.Get(id)
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
