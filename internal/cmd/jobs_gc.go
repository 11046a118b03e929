package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type jobsGCResult struct {
	Deleted      int    `json:"deleted"`
	WouldDelete  int    `json:"would_delete"`
	DryRun       bool   `json:"dry_run"`
	MaxAgeString string `json:"max_age"`
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAgeStr = strings.TrimSpace(maxAgeStr)
	if maxAgeStr == "" {
		maxAgeStr = "168h"
	}
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return exitError(ExitUsage, "Invalid --max-age", err)
	}
	if maxAge <= 0 {
		return exitError(ExitUsage, "Invalid --max-age", fmt.Errorf("must be > 0, got %s", maxAgeStr))
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	n, err := jobStore().Prune(time.Now().UTC(), maxAge, dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		res := jobsGCResult{DryRun: dryRun, MaxAgeString: maxAgeStr}
		if dryRun {
			res.WouldDelete = n
		} else {
			res.Deleted = n
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if dryRun {
		_, _ = fmt.Fprintf(out, "would_delete=%d\n", n)
		return nil
	}
	_, _ = fmt.Fprintf(out, "deleted=%d\n", n)
	return nil
}
