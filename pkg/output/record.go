// Package output provides JSONL output for tagger jobs.
//
// Output is structured as typed record envelopes describing a job's launch,
// its progress, and its outcome. Each line is a self-contained JSON object
// that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/taglaunch/pkg/signal"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: taglaunch.<type>.v<version>
const (
	// TypeJob identifies job launch records.
	TypeJob = "taglaunch.job.v1"

	// TypeProgress identifies monitor progress records.
	TypeProgress = "taglaunch.progress.v1"

	// TypeOutcome identifies the final record of a watch.
	TypeOutcome = "taglaunch.outcome.v1"

	// TypeError identifies error records.
	TypeError = "taglaunch.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "taglaunch.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for the tagger job.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload emitted once a job has been started.
type JobRecord struct {
	PID           int      `json:"pid"`
	Platform      string   `json:"platform"`
	Mode          string   `json:"mode"`
	Targets       []string `json:"targets"`
	Expected      int      `json:"expected"`
	PlannedImages int      `json:"planned_images"`
	LogPath       string   `json:"log_path,omitempty"`
	SignalPath    string   `json:"signal_path"`
	DryRun        bool     `json:"dry_run,omitempty"`
}

// ProgressRecord is the data payload for monitor progress.
type ProgressRecord struct {
	// State is the monitor state (watching or stabilizing).
	State string `json:"state"`

	Sequence    int `json:"sequence"`
	Expected    int `json:"expected"`
	TotalImages int `json:"total_images"`

	// ElapsedMs is polling time consumed so far.
	ElapsedMs int64 `json:"elapsed_ms"`
}

// OutcomeRecord is the data payload for the end of a watch.
type OutcomeRecord struct {
	// Kind is completed, degraded, timed_out, or cancelled.
	Kind string `json:"kind"`

	Sequence  int   `json:"sequence"`
	ElapsedMs int64 `json:"elapsed_ms"`

	// Stats is present only for completed jobs.
	Stats *signal.Signal `json:"stats,omitempty"`

	// ResultsPath is the tagger's per-image results file, if known.
	ResultsPath string `json:"results_path,omitempty"`

	// ExitCode is the process exit code taglaunch returns.
	ExitCode int `json:"exit_code"`

	Error string `json:"error,omitempty"`
}

// ErrorRecord is the data payload for errors that end a command before an
// outcome exists.
type ErrorRecord struct {
	// Code is a stable error category.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// ExitCode is the process exit code taglaunch returns.
	ExitCode int `json:"exit_code"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeUsage indicates invalid input or configuration.
	ErrCodeUsage = "USAGE"

	// ErrCodeLaunchFailed indicates the job could not be started.
	ErrCodeLaunchFailed = "LAUNCH_FAILED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
