package jobregistry

import (
	"time"

	"github.com/3leaps/taglaunch/pkg/paths"
	"github.com/3leaps/taglaunch/pkg/signal"
)

// JobState is the lifecycle state of a launched tagger job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobState string

const (
	JobStateRunning  JobState = "running"
	JobStateStopping JobState = "stopping"
	JobStateStopped  JobState = "stopped"
	JobStateSuccess  JobState = "success"
	JobStatePartial  JobState = "partial"
	JobStateFailed   JobState = "failed"
	JobStateUnknown  JobState = "unknown"
)

// Terminal reports whether the job can no longer change state on its own.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateStopped, JobStateSuccess, JobStatePartial, JobStateFailed, JobStateUnknown:
		return true
	default:
		return false
	}
}

// JobRecord is the persistent record written to job.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	JobID string   `json:"job_id"`
	Name  string   `json:"name,omitempty"`
	State JobState `json:"state"`

	Targets       []string `json:"targets"`
	DryRun        bool     `json:"dry_run,omitempty"`
	Resume        bool     `json:"resume,omitempty"`
	Expected      int      `json:"expected"`
	PlannedImages int      `json:"planned_images,omitempty"`

	Platform       string `json:"platform"`
	Mode           string `json:"mode"`
	PID            int    `json:"pid,omitempty"`
	CommandLine    string `json:"command_line,omitempty"`
	LogPath        string `json:"log_path,omitempty"`
	SignalPath     string `json:"signal_path"`
	BatchScript    string `json:"batch_script,omitempty"`
	LauncherScript string `json:"launcher_script,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	// Outcome is the monitor outcome kind that ended the job, if any.
	Outcome string         `json:"outcome,omitempty"`
	Stats   *signal.Signal `json:"stats,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ResultsPath is where the tagger writes per-image results for this job.
func (r *JobRecord) ResultsPath() string {
	if r.LogPath == "" {
		return ""
	}
	return paths.ResultsPath(r.LogPath)
}
