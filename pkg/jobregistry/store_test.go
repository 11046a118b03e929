package jobregistry

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/3leaps/taglaunch/pkg/signal"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	rec := &JobRecord{
		JobID:     "job-1",
		Name:      "demo",
		State:     JobStateSuccess,
		Targets:   []string{"/photos/day1", "/photos/day2"},
		DryRun:    true,
		Expected:  2,
		Platform:  "posix",
		Mode:      "batch",
		CreatedAt: now,
		StartedAt: &now,
		EndedAt:   &now,
		Outcome:   "completed",
		Stats:     &signal.Signal{Sequence: 2, TotalImages: 40, Successful: 38, Failed: 2},
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id mismatch: got=%q want=%q", got.JobID, rec.JobID)
	}
	if got.State != rec.State {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, rec.State)
	}
	if len(got.Targets) != 2 || got.Targets[1] != "/photos/day2" {
		t.Fatalf("targets not persisted: %v", got.Targets)
	}
	if got.Stats == nil || got.Stats.TotalImages != 40 {
		t.Fatalf("stats not persisted")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("nope")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&JobRecord{JobID: "job-1", State: JobStateSuccess, CreatedAt: t1, StartedAt: &t1}); err != nil {
		t.Fatalf("Write job-1: %v", err)
	}
	if err := s.Write(&JobRecord{JobID: "job-2", State: JobStateSuccess, CreatedAt: t2, StartedAt: &t2}); err != nil {
		t.Fatalf("Write job-2: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].JobID != "job-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].JobID)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest.JobID != "job-2" {
		t.Fatalf("Latest() = %q, want job-2", latest.JobID)
	}
}

func TestStore_LatestEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Latest(); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_DeadProcessMarkedUnknown(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the true(1) utility")
	}

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("true not available: %v", err)
	}
	deadPID := cmd.Process.Pid

	s := NewStore(t.TempDir())
	now := time.Now().UTC()
	if err := s.Write(&JobRecord{JobID: "job-dead", State: JobStateRunning, PID: deadPID, CreatedAt: now}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(&JobRecord{JobID: "job-live", State: JobStateRunning, PID: os.Getpid(), CreatedAt: now}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Get("job-dead")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != JobStateUnknown {
		t.Fatalf("state = %q, want unknown", got.State)
	}

	running, err := s.Running()
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if len(running) != 1 || running[0].JobID != "job-live" {
		t.Fatalf("Running() = %+v, want only job-live", running)
	}
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()
	for _, id := range []string{"abc123-1", "abc456-2", "def789-3"} {
		if err := s.Write(&JobRecord{JobID: id, State: JobStateSuccess, CreatedAt: now}); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"abc123-1", "abc123-1", false},
		{"def", "def789-3", false},
		{"abc4", "abc456-2", false},
		{"abc", "", true},
		{"zzz", "", true},
		{"  ", "", true},
	}
	for _, tt := range tests {
		got, err := s.Resolve(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Resolve(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStore_Prune(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	records := []*JobRecord{
		{JobID: "old-success", State: JobStateSuccess, CreatedAt: old, EndedAt: &old},
		{JobID: "old-unknown", State: JobStateUnknown, CreatedAt: old, EndedAt: &old},
		{JobID: "recent-success", State: JobStateSuccess, CreatedAt: recent, EndedAt: &recent},
		{JobID: "old-stopping", State: JobStateStopping, CreatedAt: old, EndedAt: &old},
		{JobID: "never-ended", State: JobStateUnknown, CreatedAt: old},
	}
	for _, r := range records {
		if err := s.Write(r); err != nil {
			t.Fatalf("Write %s: %v", r.JobID, err)
		}
	}

	n, err := s.Prune(now, 7*24*time.Hour, true)
	if err != nil {
		t.Fatalf("Prune dry-run: %v", err)
	}
	if n != 2 {
		t.Fatalf("dry-run count = %d, want 2", n)
	}
	if jobs, _ := s.List(); len(jobs) != len(records) {
		t.Fatalf("dry-run deleted records")
	}

	n, err = s.Prune(now, 7*24*time.Hour, false)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	if _, err := s.Get("old-success"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("old-success still present")
	}
	if _, err := s.Get("recent-success"); err != nil {
		t.Fatalf("recent-success removed: %v", err)
	}
}

func TestStore_WriteValidation(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
	if err := s.Write(&JobRecord{JobID: " "}); err == nil {
		t.Fatalf("expected error for empty job_id")
	}
	if err := NewStore("").Write(&JobRecord{JobID: "x"}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestJobState_Terminal(t *testing.T) {
	if JobStateRunning.Terminal() || JobStateStopping.Terminal() {
		t.Fatalf("running states reported terminal")
	}
	for _, s := range []JobState{JobStateStopped, JobStateSuccess, JobStatePartial, JobStateFailed, JobStateUnknown} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
