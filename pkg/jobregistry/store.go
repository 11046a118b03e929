package jobregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrJobNotFound is returned when no record matches a job id.
var ErrJobNotFound = errors.New("job not found")

// Store persists and loads JobRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//
// Root is expected to be under the app data dir. The tagger's own log and
// signal files live at fixed temp paths recorded in each JobRecord.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "job.json")
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("job registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Write persists record atomically: readers see either the previous or the
// new job.json, never a partial one.
func (s *Store) Write(record *JobRecord) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	jobID := strings.TrimSpace(record.JobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	jobDir := s.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath(jobID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

// Get loads one record. A record that claims to be running but whose
// process is gone is rewritten as unknown.
func (s *Store) Get(jobID string) (*JobRecord, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	b, err := os.ReadFile(s.JobPath(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var record JobRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}

	if record.State == JobStateRunning && record.PID > 0 && !IsProcessAlive(record.PID) {
		record.State = JobStateUnknown
		now := time.Now().UTC()
		record.LastHeartbeat = &now
		_ = s.Write(&record)
	}

	return &record, nil
}

// List returns all readable records, newest first.
func (s *Store) List() ([]JobRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]JobRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return jobSortTime(out[i]).After(jobSortTime(out[j]))
	})

	return out, nil
}

// Latest returns the newest record.
func (s *Store) Latest() (*JobRecord, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

// Running returns records still marked running with a live process.
func (s *Store) Running() ([]JobRecord, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []JobRecord
	for _, j := range jobs {
		if j.State == JobStateRunning {
			out = append(out, j)
		}
	}
	return out, nil
}

// Resolve accepts a full job id or a unique prefix of one.
func (s *Store) Resolve(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	if _, err := s.Get(input); err == nil {
		return input, nil
	}

	jobs, err := s.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use full job_id or --json", len(matches))
	}
	return matches[0], nil
}

// Delete removes a job's directory.
func (s *Store) Delete(jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}
	return nil
}

// Prune deletes terminal records that ended more than maxAge before now.
// With dryRun set nothing is removed. It returns the number of matching
// records.
func (s *Store) Prune(now time.Time, maxAge time.Duration, dryRun bool) (int, error) {
	jobs, err := s.List()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, j := range jobs {
		if j.EndedAt == nil || !j.State.Terminal() {
			continue
		}
		if now.Sub(j.EndedAt.UTC()) <= maxAge {
			continue
		}
		if !dryRun {
			if err := s.Delete(j.JobID); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

func jobSortTime(r JobRecord) time.Time {
	if r.StartedAt != nil {
		return r.StartedAt.UTC()
	}
	return r.CreatedAt.UTC()
}
