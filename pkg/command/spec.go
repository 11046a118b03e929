package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobSpec describes one requested tagger run.
//
// A JobSpec is immutable once launched: the command builder copies what it
// needs and the monitor only reads ExpectedCount.
type JobSpec struct {
	// Targets are image files or directories, in invocation order.
	Targets []string `json:"targets" yaml:"targets"`

	// DryRun asks the tagger to simulate without writing sidecars.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`

	// Resume asks the tagger to skip images finished by a previous run.
	Resume bool `json:"resume,omitempty" yaml:"resume,omitempty"`

	// ExpectedCount is the completion target for the signal sequence.
	// Zero means one per target, since the tagger bumps the sequence once
	// per invocation.
	ExpectedCount int `json:"expected_count,omitempty" yaml:"expected_count,omitempty"`
}

// Expected returns the effective completion target.
func (s JobSpec) Expected() int {
	if s.ExpectedCount > 0 {
		return s.ExpectedCount
	}
	return len(s.Targets)
}

// IsBatch reports whether the spec needs a generated batch script.
func (s JobSpec) IsBatch() bool {
	return len(s.Targets) > 1
}

// Validate checks the spec before anything touches the filesystem.
func (s JobSpec) Validate() error {
	if len(s.Targets) == 0 {
		return ErrNoTargets
	}
	for i, t := range s.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("targets[%d] is empty", i)
		}
	}
	if s.ExpectedCount < 0 {
		return fmt.Errorf("expected_count must be >= 0, got %d", s.ExpectedCount)
	}
	return nil
}

// LoadSpec reads a JobSpec from a YAML or JSON file.
//
// The format is chosen by extension: .json is JSON, anything else is parsed
// as YAML (a superset of JSON). Relative targets are resolved against the
// spec file's directory.
func LoadSpec(path string) (*JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job spec not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading job spec: %s", path)
		}
		return nil, fmt.Errorf("read job spec: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("job spec file is empty")
	}

	var spec JobSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("invalid JSON in job spec: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("invalid YAML in job spec: %w", err)
		}
	}

	base := filepath.Dir(path)
	for i, t := range spec.Targets {
		t = strings.TrimSpace(t)
		if t != "" && !filepath.IsAbs(t) {
			t = filepath.Join(base, t)
		}
		spec.Targets[i] = t
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
