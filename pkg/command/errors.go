package command

import (
	"errors"
	"fmt"
)

// Sentinel errors for command construction.
var (
	// ErrNoTargets indicates a JobSpec without any target paths.
	ErrNoTargets = errors.New("at least one target is required")

	// ErrNoExecutable indicates the interpreter or tagger script is unset.
	ErrNoExecutable = errors.New("tagger executable and script are required")
)

// ConstructionError reports that a launch could not be assembled, usually
// because a generated script could not be written. No job was started.
type ConstructionError struct {
	// Op is the step that failed (e.g., "write batch script", "chmod").
	Op string

	// Path is the file involved, if any.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *ConstructionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("build launch: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("build launch: %s: %v", e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// IsConstructionError reports whether err came from launch construction.
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}
