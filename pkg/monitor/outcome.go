package monitor

import (
	"time"

	"github.com/3leaps/taglaunch/pkg/signal"
)

// State is the coarse monitor state.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateStabilizing
	StateDone
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStabilizing:
		return "stabilizing"
	case StateDone:
		return "done"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateTimedOut || s == StateCancelled
}

// OutcomeKind classifies how monitoring ended.
type OutcomeKind string

const (
	// OutcomeCompleted means the job finished and Stats holds the final
	// signal.
	OutcomeCompleted OutcomeKind = "completed"

	// OutcomeDegraded means the job finished but the final read failed, so
	// statistics are unavailable.
	OutcomeDegraded OutcomeKind = "degraded"

	// OutcomeTimedOut means MaxWait elapsed. The job's state is unknown and
	// it was not stopped.
	OutcomeTimedOut OutcomeKind = "timed_out"

	// OutcomeCancelled means the caller stopped watching. The job keeps
	// running.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the single result of a monitor run.
type Outcome struct {
	Kind OutcomeKind

	// Stats is set only for OutcomeCompleted.
	Stats *signal.Signal

	// Sequence is the last sequence observed.
	Sequence int

	// Elapsed is the polling time consumed, excluding the settle delay.
	Elapsed time.Duration

	// Err explains degraded and cancelled outcomes.
	Err error
}

// Complete reports whether the job is known to have finished.
func (o Outcome) Complete() bool {
	return o.Kind == OutcomeCompleted || o.Kind == OutcomeDegraded
}

// Progress is a point-in-time view of a running watch.
type Progress struct {
	State       State
	Sequence    int
	Expected    int
	TotalImages int
	Elapsed     time.Duration
}
