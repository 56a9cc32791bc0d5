package cache

import (
	"sync/atomic"
	"time"

	"media-cache/internal/pipeline"
)

// JobID identifies one cache job. IDs are monotonically increasing per
// Manager instance and never reused.
type JobID uint64

// JobSpec describes the work a caller wants cached.
type JobSpec struct {
	// SourcePath is the media file to normalize. It must exist and be
	// readable at submission time.
	SourcePath string

	// ForceContainerMOV is accepted for compatibility; outputs always
	// use the mov container so cache paths stay deterministic.
	ForceContainerMOV bool

	// PreferredCodec selects the target output family.
	PreferredCodec pipeline.Codec

	// SourceCodec is an optional hint naming the source's video codec,
	// trusted when it matches known tokens for the target family.
	SourceCodec string
}

// JobState enumerates the job state machine. Queued and InProgress are
// active; the other three are terminal and mutually exclusive.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateInProgress JobState = "in_progress"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateCanceled   JobState = "canceled"
)

// JobStatus is a point-in-time snapshot of a job. Progress is
// meaningful while InProgress, OutputPath once Completed, and Message
// once Failed.
type JobStatus struct {
	State      JobState
	Progress   float64
	OutputPath string
	Message    string
}

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// Event is an immutable snapshot broadcast after every transition.
// Transitions for a given job arrive in order; there is no cross-job
// ordering guarantee.
type Event struct {
	JobID  JobID
	Status JobStatus
}

// jobRecord is the registry's view of one job. It is owned exclusively
// by the Manager's table; workers hold only the cancel flag pointer and
// copies of the paths.
type jobRecord struct {
	spec       JobSpec
	status     JobStatus
	cancel     *atomic.Bool
	outputPath string
	tmpPath    string
	dedupKey   string
	startedAt  time.Time

	// finalized flips exactly once, when a terminal outcome is claimed.
	// The terminal status itself is written later, after the filesystem
	// work settles, so status never shows Completed for a file that is
	// not in place yet.
	finalized bool
}
