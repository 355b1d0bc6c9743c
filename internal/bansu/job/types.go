// Package job defines the data model and the pluggable Job strategy that the
// runner and manager packages operate on: a job's identifier, its status
// state machine, the process handle abstraction, and the per-job-type
// strategy interface (validate/write_input/launch/output_path/timeout/name).
package job

import (
	"time"

	"github.com/google/uuid"
)

// ID is a process-unique opaque job identifier (a UUIDv4 string).
type ID = string

// NewID generates a fresh UUIDv4 job identifier.
func NewID() ID {
	return uuid.NewString()
}

// OutputKind names an artifact a Job type may produce.
type OutputKind int

const (
	// OutputCIF is a crystallographic information file.
	OutputCIF OutputKind = iota
	// OutputMTZ is a reflection-data file.
	OutputMTZ
)

func (k OutputKind) String() string {
	switch k {
	case OutputCIF:
		return "CIF"
	case OutputMTZ:
		return "MTZ"
	default:
		return "UNKNOWN"
	}
}

// FailureReason tags why a job ended up in the Failed state.
type FailureReason int

const (
	// FailureTimedOut means the job exceeded its allotted wall-clock timeout.
	FailureTimedOut FailureReason = iota
	// FailureProcessError means the external process exited non-zero.
	FailureProcessError
	// FailureSetupError means validate/write_input/launch failed before the
	// process (or container) ever ran.
	FailureSetupError
)

func (r FailureReason) String() string {
	switch r {
	case FailureTimedOut:
		return "TimedOut"
	case FailureProcessError:
		return "ProcessError"
	case FailureSetupError:
		return "SetupError"
	default:
		return "Unknown"
	}
}

// StateKind is the tag of the JobStatus variant.
type StateKind int

const (
	// StateQueued means the job is accepted and waiting for a concurrency permit.
	StateQueued StateKind = iota
	// StatePending means the job has been spawned and the external process is running.
	StatePending
	// StateFinished means the process exited with success.
	StateFinished
	// StateFailed means the job ended in one of the FailureReason variants.
	StateFailed
)

// Status is the tagged-variant snapshot of a job's lifecycle state.
type Status struct {
	Kind StateKind

	// QueuePosition is valid only when Kind == StateQueued. 1-based from the head.
	QueuePosition int

	// Failure is valid only when Kind == StateFailed.
	Failure FailureReason
	// SetupMessage carries the message for FailureSetupError.
	SetupMessage string
}

// Terminal reports whether the status is one of the terminal states.
func (s Status) Terminal() bool {
	return s.Kind == StateFinished || s.Kind == StateFailed
}

// Output is the captured stdout/stderr of a job that actually ran to
// completion (or failed with a non-zero exit). Absent for TimedOut and
// SetupError.
type Output struct {
	Stdout string
	Stderr string
}

// Data is the snapshot returned on query and the unit of fan-out to observers.
type Data struct {
	Status Status
	Output *Output
}

// Clone returns a deep-enough copy safe to hand to independent observers.
func (d Data) Clone() Data {
	if d.Output == nil {
		return d
	}
	out := *d.Output
	d.Output = &out
	return d
}

// ProcessConfig describes how to invoke the external tool, independent of
// whether it runs directly or inside a container.
type ProcessConfig struct {
	Executable string
	Args       []string
	WorkingDir string
}

// HandleConfig carries the optional container backend selection.
type HandleConfig struct {
	// ContainerImage, if set, routes job execution through the Container
	// JobHandle variant instead of Direct.
	ContainerImage string
}

// Timeout bundles the default per-job-type timeout with a config override.
type Timeout struct {
	Default  time.Duration
	Override time.Duration // zero means "no override"
}

// Value resolves the effective timeout.
func (t Timeout) Value() time.Duration {
	if t.Override > 0 {
		return t.Override
	}
	return t.Default
}
