package job

import "context"

// Job is the per-tool strategy interface. Concrete types live under
// job/jobtype. The manager and runner packages only ever see this
// interface, never a specific tool.
type Job interface {
	// Name is informational only.
	Name() string

	// Timeout is the max wall-clock duration from launch to join before the
	// runner declares the job TimedOut.
	Timeout() Timeout

	// Validate is pure and is called before any filesystem work. Returning a
	// non-nil error must leave no trace in the system (no workdir, no permit
	// consumed beyond the admission check already performed by the caller).
	Validate() error

	// WriteInput materializes the input file(s) under workdir and returns the
	// path of the primary input file. May perform network fetches.
	WriteInput(ctx context.Context, workdir string) (string, error)

	// Launch constructs the argv and invokes job.New, returning a joinable
	// process/container handle.
	Launch(ctx context.Context, handleConfig HandleConfig, workdir, inputPath string) (*Handle, error)

	// OutputPath returns the expected artifact location for kind, or ok=false
	// if this job type does not support it.
	OutputPath(workdir string, kind OutputKind) (path string, ok bool)
}
