package job

import (
	"context"
	"fmt"
)

// kind tags which backend a Handle was constructed with.
type kind int

const (
	kindDirect kind = iota
	kindContainer
)

// Handle is the uniform join-able process handle, with Direct (local
// child) and Container variants. Callers never branch on the kind;
// New picks it from HandleConfig and Join/Teardown behave uniformly.
type Handle struct {
	k kind

	direct    *directProc
	container *containerProc
}

// ProcessOutput is the result of joining a Handle: exit code plus captured
// stdout/stderr.
type ProcessOutput struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// New constructs a Handle according to handleConfig: a container if
// ContainerImage is set (workdir bind-mounted source=dst=workdir), otherwise
// a direct child with stdin=null, stdout+stderr piped, args passed verbatim.
func New(ctx context.Context, pc ProcessConfig, hc HandleConfig) (*Handle, error) {
	if hc.ContainerImage != "" {
		cp, err := newContainerProc(ctx, pc, hc.ContainerImage)
		if err != nil {
			return nil, fmt.Errorf("starting container: %w", err)
		}
		return &Handle{k: kindContainer, container: cp}, nil
	}

	dp, err := newDirectProc(pc)
	if err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}
	return &Handle{k: kindDirect, direct: dp}, nil
}

// Join blocks until the process/container finishes and returns its output.
// For containers, logs are collected concurrently while waiting for the
// "not-running" condition; the exit status (zero or not) arrives on the wait
// status channel and is a normal exit, while any error on the wait error
// channel is an infra failure (see DESIGN.md's Open Question 2 resolution).
func (h *Handle) Join(ctx context.Context) (*ProcessOutput, error) {
	switch h.k {
	case kindDirect:
		return h.direct.join(ctx)
	case kindContainer:
		return h.container.join(ctx)
	default:
		return nil, fmt.Errorf("job: unknown handle kind")
	}
}

// Teardown performs best-effort cleanup (killing an orphaned direct child,
// or remove->stop->remove for a container). It never returns an error to the
// caller; the container variant logs stop/remove failures at warn itself.
func (h *Handle) Teardown() {
	switch h.k {
	case kindDirect:
		h.direct.teardown()
	case kindContainer:
		h.container.teardown()
	}
}
