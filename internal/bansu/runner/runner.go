// Package runner implements one actor per actually-spawned job: owning a
// workdir, driving its JobHandle to completion under a timeout, fanning
// status out to observers, and serving output-file requests. It follows a
// single-consumer mailbox: all state mutation is serialized through one
// goroutine draining a command channel; background work (the
// join-with-timeout worker, the async queued-path initializer) only ever
// talks back to the mailbox via messages, never touching state directly.
package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
	"github.com/hgonomeg/bansu/internal/bansu/job"
)

// Observer receives a fan-out copy of every status change, one message per
// transition, in the order transitions occurred.
type Observer interface {
	Notify(data job.Data)
}

// RequestOutputError is the error set RequestOutput can return.
type RequestOutputError int

const (
	// ErrOutputKindNotSupported means the job type does not produce kind.
	ErrOutputKindNotSupported RequestOutputError = iota
	// ErrJobStillPending means the job hasn't reached a terminal state yet
	// (also used for Queued).
	ErrJobStillPending
	// ErrNoOutput means the job is terminal but produced no output file
	// (TimedOut, SetupError).
	ErrNoOutput
)

func (e RequestOutputError) Error() string {
	switch e {
	case ErrOutputKindNotSupported:
		return "output kind not supported by this job type"
	case ErrJobStillPending:
		return "job is still pending"
	case ErrNoOutput:
		return "job did not produce output"
	default:
		return "unknown output error"
	}
}

// Runner is a JobRunner actor handle. The zero value is not usable; build
// one via TryCreate or CreateQueued.
type Runner struct {
	id      string
	jt      job.Job
	logger  *applog.JobLogger
	mailbox chan func()

	// state, owned exclusively by the mailbox goroutine.
	data      job.Data
	workdir   string
	handle    *job.Handle
	observers []Observer
}

// mailboxBuffer is generous enough that AddObserver/QueryData never block on
// a slow consumer; the loop itself never blocks on I/O, only on channel
// receive, so the queue drains promptly.
const mailboxBuffer = 64

func newRunner(id string, jt job.Job) *Runner {
	r := &Runner{
		id:      id,
		jt:      jt,
		logger:  applog.Job(id),
		mailbox: make(chan func(), mailboxBuffer),
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	for fn := range r.mailbox {
		fn()
	}
}

func (r *Runner) send(fn func()) {
	r.mailbox <- fn
}

// sendSync runs fn on the mailbox goroutine and blocks until it completes,
// used by the synchronous query operations (QueryData, RequestOutput).
func (r *Runner) sendSync(fn func()) {
	done := make(chan struct{})
	r.send(func() {
		fn()
		close(done)
	})
	<-done
}

// ---- Construction: immediate-spawn path ----

// TryCreate implements the immediate-spawn path: validate, workdir,
// write_input, launch all happen synchronously here. Any failure releases
// permit and returns without ever constructing a Runner: the validation
// error as is, or a *job.SetupError for an infra failure. Validation errors
// and infra errors never mutate system state.
func TryCreate(ctx context.Context, id string, jt job.Job, handleConfig job.HandleConfig, permit *semaphore.Weighted) (*Runner, error) {
	if err := jt.Validate(); err != nil {
		permit.Release(1)
		return nil, err
	}

	workdir, handle, err := setup(ctx, jt, handleConfig)
	if err != nil {
		permit.Release(1)
		return nil, err
	}

	r := newRunner(id, jt)
	r.workdir = workdir
	r.handle = handle
	r.data = job.Data{Status: job.Status{Kind: job.StatePending}}
	r.logger.Info("spawned, status=Pending")

	r.startWorker(ctx, jt.Timeout().Value(), permit)
	return r, nil
}

// setup runs write_input + launch, tearing down the workdir on any failure
// so a partial job never leaves scratch files behind.
func setup(ctx context.Context, jt job.Job, handleConfig job.HandleConfig) (string, *job.Handle, error) {
	workdir, err := mkWorkDir()
	if err != nil {
		return "", nil, job.NewSetupError("failed to create workdir", err)
	}

	inputPath, err := jt.WriteInput(ctx, workdir)
	if err != nil {
		removeWorkDir(workdir)
		return "", nil, job.NewSetupError("failed to write job input", err)
	}

	handle, err := jt.Launch(ctx, handleConfig, workdir, inputPath)
	if err != nil {
		removeWorkDir(workdir)
		return "", nil, job.NewSetupError("failed to launch job", err)
	}

	return workdir, handle, nil
}

// ---- Construction: queued path ----

// CreateQueued implements the queued path: the Runner starts in
// Queued status with no workdir, then asynchronously runs the same
// validate/write_input/launch sequence and transitions to Pending (success)
// or Failed(SetupError) (failure), broadcasting either outcome to observers.
// permit is already held by the caller (the manager acquires it before
// popping the queue head) and is released once the worker completes or the
// job fails to even start.
func CreateQueued(ctx context.Context, id string, jt job.Job, handleConfig job.HandleConfig, permit *semaphore.Weighted) *Runner {
	r := newRunner(id, jt)
	r.data = job.Data{Status: job.Status{Kind: job.StateQueued, QueuePosition: 1}}

	go r.initialize(ctx, handleConfig, permit)
	return r
}

func (r *Runner) initialize(ctx context.Context, handleConfig job.HandleConfig, permit *semaphore.Weighted) {
	if err := r.jt.Validate(); err != nil {
		r.send(func() { r.failSetup(err, permit) })
		return
	}

	workdir, handle, err := setup(ctx, r.jt, handleConfig)
	if err != nil {
		r.send(func() { r.failSetup(err, permit) })
		return
	}

	r.send(func() {
		r.workdir = workdir
		r.handle = handle
		r.data = job.Data{Status: job.Status{Kind: job.StatePending}}
		r.logger.Info("initialized from queue, status=Pending")
		r.broadcast()
		r.startWorker(ctx, r.jt.Timeout().Value(), permit)
	})
}

func (r *Runner) failSetup(err error, permit *semaphore.Weighted) {
	permit.Release(1)
	r.logger.Warn("setup failed: %v", err)
	r.data = job.Data{Status: job.Status{
		Kind:         job.StateFailed,
		Failure:      job.FailureSetupError,
		SetupMessage: err.Error(),
	}}
	r.broadcast()
}

// ---- worker: join-with-timeout ----

func (r *Runner) startWorker(ctx context.Context, timeout time.Duration, permit *semaphore.Weighted) {
	go func() {
		defer permit.Release(1)

		joinCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		output, err := r.handle.Join(joinCtx)
		timedOut := joinCtx.Err() == context.DeadlineExceeded

		r.send(func() {
			r.handleWorkerResult(output, err, timedOut)
		})
	}()
}

func (r *Runner) handleWorkerResult(output *job.ProcessOutput, err error, timedOut bool) {
	switch {
	case timedOut:
		r.handle.Teardown()
		r.data.Status = job.Status{Kind: job.StateFailed, Failure: job.FailureTimedOut}
		r.logger.Info("status updated: Failed(TimedOut)")

	case err != nil:
		r.handle.Teardown()
		r.data.Status = job.Status{Kind: job.StateFailed, Failure: job.FailureProcessError}
		r.logger.Info("status updated: Failed(ProcessError): %v", err)

	case output.ExitCode == 0:
		r.data.Status = job.Status{Kind: job.StateFinished}
		r.data.Output = &job.Output{Stdout: string(output.Stdout), Stderr: string(output.Stderr)}
		r.logger.Info("status updated: Finished")

	default:
		r.data.Status = job.Status{Kind: job.StateFailed, Failure: job.FailureProcessError}
		r.data.Output = &job.Output{Stdout: string(output.Stdout), Stderr: string(output.Stderr)}
		r.logger.Info("status updated: Failed(ProcessError), exit=%d", output.ExitCode)
	}

	r.broadcast()
}

func (r *Runner) broadcast() {
	snapshot := r.data.Clone()
	for _, obs := range r.observers {
		obs.Notify(snapshot)
	}
}

// ---- public operations ----

// AddObserver appends obs to the fan-out list; only future transitions
// reach it. Callers needing the current snapshot too must also call
// QueryData, matching the websocket session's handshake.
func (r *Runner) AddObserver(obs Observer) {
	r.send(func() {
		r.observers = append(r.observers, obs)
	})
}

// QueryData returns a synchronous snapshot of the current JobData.
func (r *Runner) QueryData() job.Data {
	var out job.Data
	r.sendSync(func() {
		out = r.data.Clone()
	})
	return out
}

// RequestOutput opens the named artifact for reading, or returns one of the
// RequestOutputError sentinels.
func (r *Runner) RequestOutput(kind job.OutputKind) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	var res result
	r.sendSync(func() {
		res.f, res.err = r.handleOutputRequest(kind)
	})
	return res.f, res.err
}

func (r *Runner) handleOutputRequest(kind job.OutputKind) (*os.File, error) {
	if !r.data.Status.Terminal() {
		return nil, ErrJobStillPending
	}

	if r.data.Status.Kind == job.StateFailed &&
		(r.data.Status.Failure == job.FailureTimedOut || r.data.Status.Failure == job.FailureSetupError) {
		return nil, ErrNoOutput
	}

	path, ok := r.jt.OutputPath(r.workdir, kind)
	if !ok {
		return nil, ErrOutputKindNotSupported
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	return f, nil
}

// Workdir exposes the runner's scratch directory path, used only by the
// manager's janitor to remove it after the runner has no more references.
func (r *Runner) Workdir() string {
	var path string
	r.sendSync(func() { path = r.workdir })
	return path
}

// Close tears down the runner's workdir. Called by the manager's janitor
// once it removes the map entry; os.RemoveAll is idempotent so this is safe
// to call more than once.
func (r *Runner) Close() {
	removeWorkDir(r.Workdir())
}
