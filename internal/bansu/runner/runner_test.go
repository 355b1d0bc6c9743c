package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

// fakeJob is a minimal job.Job used to drive the runner actor without a
// real external tool: it launches a plain "sh -c" command.
type fakeJob struct {
	name        string
	timeout     time.Duration
	validateErr error
	writeErr    error
	launchErr   error
	exitCode    int
	sleep       time.Duration
}

var _ job.Job = (*fakeJob)(nil)

func (f *fakeJob) Name() string         { return f.name }
func (f *fakeJob) Timeout() job.Timeout { return job.Timeout{Default: f.timeout} }
func (f *fakeJob) Validate() error      { return f.validateErr }

func (f *fakeJob) WriteInput(ctx context.Context, workdir string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	return workdir + "/input", nil
}

func (f *fakeJob) Launch(ctx context.Context, hc job.HandleConfig, workdir, inputPath string) (*job.Handle, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	// "sh -c" with a controllable sleep + exit code exercises the real
	// Direct handle end-to-end rather than faking job.Handle itself.
	return job.New(ctx, job.ProcessConfig{
		Executable: "sh",
		Args:       []string{"-c", fmt.Sprintf("sleep %f; exit %d", f.sleep.Seconds(), f.exitCode)},
		WorkingDir: workdir,
	}, hc)
}

func (f *fakeJob) OutputPath(workdir string, kind job.OutputKind) (string, bool) {
	if kind != job.OutputCIF {
		return "", false
	}
	return workdir + "/output.cif", true
}

type recordingObserver struct {
	mu   sync.Mutex
	data []job.Data
	done chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{done: make(chan struct{}, 16)}
}

func (o *recordingObserver) Notify(d job.Data) {
	o.mu.Lock()
	o.data = append(o.data, d)
	o.mu.Unlock()
	o.done <- struct{}{}
}

func (o *recordingObserver) waitForTerminal(t *testing.T, timeout time.Duration) job.Data {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case <-o.done:
			o.mu.Lock()
			last := o.data[len(o.data)-1]
			o.mu.Unlock()
			if last.Status.Terminal() {
				return last
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal status")
		}
	}
}

func TestTryCreateHappyPath(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: 5 * time.Second, exitCode: 0}
	r, err := TryCreate(context.Background(), "job-1", fj, job.HandleConfig{}, sem)
	require.NoError(t, err)

	obs := newRecordingObserver()
	r.AddObserver(obs)

	final := obs.waitForTerminal(t, 5*time.Second)
	assert.Equal(t, job.StateFinished, final.Status.Kind)
	require.NotNil(t, final.Output)
}

func TestTryCreateNonZeroExit(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: 5 * time.Second, exitCode: 7}
	r, err := TryCreate(context.Background(), "job-2", fj, job.HandleConfig{}, sem)
	require.NoError(t, err)

	obs := newRecordingObserver()
	r.AddObserver(obs)

	final := obs.waitForTerminal(t, 5*time.Second)
	assert.Equal(t, job.StateFailed, final.Status.Kind)
	assert.Equal(t, job.FailureProcessError, final.Status.Failure)
}

func TestTryCreateTimeout(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: 200 * time.Millisecond, sleep: 5 * time.Second}
	r, err := TryCreate(context.Background(), "job-3", fj, job.HandleConfig{}, sem)
	require.NoError(t, err)

	obs := newRecordingObserver()
	r.AddObserver(obs)

	final := obs.waitForTerminal(t, 5*time.Second)
	assert.Equal(t, job.StateFailed, final.Status.Kind)
	assert.Equal(t, job.FailureTimedOut, final.Status.Failure)
	assert.Nil(t, final.Output)
}

func TestTryCreateValidationErrorNeverConstructsRunner(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: time.Second, validateErr: job.NewValidationError("bad input")}
	r, err := TryCreate(context.Background(), "job-4", fj, job.HandleConfig{}, sem)
	assert.Error(t, err)
	assert.Nil(t, r)

	// The permit was never consumed by a worker, so it must still be free.
	assert.True(t, sem.TryAcquire(1))
}

func TestCreateQueuedSetupFailureNeverSendsPending(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: time.Second, writeErr: assertErr("disk full")}
	r := CreateQueued(context.Background(), "job-5", fj, job.HandleConfig{}, sem)

	obs := newRecordingObserver()
	r.AddObserver(obs)

	final := obs.waitForTerminal(t, 5*time.Second)
	assert.Equal(t, job.StateFailed, final.Status.Kind)
	assert.Equal(t, job.FailureSetupError, final.Status.Failure)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	for _, d := range obs.data {
		assert.NotEqual(t, job.StatePending, d.Status.Kind)
	}
}

func TestRequestOutputStillPending(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	fj := &fakeJob{name: "fake", timeout: 5 * time.Second, sleep: 2 * time.Second}
	r, err := TryCreate(context.Background(), "job-6", fj, job.HandleConfig{}, sem)
	require.NoError(t, err)

	_, err = r.RequestOutput(job.OutputCIF)
	assert.Equal(t, ErrJobStillPending, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
