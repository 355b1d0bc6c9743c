package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/runner"
)

// fakeJob mirrors runner's test double so manager tests don't depend on
// real external tools beyond /bin/sh, matching what the runner package
// already exercises.
type fakeJob struct {
	exitCode int
	sleep    time.Duration
}

var _ job.Job = (*fakeJob)(nil)

func (f *fakeJob) Name() string         { return "fake" }
func (f *fakeJob) Timeout() job.Timeout { return job.Timeout{Default: 5 * time.Second} }
func (f *fakeJob) Validate() error      { return nil }

func (f *fakeJob) WriteInput(ctx context.Context, workdir string) (string, error) {
	return workdir + "/input", nil
}

func (f *fakeJob) Launch(ctx context.Context, hc job.HandleConfig, workdir, inputPath string) (*job.Handle, error) {
	return job.New(ctx, job.ProcessConfig{
		Executable: "sh",
		Args:       []string{"-c", fmt.Sprintf("sleep %f; exit %d", f.sleep.Seconds(), f.exitCode)},
		WorkingDir: workdir,
	}, hc)
}

func (f *fakeJob) OutputPath(workdir string, kind job.OutputKind) (string, bool) {
	return workdir + "/output.cif", true
}

type fakeObserver struct {
	notifications chan job.Data
	runnerSet     chan *runner.Runner
}

var _ QueueObserver = (*fakeObserver)(nil)

func newFakeObserver() *fakeObserver {
	return &fakeObserver{notifications: make(chan job.Data, 16), runnerSet: make(chan *runner.Runner, 1)}
}

func (o *fakeObserver) Notify(d job.Data) { o.notifications <- d }

func (o *fakeObserver) SetRunner(r *runner.Runner) { o.runnerSet <- r }

func TestNewJobImmediateSpawn(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 0})

	res, err := m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	require.NoError(t, err)
	assert.Equal(t, EntrySpawned, res.Kind)
	assert.NotEmpty(t, res.ID)
}

func TestNewJobQueuesWhenSaturated(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})

	first, err := m.NewJob(context.Background(), &fakeJob{sleep: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, EntrySpawned, first.Kind)

	second, err := m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	require.NoError(t, err)
	assert.Equal(t, EntryQueued, second.Kind)
	assert.Equal(t, 1, second.QueuePosition)

	_, _, ok := m.LookupJob(second.ID)
	assert.True(t, ok)
}

func TestNewJobRejectsWhenQueueFull(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 0})

	first, err := m.NewJob(context.Background(), &fakeJob{sleep: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, EntrySpawned, first.Kind)

	_, err = m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	assert.Equal(t, ErrTooManyJobs, err)
}

func TestLookupJobUnknown(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})
	_, _, ok := m.LookupJob("does-not-exist")
	assert.False(t, ok)
}

func TestVibeReportsRunningAndQueued(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})

	_, err := m.NewJob(context.Background(), &fakeJob{sleep: 500 * time.Millisecond})
	require.NoError(t, err)
	_, err = m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	require.NoError(t, err)

	v := m.Vibe()
	assert.Equal(t, 1, v.Running)
	assert.Equal(t, 1, v.Queued)
}

func TestMonitorQueuedJobReceivesSetRunnerHandshake(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})

	_, err := m.NewJob(context.Background(), &fakeJob{sleep: 300 * time.Millisecond, exitCode: 0})
	require.NoError(t, err)

	second, err := m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	require.NoError(t, err)
	require.Equal(t, EntryQueued, second.Kind)

	obs := newFakeObserver()
	require.True(t, m.MonitorQueuedJob(second.ID, obs))

	select {
	case r := <-obs.runnerSet:
		assert.NotNil(t, r)
	case <-time.After(3 * time.Second):
		t.Fatal("SetRunner handshake never fired")
	}
}

func TestMonitorQueuedJobUnknownID(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})
	assert.False(t, m.MonitorQueuedJob("does-not-exist", newFakeObserver()))
}

func TestQueuedJobEventuallySpawns(t *testing.T) {
	m := New(Config{MaxConcurrentJobs: 1, MaxQueueLength: 1})

	_, err := m.NewJob(context.Background(), &fakeJob{sleep: 300 * time.Millisecond, exitCode: 0})
	require.NoError(t, err)

	second, err := m.NewJob(context.Background(), &fakeJob{exitCode: 0})
	require.NoError(t, err)
	require.Equal(t, EntryQueued, second.Kind)

	deadline := time.After(3 * time.Second)
	for {
		r, _, ok := m.LookupJob(second.ID)
		if ok && r != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("queued job never transitioned to a runner")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
