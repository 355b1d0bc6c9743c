package manager

import (
	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/runner"
)

// QueueObserver is what a websocket session implements to be late-bound to
// a runner once its queued job is dequeued, via MonitorQueuedJob +
// SetRunner.
type QueueObserver interface {
	runner.Observer
	// SetRunner delivers the eventual runner reference exactly once. A
	// second delivery (which cannot legitimately happen, but the contract
	// guards against it) must be logged and ignored by the implementation.
	SetRunner(r *runner.Runner)
}

// queuedJob is a job accepted but not yet holding a concurrency permit.
// Observers registered here before dequeue are carried forward to the
// runner once one is constructed.
type queuedJob struct {
	id        string
	jt        job.Job
	observers []QueueObserver
}
