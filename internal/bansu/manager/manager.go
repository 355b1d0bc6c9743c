// Package manager implements the single owner of the job table and the
// FIFO admission queue. It follows the same
// single-goroutine mailbox pattern as the runner package: every operation
// that touches the job table or queue is a closure sent to one channel, so
// there is never a shared lock between admission, dequeue and the janitor.
package manager

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/runner"
)

// unlimitedWeight stands in for "no concurrency cap" when MaxConcurrentJobs
// is configured as 0. original_source/src/main.rs parses
// BANSU_MAX_CONCURRENT_JOBS with raw_num==0 mapped to None (unlimited);
// semaphore.Weighted has no "unlimited" mode, so we hand it an effectively
// unreachable ceiling instead.
const unlimitedWeight = int64(1) << 40

// AdmitError is the error set NewJob can return before a job is admitted.
type AdmitError int

const (
	// ErrTooManyJobs means the concurrency limit is saturated and either the
	// queue is full or disabled (maxQueueLength == 0).
	ErrTooManyJobs AdmitError = iota
)

func (e AdmitError) Error() string {
	switch e {
	case ErrTooManyJobs:
		return "too many jobs: queue is full"
	default:
		return "admission error"
	}
}

// EntryKind distinguishes the two outcomes of a successful NewJob call.
type EntryKind int

const (
	EntrySpawned EntryKind = iota
	EntryQueued
)

// AdmitResult is NewJob's success value.
type AdmitResult struct {
	ID            string
	Kind          EntryKind
	QueuePosition int // 1-based, meaningful only when Kind == EntryQueued
}

// Config configures a Manager's admission policy.
type Config struct {
	// MaxConcurrentJobs caps permits handed out to running jobs. 0 means
	// unlimited (matches original_source/src/main.rs's parsing).
	MaxConcurrentJobs int
	// MaxQueueLength caps the FIFO queue's length. 0 means the queue has no
	// room at all, so saturation is immediate once concurrency is exhausted.
	// See DESIGN.md for this Open Question's resolution.
	MaxQueueLength int
	HandleConfig   job.HandleConfig
	// TimeoutOverride, if nonzero, replaces every job type's own default
	// timeout.
	TimeoutOverride time.Duration
	// JanitorDelay is applied on top of the job's own timeout to decide how
	// long a terminal job is kept around for late /output or /ws lookups
	// before being removed.
	JanitorDelay func(timeout time.Duration) time.Duration
}

func defaultJanitorDelay(timeout time.Duration) time.Duration {
	return 2 * timeout
}

// Manager is a JobManager actor handle.
type Manager struct {
	cfg     Config
	sem     *semaphore.Weighted
	mailbox chan func()

	jobs  map[string]*runner.Runner
	queue []*queuedJob
}

const mailboxBuffer = 256

// New constructs and starts a Manager.
func New(cfg Config) *Manager {
	weight := unlimitedWeight
	if cfg.MaxConcurrentJobs > 0 {
		weight = int64(cfg.MaxConcurrentJobs)
	}
	if cfg.JanitorDelay == nil {
		cfg.JanitorDelay = defaultJanitorDelay
	}

	m := &Manager{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(weight),
		mailbox: make(chan func(), mailboxBuffer),
		jobs:    make(map[string]*runner.Runner),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for fn := range m.mailbox {
		fn()
	}
}

func (m *Manager) sendSync(fn func()) {
	done := make(chan struct{})
	m.mailbox <- func() {
		fn()
		close(done)
	}
	<-done
}

// NewJob implements the admission algorithm: try to acquire a concurrency
// permit immediately; on success spawn the job right away, on failure
// either enqueue it (if there's room) or reject with TooManyJobs.
//
// ctx is not passed on to the job: setup/launch on the immediate-spawn path
// and the whole lifecycle of an admitted job run under a manager-owned
// background context, because an HTTP request's context is cancelled the
// instant its handler returns, and a job must keep running (and stay
// queued) long after /run has responded.
func (m *Manager) NewJob(ctx context.Context, jt job.Job) (AdmitResult, error) {
	if m.cfg.TimeoutOverride > 0 {
		jt = withTimeoutOverride{Job: jt, override: m.cfg.TimeoutOverride}
	}

	jobCtx := context.Background()

	if m.sem.TryAcquire(1) {
		id := m.allocateID()

		// TryCreate releases the permit itself on failure.
		r, err := runner.TryCreate(jobCtx, id, jt, m.cfg.HandleConfig, m.sem)
		if err != nil {
			return AdmitResult{}, err
		}

		m.sendSync(func() {
			m.jobs[id] = r
			m.scheduleJanitor(id, jt.Timeout().Value())
		})
		applog.Job(id).Info("admitted: spawned immediately")
		return AdmitResult{ID: id, Kind: EntrySpawned}, nil
	}

	// No permit available: validate before ever touching the queue, so a
	// malformed request never occupies a queue slot.
	if err := jt.Validate(); err != nil {
		return AdmitResult{}, err
	}

	var res AdmitResult
	var admitErr error
	m.sendSync(func() {
		if len(m.queue) >= m.cfg.MaxQueueLength {
			admitErr = ErrTooManyJobs
			return
		}

		id := m.allocateIDLocked()
		qj := &queuedJob{id: id, jt: jt}
		m.queue = append(m.queue, qj)
		res = AdmitResult{ID: id, Kind: EntryQueued, QueuePosition: len(m.queue)}

		go m.waitForPermit(jobCtx, id)
	})
	if admitErr != nil {
		return AdmitResult{}, admitErr
	}
	applog.Job(res.ID).Info("admitted: queued at position %d", res.QueuePosition)
	return res, nil
}

// waitForPermit blocks (outside the mailbox) on the semaphore, then hands
// control back to the mailbox goroutine to pop this job's queue entry and
// spin up its Runner. If ctx is cancelled first the job is dropped from the
// queue without ever consuming a permit.
func (m *Manager) waitForPermit(ctx context.Context, id string) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.sendSync(func() {
			m.removeFromQueue(id)
		})
		applog.Job(id).Warn("dropped from queue: %v", err)
		return
	}

	m.sendSync(func() {
		m.dequeueAndSpawn(ctx, id)
	})
}

// dequeueAndSpawn runs on the mailbox goroutine. It must find id at (or
// near) the queue head; permits are acquired in FIFO order because
// semaphore.Weighted serves blocked Acquire calls FIFO, and Acquire calls
// are issued in the order jobs were enqueued.
func (m *Manager) dequeueAndSpawn(ctx context.Context, id string) {
	qj, ok := m.removeFromQueue(id)
	if !ok {
		// Raced with a cancellation path; nothing to do, but we're holding
		// a permit we must give back.
		m.sem.Release(1)
		return
	}

	r := runner.CreateQueued(ctx, qj.id, qj.jt, m.cfg.HandleConfig, m.sem)
	for _, obs := range qj.observers {
		// SetRunner itself registers obs as an observer of r; calling
		// AddObserver here too would deliver every transition twice.
		obs.SetRunner(r)
	}
	m.jobs[qj.id] = r
	m.scheduleJanitor(qj.id, qj.jt.Timeout().Value())
	m.renumberQueue()
}

func (m *Manager) removeFromQueue(id string) (*queuedJob, bool) {
	for i, qj := range m.queue {
		if qj.id == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return qj, true
		}
	}
	return nil, false
}

func (m *Manager) renumberQueue() {
	// Queue positions are derived on demand by LookupJob's index scan, so
	// there is nothing to persist here; renumberQueue exists as the seam a
	// future MonitorQueuedJob broadcast-on-reorder implementation would use.
}

// LookupJob returns the runner for id if it has been spawned, or the
// 1-based queue position if it is still waiting, or ok=false if id is
// unknown (never issued, or already reaped by the janitor).
func (m *Manager) LookupJob(id string) (r *runner.Runner, queuePosition int, ok bool) {
	m.sendSync(func() {
		if found, present := m.jobs[id]; present {
			r = found
			ok = true
			return
		}
		for i, qj := range m.queue {
			if qj.id == id {
				queuePosition = i + 1
				ok = true
				return
			}
		}
	})
	return r, queuePosition, ok
}

// MonitorQueuedJob attaches obs to a still-queued job so it receives the
// eventual SetRunner handshake once the job is dequeued. It returns false
// if id is not currently queued (either already spawned, in which case the
// caller should use LookupJob + Runner.AddObserver directly, or unknown).
func (m *Manager) MonitorQueuedJob(id string, obs QueueObserver) bool {
	var attached bool
	m.sendSync(func() {
		for _, qj := range m.queue {
			if qj.id == id {
				qj.observers = append(qj.observers, obs)
				attached = true
				return
			}
		}
	})
	return attached
}

// VibeCheck reports a liveness summary for the health endpoint: number of
// running jobs and number of queued jobs.
type VibeCheck struct {
	Running int
	Queued  int
}

func (m *Manager) Vibe() VibeCheck {
	var v VibeCheck
	m.sendSync(func() {
		v.Running = len(m.jobs)
		v.Queued = len(m.queue)
	})
	return v
}

// scheduleJanitor arms a one-shot timer that removes a terminal job's table
// entry and releases its workdir 2x its timeout after admission. Removing
// early for a job still running is harmless: the
// worker and its observers hold their own references and keep working: the
// map entry is purely a lookup index for new requests.
func (m *Manager) scheduleJanitor(id string, timeout time.Duration) {
	delay := m.cfg.JanitorDelay(timeout)
	time.AfterFunc(delay, func() {
		m.sendSync(func() {
			if r, ok := m.jobs[id]; ok {
				delete(m.jobs, id)
				r.Close()
				applog.Job(id).Info("reaped by janitor")
			}
		})
	})
}

// allocateID generates a UUIDv4 job ID guaranteed not to collide with any
// job currently in the table or the queue. It synchronizes
// with the mailbox goroutine itself since generation happens off the
// immediate-spawn fast path (sem already acquired, no queue contention
// risk), but still must check against concurrently-queued IDs.
func (m *Manager) allocateID() string {
	var id string
	m.sendSync(func() {
		id = m.allocateIDLocked()
	})
	return id
}

// allocateIDLocked must only be called from the mailbox goroutine.
func (m *Manager) allocateIDLocked() string {
	for {
		id := job.NewID()
		if _, exists := m.jobs[id]; exists {
			continue
		}
		collides := false
		for _, qj := range m.queue {
			if qj.id == id {
				collides = true
				break
			}
		}
		if !collides {
			return id
		}
	}
}

// withTimeoutOverride wraps a job.Job to substitute the configured
// per-deployment timeout for the job type's own default, leaving every
// other strategy method untouched.
type withTimeoutOverride struct {
	job.Job
	override time.Duration
}

func (w withTimeoutOverride) Timeout() job.Timeout {
	return job.Timeout{Default: w.Job.Timeout().Default, Override: w.override}
}
