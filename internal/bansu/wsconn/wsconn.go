// Package wsconn implements one actor per WebSocket session, translating
// JobData snapshots into the wire protocol
// and driving the session's lifetime from Queued/Pending through to a
// terminal close. Like runner and manager it is a single-consumer mailbox
// so the periodic ticker, the read pump and observer notifications never
// race on the gorilla/websocket connection, which is not safe for
// concurrent writers.
package wsconn

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/manager"
	"github.com/hgonomeg/bansu/internal/bansu/runner"
)

// wireUpdate is the serialized JobData update sent over the socket.
type wireUpdate struct {
	Status        string      `json:"status"`
	JobOutput     *wireOutput `json:"job_output,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	QueuePosition *int        `json:"queue_position,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

type wireOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func statusName(k job.StateKind) string {
	switch k {
	case job.StateQueued:
		return "Queued"
	case job.StatePending:
		return "Pending"
	case job.StateFinished:
		return "Finished"
	case job.StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func failureName(r job.FailureReason) string {
	switch r {
	case job.FailureTimedOut:
		return "TimedOut"
	case job.FailureProcessError:
		return "JobProcessError"
	case job.FailureSetupError:
		return "SetupError"
	default:
		return ""
	}
}

func toWireUpdate(data job.Data, queuePosition int) wireUpdate {
	w := wireUpdate{Status: statusName(data.Status.Kind)}

	if data.Status.Kind == job.StateQueued {
		pos := queuePosition
		w.QueuePosition = &pos
	}

	if data.Status.Kind == job.StateFailed {
		w.FailureReason = failureName(data.Status.Failure)
		if data.Status.Failure == job.FailureSetupError {
			w.ErrorMessage = data.Status.SetupMessage
		}
	}

	if data.Output != nil {
		w.JobOutput = &wireOutput{Stdout: data.Output.Stdout, Stderr: data.Output.Stderr}
	}

	return w
}

// Conn is the gorilla/websocket connection, narrowed to what this package
// uses so tests can substitute a fake.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Session is a WsConnection actor handle. Run drives it to completion and
// only returns once the socket is closed.
type Session struct {
	id       string
	mgr      *manager.Manager
	conn     Conn
	interval time.Duration
	logger   *applog.JobLogger

	mailbox chan func()

	r             *runner.Runner
	queuePosition int
	lastData      job.Data
	closed        bool
}

// New constructs a session bound immediately to a live runner (the
// job was already spawned or already dequeued by the time /ws/{id}
// arrived).
func New(id string, mgr *manager.Manager, conn Conn, r *runner.Runner, interval time.Duration) *Session {
	return &Session{id: id, mgr: mgr, conn: conn, r: r, interval: interval, logger: applog.Job(id), mailbox: make(chan func(), 32)}
}

// NewQueued constructs a session for a job that is still in the admission
// queue; it will receive the runner later via SetRunner.
func NewQueued(id string, mgr *manager.Manager, conn Conn, interval time.Duration) *Session {
	return &Session{id: id, mgr: mgr, conn: conn, interval: interval, logger: applog.Job(id), mailbox: make(chan func(), 32)}
}

// Notify implements runner.Observer.
func (s *Session) Notify(data job.Data) {
	s.send(func() { s.applyUpdate(data) })
}

// SetRunner implements manager.QueueObserver: the late-binding handshake
// fired once a queued job is dequeued and a Runner exists for it.
func (s *Session) SetRunner(r *runner.Runner) {
	s.send(func() {
		if s.r != nil {
			s.logger.Warn("SetRunner delivered twice, ignoring")
			return
		}
		s.r = r
		r.AddObserver(s)
		s.applyUpdate(r.QueryData())
	})
}

func (s *Session) send(fn func()) {
	s.mailbox <- fn
}

// Run is the session's main loop: starts the ticker and the read pump, and
// processes mailbox messages (observer notifications, SetRunner, ticks)
// until the job reaches a terminal state or the socket errors out. It
// blocks until the session ends, so callers run it in its own goroutine
// per accepted WebSocket.
func (s *Session) Run() {
	defer s.teardown()

	if s.r != nil {
		s.r.AddObserver(s)
		s.send(func() { s.applyUpdate(s.r.QueryData()) })
	} else {
		if !s.mgr.MonitorQueuedJob(s.id, s) {
			// Job left the queue between lookup and registration (dequeued
			// and spawned, reaped by the janitor, or it was never actually
			// queued); surface nothing further and close.
			return
		}
		s.send(func() {
			s.applyUpdate(job.Data{Status: job.Status{Kind: job.StateQueued}})
		})
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	readErr := make(chan struct{})
	go s.readPump(readErr)

	for {
		select {
		case fn := <-s.mailbox:
			fn()
			if s.closed {
				return
			}
		case <-ticker.C:
			s.send(func() { s.poll() })
		case <-readErr:
			return
		}
	}
}

// readPump answers Pings with Pongs and ignores Text/Binary frames; any
// read error (including client close) signals done.
func (s *Session) readPump(done chan<- struct{}) {
	defer close(done)
	for {
		mt, _, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.PingMessage {
			_ = s.conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
			continue
		}
		s.logger.Debug("ignoring client frame type=%d", mt)
	}
}

// poll is the ticker handler: refresh from the runner if bound, or ask the
// manager for the current queue position otherwise.
func (s *Session) poll() {
	if s.r != nil {
		s.applyUpdate(s.r.QueryData())
		return
	}
	if _, pos, ok := s.mgr.LookupJob(s.id); ok {
		s.queuePosition = pos
		s.applyUpdate(job.Data{Status: job.Status{Kind: job.StateQueued, QueuePosition: pos}})
	}
}

func (s *Session) applyUpdate(data job.Data) {
	if s.closed {
		return
	}
	s.lastData = data
	pos := s.queuePosition
	if data.Status.Kind == job.StateQueued && data.Status.QueuePosition > 0 {
		pos = data.Status.QueuePosition
	}

	msg := toWireUpdate(data, pos)
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("write failed, closing: %v", err)
		s.closed = true
		return
	}

	switch data.Status.Kind {
	case job.StateFinished:
		s.closeWith(websocket.CloseNormalClosure, "job finished")
	case job.StateFailed:
		s.closeWith(websocket.CloseInternalServerErr, "job failed")
	}
}

func (s *Session) closeWith(code int, text string) {
	deadline := time.Now().Add(2 * time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	s.closed = true
}

func (s *Session) teardown() {
	_ = s.conn.Close()
}
