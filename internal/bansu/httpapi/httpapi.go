// Package httpapi implements the thin HTTP boundary: POST /run, GET
// /output/{id}, GET /ws/{id}, GET /vibe. Every handler does
// nothing but decode, dispatch to the manager, and translate the result to
// a status code; all actual behavior lives in manager/runner/wsconn.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/job/jobtype"
	"github.com/hgonomeg/bansu/internal/bansu/manager"
	"github.com/hgonomeg/bansu/internal/bansu/runner"
	"github.com/hgonomeg/bansu/internal/bansu/stats"
	"github.com/hgonomeg/bansu/internal/bansu/wsconn"
)

// outputStreamBuffer is the chunk size used to stream output files.
const outputStreamBuffer = 64 * 1024

// Server holds the manager plus boot-time options needed to answer
// requests; Routes builds a *mux.Router wired to it.
type Server struct {
	Mgr        *manager.Manager
	Stats      stats.Sink
	WSInterval time.Duration
	BasePrefix string
	StartedAt  time.Time
	Version    string
	upgrader   websocket.Upgrader
}

// NewServer constructs a Server ready to have Routes called on it.
func NewServer(mgr *manager.Manager, sink stats.Sink, wsInterval time.Duration, basePrefix, version string) *Server {
	if sink == nil {
		sink = stats.NewLogSink()
	}
	return &Server{
		Mgr:        mgr,
		Stats:      sink,
		WSInterval: wsInterval,
		BasePrefix: basePrefix,
		StartedAt:  time.Now(),
		Version:    version,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// Routes registers the service's endpoints under BasePrefix, wrapped in
// the usage-statistics middleware (one row per HTTP request).
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	sub := r.PathPrefix(s.BasePrefix).Subrouter()
	sub.Use(s.statsMiddleware)
	sub.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	sub.HandleFunc("/output/{id}", s.handleOutput).Methods(http.MethodGet)
	sub.HandleFunc("/ws/{id}", s.handleWS).Methods(http.MethodGet)
	sub.HandleFunc("/vibe", s.handleVibe).Methods(http.MethodGet)
	return r
}

// statsMiddleware records one RequestRecord per request, /ws upgrades
// included: for those the record is written when the handler returns right
// after the upgrade, while the session itself runs on in its own goroutine.
func (s *Server) statsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)

		route := req.URL.Path
		s.Stats.CommitRequest(stats.RequestRecord{
			Route:       route,
			Success:     sw.status < 400,
			ClientIP:    clientIP(req),
			BytesSent:   sw.bytes,
			Duration:    time.Since(start),
			QueueLength: s.Mgr.Vibe().Queued,
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

// Hijack passes through to the underlying ResponseWriter so the /ws route's
// gorilla/websocket upgrade (which requires http.Hijacker) still works
// through this middleware.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return sw.ResponseWriter.(http.Hijacker).Hijack()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) handleRun(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading request body")
		return
	}

	var envelope struct {
		JobType string `json:"job_type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	jt, err := jobtype.FromRequest(envelope.JobType, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Mgr.NewJob(req.Context(), jt)
	if err != nil {
		switch {
		case errors.As(err, new(*job.InputValidationError)):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, manager.ErrTooManyJobs):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error_message": "Server is at capacity, please try again later.",
			})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	switch res.Kind {
	case manager.EntrySpawned:
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"job_id":         res.ID,
			"queue_position": nil,
		})
	case manager.EntryQueued:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id":         res.ID,
			"queue_position": res.QueuePosition,
		})
	}
}

func (s *Server) handleOutput(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	r, _, ok := s.Mgr.LookupJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job id")
		return
	}
	if r == nil {
		// Still in the admission queue: no workdir, nothing to serve.
		writeError(w, http.StatusBadRequest, runner.ErrJobStillPending.Error())
		return
	}

	f, err := r.RequestOutput(job.OutputCIF)
	if err != nil {
		switch err {
		case runner.ErrJobStillPending, runner.ErrOutputKindNotSupported, runner.ErrNoOutput:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, outputStreamBuffer)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		applog.Job(id).Warn("output stream interrupted: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	r, _, ok := s.Mgr.LookupJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job id")
		return
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		applog.Job(id).Warn("websocket upgrade failed: %v", err)
		return
	}

	var session *wsconn.Session
	if r != nil {
		session = wsconn.New(id, s.Mgr, conn, r, s.WSInterval)
	} else {
		session = wsconn.NewQueued(id, s.Mgr, conn, s.WSInterval)
	}
	go session.Run()
}

type vibeResponse struct {
	Running int    `json:"running"`
	Queued  int    `json:"queued"`
	UptimeS int64  `json:"uptime_seconds"`
	Version string `json:"version"`
}

func (s *Server) handleVibe(w http.ResponseWriter, req *http.Request) {
	v := s.Mgr.Vibe()
	writeJSON(w, http.StatusOK, vibeResponse{
		Running: v.Running,
		Queued:  v.Queued,
		UptimeS: int64(time.Since(s.StartedAt).Seconds()),
		Version: s.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error_message": message})
}
