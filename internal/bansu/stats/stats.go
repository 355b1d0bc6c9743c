// Package stats implements the usage-statistics write-only sink, with
// commit/finalize calls bracketing a request or job's lifetime.
// original_source's src/usage_statistics.rs persisted these to sqlite;
// here the sink is an interface so the core never depends on a storage
// choice, with a structured-logging implementation (grounded on the
// pack's stdlib-log idiom, see DESIGN.md) as the concrete default.
package stats

import (
	"time"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
)

// RequestRecord is one row per HTTP request handled.
type RequestRecord struct {
	Route       string
	Success     bool
	ClientIP    string
	BytesSent   int64
	Duration    time.Duration
	QueueLength int
	Error       string
}

// JobRecord is one row per job, finalized once the job reaches a terminal
// state.
type JobRecord struct {
	JobID          string
	Start          time.Time
	ProcessingTime time.Duration
	Success        bool
	ClientIP       string
	Error          string
}

// Sink receives row-oriented usage records. CommitRequest is called once
// per finished HTTP request; CommitJob/FinalizeJob bracket a job's
// lifetime so a long-running job's row can be updated in place rather than
// only written at the end.
type Sink interface {
	CommitRequest(RequestRecord)
	CommitJob(jobID string, start time.Time, clientIP string)
	FinalizeJob(JobRecord)
}

// LogSink writes every record as a structured log line. It is the default
// Sink: no persistence dependency, but still gives an operator a complete
// audit trail via whatever log aggregation already ingests applog output.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) CommitRequest(r RequestRecord) {
	applog.Info("request route=%s success=%v ip=%s bytes=%d duration=%s queue=%d error=%q",
		r.Route, r.Success, r.ClientIP, r.BytesSent, r.Duration, r.QueueLength, r.Error)
}

func (LogSink) CommitJob(jobID string, start time.Time, clientIP string) {
	applog.Job(jobID).Info("accepted start=%s ip=%s", start.Format(time.RFC3339), clientIP)
}

func (LogSink) FinalizeJob(j JobRecord) {
	applog.Job(j.JobID).Info("finalized success=%v processing_time=%s ip=%s error=%q",
		j.Success, j.ProcessingTime, j.ClientIP, j.Error)
}

// NopSink discards everything; useful in tests that don't care about
// usage accounting.
type NopSink struct{}

func (NopSink) CommitRequest(RequestRecord)         {}
func (NopSink) CommitJob(string, time.Time, string) {}
func (NopSink) FinalizeJob(JobRecord)               {}
