// Package applog is a thin leveled-logging façade: state transitions log
// at info with the job id prefix, permit/queue accounting logs at debug,
// and drop errors (container remove, workdir removal) log at warn.
package applog

import (
	"log"
	"os"
)

// Level controls which messages reach the output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	std      = log.New(os.Stderr, "", log.LstdFlags)
	minLevel = LevelInfo
)

// SetLevel adjusts the minimum level that reaches the output (LevelInfo by
// default). A level rather than a package-level bool keeps the four levels
// independently gateable.
func SetLevel(l Level) {
	minLevel = l
}

func logf(l Level, prefix, format string, args []interface{}) {
	if l < minLevel {
		return
	}
	label := levelLabel(l)
	if prefix != "" {
		std.Printf(label+" "+prefix+" "+format, args...)
		return
	}
	std.Printf(label+" "+format, args...)
}

func levelLabel(l Level) string {
	switch l {
	case LevelDebug:
		return "[debug]"
	case LevelInfo:
		return "[info]"
	case LevelWarn:
		return "[warn]"
	case LevelError:
		return "[error]"
	default:
		return "[?]"
	}
}

// Debug logs permit/queue accounting and similar high-volume detail.
func Debug(format string, args ...interface{}) { logf(LevelDebug, "", format, args) }

// Info logs state transitions and other normal-operation events.
func Info(format string, args ...interface{}) { logf(LevelInfo, "", format, args) }

// Warn logs best-effort cleanup failures (container remove, workdir removal).
func Warn(format string, args ...interface{}) { logf(LevelWarn, "", format, args) }

// Error logs failures a caller couldn't otherwise recover from.
func Error(format string, args ...interface{}) { logf(LevelError, "", format, args) }

// Job returns a logger bound to a job id prefix, so every state transition
// logs at info level with the job id prefix.
func Job(id string) *JobLogger {
	return &JobLogger{prefix: "job=" + id}
}

// JobLogger is a per-job logging handle.
type JobLogger struct {
	prefix string
}

func (j *JobLogger) Debug(format string, args ...interface{}) { logf(LevelDebug, j.prefix, format, args) }
func (j *JobLogger) Info(format string, args ...interface{})  { logf(LevelInfo, j.prefix, format, args) }
func (j *JobLogger) Warn(format string, args ...interface{})  { logf(LevelWarn, j.prefix, format, args) }
func (j *JobLogger) Error(format string, args ...interface{}) { logf(LevelError, j.prefix, format, args) }
