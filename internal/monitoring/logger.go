// Package monitoring holds the logging plumbing shared by the minihead
// packages: a process-wide Logf hook plus the three-stream (ops, diag, trace)
// loggers each package configures through its own SetLogWriters.
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams routes a package's log output to three independent writers.
//
//   - ops: actionable warnings and errors (lost frames, dropped links)
//   - diag: day-to-day diagnostics (state changes, connection details)
//   - trace: per-packet detail, normally disabled
//
// A nil *log.Logger disables that stream.
type Streams struct {
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// NewStreams builds a Streams with the given prefix. Pass nil for any writer
// to disable that stream.
func NewStreams(prefix string, ops, diag, trace io.Writer) *Streams {
	return &Streams{
		ops:   newLogger(prefix, ops),
		diag:  newLogger(prefix, diag),
		trace: newLogger(prefix, trace),
	}
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	if s != nil && s.ops != nil {
		s.ops.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	if s != nil && s.diag != nil {
		s.diag.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	if s != nil && s.trace != nil {
		s.trace.Printf(format, args...)
	}
}
