package link

import (
	"io"
	"sync/atomic"

	"github.com/minihead/minihead/internal/monitoring"
)

var logs atomic.Pointer[monitoring.Streams]

// SetLogWriters configures the three logging streams for the link package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.Store(monitoring.NewStreams("[link] ", ops, diag, trace))
}

// opsf logs to the ops stream (dropped links, failed opens).
func opsf(format string, args ...interface{}) { logs.Load().Opsf(format, args...) }

// diagf logs to the diag stream (connection attempts, fallbacks).
func diagf(format string, args ...interface{}) { logs.Load().Diagf(format, args...) }

// tracef logs to the trace stream (every chunk in and out).
func tracef(format string, args ...interface{}) { logs.Load().Tracef(format, args...) }
