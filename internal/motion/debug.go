package motion

import (
	"io"
	"sync/atomic"

	"github.com/minihead/minihead/internal/monitoring"
)

var logs atomic.Pointer[monitoring.Streams]

// SetLogWriters configures the three logging streams for the motion package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.Store(monitoring.NewStreams("[motion] ", ops, diag, trace))
}

// opsf logs to the ops stream (lost samples, aborted loops).
func opsf(format string, args ...interface{}) { logs.Load().Opsf(format, args...) }

// diagf logs to the diag stream (state changes, loop summaries).
func diagf(format string, args ...interface{}) { logs.Load().Diagf(format, args...) }

// tracef logs to the trace stream (per-sample detail).
func tracef(format string, args ...interface{}) { logs.Load().Tracef(format, args...) }
