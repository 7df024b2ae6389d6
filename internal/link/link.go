// Package link carries motor-bus bytes over either a serial port or a
// WebSocket to a bridge, behind one Link type.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/minihead/minihead/internal/timeutil"
)

var (
	// ErrNotConnected is returned when no link has been established.
	ErrNotConnected = errors.New("link not connected")
	// ErrClosed is returned once either end has closed the link.
	ErrClosed = errors.New("link closed")
	// ErrBusy is returned when another read (or write) is already in
	// progress on the same link.
	ErrBusy = errors.New("link busy")
)

// DefaultWait is the pause between a request and its read in WriteRead.
const DefaultWait = 10 * time.Millisecond

const (
	defaultReadBufferSize = 1024
	defaultReadTimeout    = 50 * time.Millisecond
	defaultWriteTimeout   = time.Second
)

// Kind names the transport behind a Link.
type Kind int

const (
	KindSerial Kind = iota
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindSocket:
		return "socket"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Link is an open byte transport to the motor bus. Reads and writes are each
// single-flight: a second concurrent Read (or Write) gets ErrBusy instead of
// queueing. A Link is shared by reference count; see Retain and Release.
type Link struct {
	kind  Kind
	name  string
	clock timeutil.Clock

	readTimeout  time.Duration
	writeTimeout time.Duration
	bufSize      int

	port SerialPorter
	sock *socketPump

	readMu  sync.Mutex
	writeMu sync.Mutex

	refs      atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Link.
type Option func(*Link)

// WithClock sets the clock used by WriteRead.
func WithClock(c timeutil.Clock) Option { return func(l *Link) { l.clock = c } }

// WithName labels the link in logs and status output.
func WithName(name string) Option { return func(l *Link) { l.name = name } }

// WithReadTimeout bounds how long a socket Read waits for a message before
// returning an empty chunk. Serial read timeouts are set on the port itself.
func WithReadTimeout(d time.Duration) Option { return func(l *Link) { l.readTimeout = d } }

// WithReadBufferSize sets the largest chunk a serial Read returns.
func WithReadBufferSize(n int) Option { return func(l *Link) { l.bufSize = n } }

func newLink(kind Kind, opts []Option) *Link {
	l := &Link{
		kind:         kind,
		clock:        timeutil.RealClock{},
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		bufSize:      defaultReadBufferSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.refs.Store(1)
	return l
}

// NewSerial wraps an open serial port (or anything shaped like one).
func NewSerial(port SerialPorter, opts ...Option) *Link {
	l := newLink(KindSerial, opts)
	l.port = port
	if l.name == "" {
		l.name = "serial"
	}
	return l
}

// NewSocket wraps an established WebSocket connection. Binary messages are
// received in the background from this point on.
func NewSocket(conn *websocket.Conn, opts ...Option) *Link {
	l := newLink(KindSocket, opts)
	l.sock = startSocketPump(conn)
	if l.name == "" {
		l.name = "socket"
	}
	return l
}

// Kind reports the transport in use.
func (l *Link) Kind() Kind { return l.kind }

// Name returns the link's label: the device path or bridge URL.
func (l *Link) Name() string { return l.name }

// Closed reports whether the link has been closed.
func (l *Link) Closed() bool { return l != nil && l.closed.Load() }

// Read returns the next available chunk: whatever the serial port has
// buffered, or the next binary message from the socket. An empty chunk with a
// nil error means nothing arrived before the read timeout.
func (l *Link) Read(ctx context.Context) ([]byte, error) {
	if l == nil {
		return nil, ErrNotConnected
	}
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if !l.readMu.TryLock() {
		return nil, fmt.Errorf("read: %w", ErrBusy)
	}
	defer l.readMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		chunk []byte
		err   error
	)
	switch l.kind {
	case KindSocket:
		chunk, err = l.sock.next(ctx, l.readTimeout)
	default:
		buf := make([]byte, l.bufSize)
		var n int
		n, err = l.port.Read(buf)
		chunk = buf[:n]
		err = serialError(err)
	}
	if errors.Is(err, ErrClosed) {
		l.markClosed()
	}
	if err != nil {
		return nil, err
	}
	tracef("%s rx % x", l.name, chunk)
	return chunk, nil
}

// Write sends b as one chunk (serial) or one binary message (socket).
func (l *Link) Write(ctx context.Context, b []byte) error {
	if l == nil {
		return ErrNotConnected
	}
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.writeMu.TryLock() {
		return fmt.Errorf("write: %w", ErrBusy)
	}
	defer l.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tracef("%s tx % x", l.name, b)
	var err error
	switch l.kind {
	case KindSocket:
		// cancelling a socket write tears the connection down, so the caller's
		// cancellation is only honoured before the write starts
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
		defer cancel()
		err = socketError(l.sock.conn.Write(wctx, websocket.MessageBinary, b))
	default:
		var n int
		n, err = l.port.Write(b)
		if err == nil && n != len(b) {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(b))
		}
		err = serialError(err)
	}
	if errors.Is(err, ErrClosed) {
		l.markClosed()
	}
	return err
}

// WriteRead writes b, waits for wait on the link's clock and performs one
// Read. The response is whatever arrived; it is not matched against the
// request. Once the request is written the exchange completes even if ctx is
// cancelled, so the reply is not left behind for the next caller.
func (l *Link) WriteRead(ctx context.Context, b []byte, wait time.Duration) ([]byte, error) {
	if err := l.Write(ctx, b); err != nil {
		return nil, err
	}
	l.clock.Sleep(wait)
	return l.Read(context.WithoutCancel(ctx))
}

// Retain adds a reference. Each Retain must be balanced by a Release.
func (l *Link) Retain() (*Link, error) {
	if l == nil {
		return nil, ErrNotConnected
	}
	for {
		n := l.refs.Load()
		if n <= 0 || l.closed.Load() {
			return nil, ErrClosed
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return l, nil
		}
	}
}

// Release drops a reference and closes the transport when none remain.
func (l *Link) Release() error {
	if l == nil {
		return ErrNotConnected
	}
	if l.refs.Add(-1) > 0 {
		return nil
	}
	return l.Close()
}

// Close closes the transport regardless of outstanding references. It is
// safe to call more than once; later calls return the first call's result.
func (l *Link) Close() error {
	if l == nil {
		return ErrNotConnected
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.refs.Store(0)
		switch l.kind {
		case KindSocket:
			l.closeErr = l.sock.close()
		default:
			l.closeErr = l.port.Close()
		}
		diagf("%s link closed", l.name)
	})
	return l.closeErr
}

// markClosed records that the far end went away and releases the transport.
func (l *Link) markClosed() {
	if !l.closed.Swap(true) {
		opsf("%s link lost", l.name)
	}
	_ = l.Close()
}
