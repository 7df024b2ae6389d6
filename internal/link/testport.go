package link

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// TestPort implements SerialPorter with configurable behaviour for tests. An
// empty read buffer reads as a timed-out serial read (0, nil).
type TestPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Writes records each Write call's payload
	Writes [][]byte

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls counts Close calls
	CloseCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// OnWrite, if set, runs after each successful Write with the port
	// unlocked, so it may queue a reply with AddReadData.
	OnWrite func(p []byte)
}

// NewTestPort creates a TestPort with empty buffers.
func NewTestPort() *TestPort {
	return &TestPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read drains the read buffer.
func (t *TestPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, io.ErrClosedPipe
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write appends to the write buffer.
func (t *TestPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.Closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		t.mu.Unlock()
		return 0, err
	}
	t.Writes = append(t.Writes, append([]byte(nil), p...))
	n, err := t.WriteBuffer.Write(p)
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.CloseCalls++
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// WriteCount returns the number of successful Write calls.
func (t *TestPort) WriteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Writes)
}

// IsClosed reports whether Close was called.
func (t *TestPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}
