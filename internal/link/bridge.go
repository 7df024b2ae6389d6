package link

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Bridge exposes a serial port to one WebSocket client at a time: each binary
// message is written to the port and whatever the port produces is sent back
// as binary messages. It is the far end a socket Link dials.
type Bridge struct {
	port SerialPorter
	poll time.Duration
	busy sync.Mutex
}

// NewBridge serves port, polling it for output every poll interval.
func NewBridge(port SerialPorter, poll time.Duration) *Bridge {
	if poll <= 0 {
		poll = time.Millisecond
	}
	return &Bridge{port: port, poll: poll}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.busy.TryLock() {
		http.Error(w, "bridge already in use", http.StatusConflict)
		return
	}
	defer b.busy.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		opsf("bridge accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		b.forward(ctx, conn)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if _, err := b.port.Write(data); err != nil {
			opsf("bridge write: %v", err)
			break
		}
	}
	cancel()
	wg.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
}

// forward copies port output to the client until ctx ends or the port fails.
func (b *Bridge) forward(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	buf := make([]byte, defaultReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			n, err := b.port.Read(buf)
			if err != nil {
				opsf("bridge read: %v", err)
				return
			}
			if n == 0 {
				break
			}
			if err := conn.Write(ctx, websocket.MessageBinary, buf[:n]); err != nil {
				return
			}
		}
	}
}
