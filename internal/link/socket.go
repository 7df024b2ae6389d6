package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// socketPump receives messages in the background so that a Read can give up
// on a quiet socket without cancelling the connection's own read, which
// would close it.
type socketPump struct {
	conn *websocket.Conn
	msgs chan []byte
	done chan struct{}
	stop chan struct{}

	mu  sync.Mutex
	err error
}

func startSocketPump(conn *websocket.Conn) *socketPump {
	p := &socketPump{
		conn: conn,
		msgs: make(chan []byte, 16),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *socketPump) run() {
	defer close(p.done)
	for {
		typ, data, err := p.conn.Read(context.Background())
		if err != nil {
			p.mu.Lock()
			p.err = socketError(err)
			p.mu.Unlock()
			return
		}
		if typ != websocket.MessageBinary {
			tracef("ignoring %v message of %d bytes", typ, len(data))
			continue
		}
		select {
		case p.msgs <- data:
		case <-p.stop:
			return
		}
	}
}

// next returns the next message, an empty chunk after timeout, or the error
// that stopped the pump once every received message has been consumed.
func (p *socketPump) next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case m := <-p.msgs:
		return m, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-p.msgs:
		return m, nil
	case <-p.done:
		select {
		case m := <-p.msgs:
			return m, nil
		default:
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return nil, p.err
	case <-timer.C:
		return []byte{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *socketPump) close() error {
	close(p.stop)
	err := p.conn.Close(websocket.StatusNormalClosure, "")
	if errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1 {
		return nil
	}
	return err
}

// socketError maps the ways a WebSocket reports a finished connection onto
// ErrClosed.
func socketError(err error) error {
	switch {
	case err == nil:
		return nil
	case websocket.CloseStatus(err) != -1,
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
