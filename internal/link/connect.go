package link

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/minihead/minihead/internal/timeutil"
)

// DeviceRequester obtains a serial device handle from the host. A request is
// a single attempt: it either returns an open port or fails.
type DeviceRequester interface {
	RequestDevice(ctx context.Context) (port SerialPorter, name string, err error)
}

// RequesterFunc adapts a function to DeviceRequester.
type RequesterFunc func(ctx context.Context) (SerialPorter, string, error)

func (f RequesterFunc) RequestDevice(ctx context.Context) (SerialPorter, string, error) {
	return f(ctx)
}

const defaultDialTimeout = 2 * time.Second

// Connector establishes a Link, preferring the WebSocket bridge and falling
// back to a serial device.
type Connector struct {
	// SocketURL is the bridge address (ws:// or wss://). Empty skips the
	// socket attempt.
	SocketURL string
	// Requester supplies the serial fallback. Nil disables it.
	Requester DeviceRequester
	// DialTimeout bounds the socket attempt. Zero means two seconds.
	DialTimeout time.Duration
	// HTTPClient is used for the WebSocket handshake when set.
	HTTPClient *http.Client
	// Clock is handed to the Link for WriteRead pacing.
	Clock timeutil.Clock
	// ReadTimeout bounds socket reads; see WithReadTimeout.
	ReadTimeout time.Duration
}

// Connect returns an open link. Each transport is tried once.
func (c *Connector) Connect(ctx context.Context) (*Link, error) {
	var opts []Option
	if c.Clock != nil {
		opts = append(opts, WithClock(c.Clock))
	}
	if c.ReadTimeout > 0 {
		opts = append(opts, WithReadTimeout(c.ReadTimeout))
	}

	var socketErr error
	if c.SocketURL != "" {
		l, err := c.dialSocket(ctx, opts)
		if err == nil {
			diagf("connected to bridge %s", c.SocketURL)
			return l, nil
		}
		socketErr = fmt.Errorf("socket %s: %w", c.SocketURL, err)
		diagf("bridge unavailable, falling back to serial: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.Requester == nil {
		if socketErr != nil {
			return nil, socketErr
		}
		return nil, errors.New("no transport configured")
	}
	port, name, err := c.Requester.RequestDevice(ctx)
	if err != nil {
		opsf("serial device request failed: %v", err)
		return nil, errors.Join(socketErr, fmt.Errorf("serial: %w", err))
	}
	diagf("opened serial device %s", name)
	return NewSerial(port, append(opts, WithName(name))...), nil
}

func (c *Connector) dialSocket(ctx context.Context, opts []Option) (*Link, error) {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, c.SocketURL, &websocket.DialOptions{HTTPClient: c.HTTPClient})
	if err != nil {
		return nil, err
	}
	return NewSocket(conn, append(opts, WithName(c.SocketURL))...), nil
}
