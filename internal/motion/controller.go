// Package motion runs the head: it connects the link, switches torque, and
// drives the record, replay and monitor loops that move angles between the
// motor bus, the kinematics solver and a telemetry sink.
package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/kinematics"
	"github.com/minihead/minihead/internal/link"
	"github.com/minihead/minihead/internal/timeutil"
)

const (
	// DefaultCadence is the record and monitor sample period.
	DefaultCadence = 10 * time.Millisecond
	// DefaultReplayInterval is the pause between replayed frames.
	DefaultReplayInterval = 20 * time.Millisecond
)

// Connector opens a link to the motor bus. *link.Connector satisfies it.
type Connector interface {
	Connect(ctx context.Context) (*link.Link, error)
}

// Controller owns the link, the recording buffer and the active loop. All
// methods are safe for concurrent use; at most one loop runs at a time.
type Controller struct {
	solver    *kinematics.Solver
	connector Connector
	sink      Sink
	clock     timeutil.Clock

	ids            []uint8
	cadence        time.Duration
	replayInterval time.Duration
	readWait       time.Duration

	mu        sync.Mutex
	state     State
	link      *link.Link
	cancel    context.CancelFunc
	done      chan struct{}
	recording Recording
}

// Option configures a Controller.
type Option func(*Controller)

// WithMotorIDs sets the bus ids in branch order. Defaults to 1..n.
func WithMotorIDs(ids []uint8) Option {
	return func(c *Controller) { c.ids = append([]uint8(nil), ids...) }
}

// WithSink sets the telemetry sink.
func WithSink(s Sink) Option { return func(c *Controller) { c.sink = s } }

// WithClock sets the clock that paces the loops.
func WithClock(clock timeutil.Clock) Option { return func(c *Controller) { c.clock = clock } }

// WithCadence sets the record and monitor sample period.
func WithCadence(d time.Duration) Option { return func(c *Controller) { c.cadence = d } }

// WithReplayInterval sets the pause between replayed frames.
func WithReplayInterval(d time.Duration) Option {
	return func(c *Controller) { c.replayInterval = d }
}

// WithReadWait sets how long WriteRead waits for status packets.
func WithReadWait(d time.Duration) Option { return func(c *Controller) { c.readWait = d } }

// NewController checks that the motor ids match the solver's branches.
func NewController(solver *kinematics.Solver, connector Connector, opts ...Option) (*Controller, error) {
	c := &Controller{
		solver:         solver,
		connector:      connector,
		sink:           NopSink{},
		clock:          timeutil.RealClock{},
		cadence:        DefaultCadence,
		replayInterval: DefaultReplayInterval,
		readWait:       link.DefaultWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = make([]uint8, solver.NumBranches())
		for i := range c.ids {
			c.ids[i] = uint8(i + 1)
		}
	}
	if len(c.ids) != solver.NumBranches() {
		return nil, fmt.Errorf("%w: %d motor ids for %d branches", ErrConfigMismatch, len(c.ids), solver.NumBranches())
	}
	if c.cadence <= 0 || c.replayInterval <= 0 || c.readWait < 0 {
		return nil, errors.New("cadence and replay interval must be positive")
	}
	c.recording = Recording{MotorIDs: c.ids, Cadence: c.cadence}
	return c, nil
}

// MotorIDs returns the bus ids in branch order.
func (c *Controller) MotorIDs() []uint8 { return append([]uint8(nil), c.ids...) }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status is a snapshot for display.
type Status struct {
	State    State  `json:"state"`
	Link     string `json:"link,omitempty"`
	LinkKind string `json:"link_kind,omitempty"`
	MotorIDs []int  `json:"motor_ids"`
	Frames   int    `json:"frames"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, MotorIDs: make([]int, len(c.ids)), Frames: len(c.recording.Frames)}
	for i, id := range c.ids {
		st.MotorIDs[i] = int(id)
	}
	if c.link != nil {
		st.Link = c.link.Name()
		st.LinkKind = c.link.Kind().String()
	}
	return st
}

// Connect opens the link. It is a no-op when already connected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	l, err := c.connector.Connect(ctx)
	if err != nil {
		c.emit("connect", 0, err)
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		// lost a race with another Connect
		c.mu.Unlock()
		l.Release()
		return nil
	}
	c.link = l
	c.state = StateConnected
	c.mu.Unlock()

	diagf("connected via %s %s", l.Kind(), l.Name())
	c.emit("connect", 0, nil)
	return nil
}

// Disconnect stops any running loop, waits for it and releases the link.
func (c *Controller) Disconnect() error {
	c.Stop()
	c.Wait()

	c.mu.Lock()
	l := c.link
	c.link = nil
	c.state = StateIdle
	c.mu.Unlock()

	var err error
	if l != nil {
		err = l.Release()
	}
	c.emit("disconnect", 0, nil)
	return err
}

// TorqueOn enables torque on every motor.
func (c *Controller) TorqueOn(ctx context.Context) error { return c.torque(ctx, true) }

// TorqueOff disables torque on every motor so the head can be moved by hand.
func (c *Controller) TorqueOff(ctx context.Context) error { return c.torque(ctx, false) }

func (c *Controller) torque(ctx context.Context, enabled bool) error {
	op := "torque_off"
	if enabled {
		op = "torque_on"
	}
	l, err := c.connectedLink()
	if err != nil {
		return err
	}
	err = c.write(ctx, l, dxl.SyncWriteTorque(c.ids, enabled))
	c.emit(op, 0, err)
	return err
}

// GoTo moves the head to a target pose. The motors only follow while torque
// is enabled. It returns the commanded joint angles in radians.
func (c *Controller) GoTo(ctx context.Context, target kinematics.Coords) ([]float64, error) {
	joints, err := c.solver.InverseKinematics(kinematics.PoseFromCoords(target))
	if err != nil {
		return nil, err
	}
	l, err := c.connectedLink()
	if err != nil {
		return nil, err
	}
	pkt, err := dxl.SyncWritePosition(c.ids, joints)
	if err != nil {
		return nil, err
	}
	if err := c.write(ctx, l, pkt); err != nil {
		return nil, err
	}
	return joints, nil
}

// Exchange writes a raw instruction packet and returns whatever the bus
// answers within the read wait. It is meant for debugging and is refused
// while a loop runs.
func (c *Controller) Exchange(ctx context.Context, pkt []byte) ([]byte, error) {
	l, err := c.connectedLink()
	if err != nil {
		return nil, err
	}
	tracef("exchange % X", pkt)
	resp, err := l.WriteRead(ctx, pkt, c.readWait)
	if errors.Is(err, link.ErrClosed) {
		c.dropLink(l)
	}
	return resp, err
}

// Stop cancels the running loop, if any. The loop notices at its next
// iteration; use Wait to block until it has finished.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Wait blocks until no loop is running.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Recording returns a copy of the recording buffer.
func (c *Controller) Recording() Recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording.Clone()
}

// LoadRecording replaces the buffer, for example with one read back from the
// store. It is refused while a loop runs.
func (c *Controller) LoadRecording(rec Recording) error {
	if len(rec.MotorIDs) != len(c.ids) {
		return fmt.Errorf("%w: recording has %d motors, controller %d", ErrConfigMismatch, len(rec.MotorIDs), len(c.ids))
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return ErrBusy
	}
	c.recording = rec.Clone()
	return nil
}

// connectedLink returns the link when the controller is connected and idle.
func (c *Controller) connectedLink() (*link.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		return nil, link.ErrNotConnected
	case StateConnected:
		return c.link, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBusy, c.state)
	}
}

// begin moves to state and hands back the loop's context and a retained
// link. The returned finish must be called when the loop ends.
func (c *Controller) begin(ctx context.Context, state State) (context.Context, *link.Link, func(err error), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateIdle:
		return nil, nil, nil, link.ErrNotConnected
	case c.state != StateConnected:
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrBusy, c.state)
	}
	l, err := c.link.Retain()
	if err != nil {
		// closed underneath us while idle
		c.link = nil
		c.state = StateIdle
		return nil, nil, nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.state = state
	c.cancel = cancel
	c.done = done
	diagf("%s started", state)

	finish := func(err error) {
		cancel()
		l.Release()
		c.mu.Lock()
		c.cancel = nil
		c.done = nil
		if isFatal(err) {
			// the link is gone; drop our reference too
			if c.link != nil {
				c.link.Release()
				c.link = nil
			}
			c.state = StateIdle
		} else {
			c.state = StateConnected
		}
		c.mu.Unlock()
		close(done)
		diagf("%s finished: %v", state, err)
	}
	return loopCtx, l, finish, nil
}

// write sends one packet and drops the link if it has gone away.
func (c *Controller) write(ctx context.Context, l *link.Link, pkt []byte) error {
	err := l.Write(ctx, pkt)
	if errors.Is(err, link.ErrClosed) {
		c.dropLink(l)
	}
	return err
}

func (c *Controller) dropLink(l *link.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == l {
		c.link = nil
		c.state = StateIdle
		l.Release()
	}
}

func (c *Controller) emit(op string, frames int, err error) {
	ev := Event{Time: c.clock.Now(), Op: op, State: c.State(), Frames: frames}
	if err != nil {
		ev.Err = err.Error()
	}
	c.sink.Event(ev)
}

// isFatal reports errors that end a loop rather than skip an iteration.
func isFatal(err error) bool {
	return errors.Is(err, link.ErrNotConnected) || errors.Is(err, link.ErrClosed)
}
