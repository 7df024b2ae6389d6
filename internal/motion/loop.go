package motion

import (
	"context"
	"errors"
	"time"

	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/kinematics"
	"github.com/minihead/minihead/internal/link"
)

// Record clears the buffer and samples the motors every cadence until
// duration has elapsed (zero records until stopped) or ctx is cancelled. A
// frame is appended once every motor has reported; until then samples only
// feed telemetry. Record blocks until the loop ends and returns nil on a
// normal finish or a stop.
func (c *Controller) Record(ctx context.Context, duration time.Duration) error {
	run, err := c.prepareRecord(ctx, duration)
	if err != nil {
		return err
	}
	return run()
}

// StartRecord is Record in the background. Errors that keep the loop from
// starting are returned directly; the loop's result arrives on the channel.
func (c *Controller) StartRecord(ctx context.Context, duration time.Duration) (<-chan error, error) {
	run, err := c.prepareRecord(ctx, duration)
	if err != nil {
		return nil, err
	}
	return background(run), nil
}

func (c *Controller) prepareRecord(ctx context.Context, duration time.Duration) (func() error, error) {
	loopCtx, l, finish, err := c.begin(ctx, StateRecording)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.recording = Recording{MotorIDs: c.MotorIDs(), Cadence: c.cadence}
	c.mu.Unlock()

	return func() error {
		err := c.sample(loopCtx, l, duration, StateRecording, true)
		finish(err)
		c.emit("record", len(c.Recording().Frames), err)
		return err
	}, nil
}

// Monitor streams pose telemetry until ctx is cancelled or Stop is called,
// without touching the recording buffer.
func (c *Controller) Monitor(ctx context.Context) error {
	run, err := c.prepareMonitor(ctx)
	if err != nil {
		return err
	}
	return run()
}

// StartMonitor is Monitor in the background.
func (c *Controller) StartMonitor(ctx context.Context) (<-chan error, error) {
	run, err := c.prepareMonitor(ctx)
	if err != nil {
		return nil, err
	}
	return background(run), nil
}

func (c *Controller) prepareMonitor(ctx context.Context) (func() error, error) {
	loopCtx, l, finish, err := c.begin(ctx, StateMonitoring)
	if err != nil {
		return nil, err
	}
	return func() error {
		err := c.sample(loopCtx, l, 0, StateMonitoring, false)
		finish(err)
		c.emit("monitor", 0, err)
		return err
	}, nil
}

func background(run func() error) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- run() }()
	return errc
}

func (c *Controller) sample(ctx context.Context, l *link.Link, duration time.Duration, state State, record bool) error {
	n := len(c.ids)
	request := dxl.SyncReadPresentPosition(c.ids)
	index := make(map[uint8]int, n)
	for i, id := range c.ids {
		index[id] = i
	}
	latest := make([]float64, n)
	seen := make([]bool, n)
	missing := n

	start := c.clock.Now()
	next := start
	for {
		if ctx.Err() != nil {
			return nil
		}
		if duration > 0 && c.clock.Since(start) >= duration {
			return nil
		}

		resp, err := l.WriteRead(ctx, request, c.readWait)
		fresh := 0
		switch {
		case isFatal(err):
			opsf("%s aborted: %v", state, err)
			return err
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			opsf("sample skipped: %v", err)
		default:
			statuses, errs := dxl.ScanStatuses(resp, int(dxl.SizePresentPosition))
			for _, e := range errs {
				diagf("bad status region: %v", e)
			}
			for _, st := range statuses {
				i, ok := index[st.ID]
				if !ok {
					continue
				}
				if adv := st.Advisory(); adv != nil {
					opsf("%v", adv)
				}
				latest[i] = dxl.RawToRadians(st.Value)
				fresh++
				if !seen[i] {
					seen[i] = true
					missing--
				}
			}
		}

		// no fresh status: no telemetry, no frame
		if fresh > 0 {
			c.emitSample(state, latest, missing == 0, record)
		} else if err == nil {
			diagf("sample skipped: no status in %d byte reply", len(resp))
		}

		next = next.Add(c.cadence)
		if d := c.clock.Until(next); d > 0 {
			c.clock.Sleep(d)
		} else if -d > c.cadence {
			// fell more than a period behind; resume from now instead of
			// bursting to catch up
			next = c.clock.Now()
		}
	}
}

// emitSample pushes one telemetry sample. Once every motor has reported it
// also runs a forward kinematics step and, when recording, appends a frame.
func (c *Controller) emitSample(state State, latest []float64, complete, record bool) {
	tel := Telemetry{Time: c.clock.Now(), Joints: degreesOf(latest), State: state}
	if complete {
		pose, err := c.solver.ForwardKinematics(latest)
		if err != nil {
			diagf("forward kinematics: %v", err)
		} else {
			coords := pose.Coords()
			tel.Pose = &coords
		}
		if record {
			c.mu.Lock()
			c.recording.Frames = append(c.recording.Frames, append(Frame(nil), latest...))
			c.mu.Unlock()
		}
	}
	tracef("%s sample %v", state, tel.Joints)
	c.sink.Telemetry(tel)
}

// Replay enables torque, writes one goal-position packet per recorded frame
// every replay interval and finally disables torque, whether the replay
// completed, was stopped or failed.
func (c *Controller) Replay(ctx context.Context) error {
	run, err := c.prepareReplay(ctx)
	if err != nil {
		return err
	}
	return run()
}

// StartReplay is Replay in the background.
func (c *Controller) StartReplay(ctx context.Context) (<-chan error, error) {
	run, err := c.prepareReplay(ctx)
	if err != nil {
		return nil, err
	}
	return background(run), nil
}

func (c *Controller) prepareReplay(ctx context.Context) (func() error, error) {
	loopCtx, l, finish, err := c.begin(ctx, StateReplaying)
	if err != nil {
		return nil, err
	}
	rec := c.Recording()
	if len(rec.Frames) == 0 {
		finish(nil)
		return nil, ErrNoRecording
	}

	return func() error {
		sent, err := c.replay(loopCtx, l, rec)

		// the loop context may be cancelled; the motors must still go limp
		offCtx := context.WithoutCancel(ctx)
		if offErr := l.Write(offCtx, dxl.SyncWriteTorque(c.ids, false)); offErr != nil {
			opsf("torque off after replay: %v", offErr)
			if err == nil && isFatal(offErr) {
				err = offErr
			}
		}
		finish(err)
		c.emit("replay", sent, err)
		return err
	}, nil
}

func (c *Controller) replay(ctx context.Context, l *link.Link, rec Recording) (int, error) {
	if err := l.Write(ctx, dxl.SyncWriteTorque(c.ids, true)); err != nil {
		if isFatal(err) {
			return 0, err
		}
		opsf("torque on before replay: %v", err)
	}

	c.solver.ResetForwardKinematics(kinematics.ReferencePose())
	sent := 0
	for _, frame := range rec.Frames {
		if ctx.Err() != nil {
			break
		}
		pkt, err := dxl.SyncWritePosition(c.ids, frame)
		if err != nil {
			return sent, err
		}
		err = l.Write(ctx, pkt)
		switch {
		case isFatal(err):
			return sent, err
		case errors.Is(err, context.Canceled):
			return sent, nil
		case err != nil:
			opsf("frame %d skipped: %v", sent, err)
		default:
			sent++
		}

		tel := Telemetry{Time: c.clock.Now(), Joints: degreesOf(frame), State: StateReplaying}
		if pose, err := c.solver.ForwardKinematics(frame); err == nil {
			coords := pose.Coords()
			tel.Pose = &coords
		}
		c.sink.Telemetry(tel)
		c.clock.Sleep(c.replayInterval)
	}
	return sent, nil
}

func degreesOf(rad []float64) []float64 {
	out := make([]float64, len(rad))
	for i, r := range rad {
		out[i] = dxl.Degrees(r)
	}
	return out
}
