package motion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minihead/minihead/internal/dxl"
)

func rampRecording(n int) Recording {
	rec := Recording{MotorIDs: testIDs, Cadence: DefaultCadence}
	for i := 0; i < n; i++ {
		a := 0.005 * float64(i)
		rec.Frames = append(rec.Frames, Frame{-0.36 + a, 0.36 - a, -0.36 + a, 0.36 - a, -0.36 + a, 0.36 - a})
	}
	return rec
}

func TestReplay_OnePacketPerFrame(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	rec := rampRecording(30)
	require.NoError(t, f.ctrl.LoadRecording(rec))

	require.NoError(t, f.ctrl.Replay(context.Background()))
	assert.Equal(t, StateConnected, f.ctrl.State())

	ins := f.bus.Instructions()
	assert.Equal(t, 30, countWrites(ins, dxl.AddrGoalPosition))
	assert.Equal(t, 2, countWrites(ins, dxl.AddrTorqueEnable))

	// torque on first, torque off last
	first, _, _ := ins[0].Address()
	assert.Equal(t, dxl.AddrTorqueEnable, first)
	targets, err := ins[len(ins)-1].SyncTargets()
	require.NoError(t, err)
	for _, tgt := range targets {
		assert.Equal(t, []byte{0}, tgt.Data)
	}
	for _, id := range testIDs {
		assert.False(t, f.bus.Torque(id))
	}

	// the motors ended on the last frame
	last := rec.Frames[len(rec.Frames)-1]
	for i, id := range testIDs {
		assert.Equal(t, int32(dxl.RadiansToRaw(last[i])), f.bus.Position(id))
	}

	// one pause per frame
	sleeps := f.clock.Sleeps()
	assert.Len(t, sleeps, 30)
	for _, d := range sleeps {
		assert.Equal(t, DefaultReplayInterval, d)
	}
	assert.Equal(t, 30, f.sink.lastEvent().Frames)
	assert.Len(t, f.sink.samples(), 30)
}

func TestReplay_StopStillDisablesTorque(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	require.NoError(t, f.ctrl.LoadRecording(rampRecording(100)))
	f.clock.OnSleep(func(total time.Duration) {
		if total >= 10*DefaultReplayInterval {
			f.ctrl.Stop()
		}
	})

	require.NoError(t, f.ctrl.Replay(context.Background()))

	ins := f.bus.Instructions()
	assert.Equal(t, 10, countWrites(ins, dxl.AddrGoalPosition))
	last, _, err := ins[len(ins)-1].Address()
	require.NoError(t, err)
	assert.Equal(t, dxl.AddrTorqueEnable, last)
	for _, id := range testIDs {
		assert.False(t, f.bus.Torque(id))
	}
	assert.Equal(t, StateConnected, f.ctrl.State())
}

func TestReplay_CallerContextCancelled(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	require.NoError(t, f.ctrl.LoadRecording(rampRecording(50)))

	ctx, cancel := context.WithCancel(context.Background())
	f.clock.OnSleep(func(total time.Duration) {
		if total >= 5*DefaultReplayInterval {
			cancel()
		}
	})
	require.NoError(t, f.ctrl.Replay(ctx))
	for _, id := range testIDs {
		assert.False(t, f.bus.Torque(id), "motor %d left torqued", id)
	}
}

func TestReplay_EmptyBuffer(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	assert.ErrorIs(t, f.ctrl.Replay(context.Background()), ErrNoRecording)
	assert.Empty(t, f.bus.Instructions())
}

func TestRecordThenReplay(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.bus.SetPosition(1, 1900)
	f.bus.SetPosition(2, 2200)
	require.NoError(t, f.ctrl.Record(context.Background(), 100*time.Millisecond))

	// move the head away by hand, then play the recording back
	f.bus.SetPosition(1, 2048)
	f.bus.SetPosition(2, 2048)
	require.NoError(t, f.ctrl.Replay(context.Background()))
	assert.Equal(t, int32(1900), f.bus.Position(1))
	assert.Equal(t, int32(2200), f.bus.Position(2))
}
