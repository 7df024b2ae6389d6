package dxl

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, b *SimBus) []byte {
	t.Helper()
	buf := make([]byte, 1024)
	n, err := b.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestSimBus_SyncReadReportsEveryMotor(t *testing.T) {
	ids := []uint8{1, 2, 3, 4, 5, 6, 21, 22}
	bus := NewSimBus(ids)
	bus.SetPosition(21, 3000)

	_, err := bus.Write(SyncReadPresentPosition(ids))
	require.NoError(t, err)

	statuses, errs := ScanStatuses(readAll(t, bus), 4)
	assert.Empty(t, errs)
	require.Len(t, statuses, len(ids))
	for i, st := range statuses {
		assert.Equal(t, ids[i], st.ID)
	}
	assert.Equal(t, int32(3000), statuses[6].Value)
	assert.Equal(t, int32(CenterPosition), statuses[0].Value)
}

func TestSimBus_GoalPositionNeedsTorque(t *testing.T) {
	bus := NewSimBus([]uint8{1, 2})
	pkt, err := SyncWritePosition([]uint8{1, 2}, []float64{0.5, -0.5})
	require.NoError(t, err)

	_, _ = bus.Write(pkt)
	assert.Equal(t, int32(CenterPosition), bus.Position(1))

	_, _ = bus.Write(SyncWriteTorque([]uint8{1, 2}, true))
	assert.True(t, bus.Torque(1))
	_, _ = bus.Write(pkt)
	assert.Equal(t, int32(RadiansToRaw(0.5)), bus.Position(1))
	assert.Equal(t, int32(RadiansToRaw(-0.5)), bus.Position(2))
}

func TestSimBus_SplitWritesAndGarbage(t *testing.T) {
	bus := NewSimBus([]uint8{1})
	pkt := SyncWriteTorque([]uint8{1}, true)

	_, _ = bus.Write([]byte{0x13, 0x37})
	_, _ = bus.Write(pkt[:5])
	assert.False(t, bus.Torque(1))
	_, _ = bus.Write(pkt[5:])
	assert.True(t, bus.Torque(1))
	assert.Len(t, bus.Instructions(), 1)
}

func TestSimBus_ErrorCodeAndCorruption(t *testing.T) {
	bus := NewSimBus([]uint8{1, 2})
	bus.SetErrorCode(2, 0x80)
	bus.CorruptNext(1)

	_, _ = bus.Write(SyncReadPresentPosition([]uint8{1, 2}))
	statuses, errs := ScanStatuses(readAll(t, bus), 4)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChecksum)
	require.Len(t, statuses, 1)
	assert.Equal(t, uint8(2), statuses[0].ID)
	assert.Error(t, statuses[0].Advisory())
}

func TestSimBus_Close(t *testing.T) {
	bus := NewSimBus([]uint8{1})
	require.NoError(t, bus.Close())

	_, err := bus.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	_, err = bus.Write([]byte{1})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestSimBus_Ping(t *testing.T) {
	bus := NewSimBus([]uint8{7})
	_, _ = bus.Write(buildPacket(7, InstPing, nil))
	// ping answers carry model and firmware, three bytes
	st, err := ParseStatusSize(readAll(t, bus), 0, 2)
	assert.ErrorIs(t, err, ErrBadLength)
	assert.Equal(t, Status{}, st)
}
