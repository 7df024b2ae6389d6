package dxl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus_Golden(t *testing.T) {
	pkt := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x08, 0x00, 0x55, 0x00, 0x00, 0x08, 0x00, 0x00, 0xA0, 0x9E}
	assert.Equal(t, pkt, EncodePositionStatus(1, 0, 2048))

	st, err := ParseStatus(pkt, 0)
	require.NoError(t, err)
	assert.Equal(t, Status{ID: 1, Value: 2048}, st)
	assert.NoError(t, st.Advisory())
}

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, id := range []uint8{0, 1, 6, 21, 22, 200, 252} {
		for _, value := range []int32{0, 1, 2047, 2048, 4095, -1, -4096, 1 << 30} {
			pkt := EncodePositionStatus(id, 0, value)
			require.Len(t, pkt, PositionStatusSize)

			st, err := ParseStatus(pkt, 0)
			require.NoError(t, err, "id=%d value=%d", id, value)
			assert.Equal(t, id, st.ID)
			assert.Equal(t, value, st.Value)
		}
	}
}

func TestParseStatus_SmallPayloads(t *testing.T) {
	st, err := ParseStatusSize(EncodeStatus(4, 0, []byte{1}), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.Value)

	st, err = ParseStatusSize(EncodeStatus(4, 0, []byte{0xFE, 0xFF}), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), st.Value)

	_, err = ParseStatusSize(EncodeStatus(4, 0, []byte{1}), 0, 3)
	assert.Error(t, err)
}

func TestParseStatus_AnySingleBitFlipFails(t *testing.T) {
	valid := EncodePositionStatus(3, 0, 3000)
	for i := range valid {
		for bit := 0; bit < 8; bit++ {
			pkt := append([]byte(nil), valid...)
			pkt[i] ^= 1 << bit
			_, err := ParseStatus(pkt, 0)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("flipping bit %d of byte %d: err = %v, want decode failure", bit, i, err)
			}
		}
	}
}

func TestParseStatus_Errors(t *testing.T) {
	valid := EncodePositionStatus(2, 0, 100)

	tests := []struct {
		name   string
		buf    []byte
		offset int
		want   error
	}{
		{"truncated", valid[:10], 0, ErrShortPacket},
		{"offset past end", valid, 5, ErrShortPacket},
		{"negative offset", valid, -1, ErrShortPacket},
		{"instruction packet", SyncReadPresentPosition([]uint8{1, 2, 3, 4, 5, 6, 7}), 0, ErrUnexpectedInstruction},
		{"two byte status read as four", append(EncodeStatus(2, 0, []byte{1, 2}), 0, 0), 0, ErrBadLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := ParseStatus(tt.buf, tt.offset)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Equal(t, Status{}, st)
		})
	}
}

func TestParseStatus_DeviceErrorIsAdvisory(t *testing.T) {
	st, err := ParseStatus(EncodePositionStatus(5, 0x80, 1234), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1234), st.Value)

	var devErr *DeviceError
	require.ErrorAs(t, st.Advisory(), &devErr)
	assert.Equal(t, uint8(5), devErr.ID)
	assert.Equal(t, uint8(0x80), devErr.Code)
	assert.Contains(t, devErr.Error(), "hardware alert")

	plain := &DeviceError{ID: 2, Code: 0x02}
	assert.Equal(t, "motor 2: error 0x02", plain.Error())
}

func TestParseStatus_AtOffset(t *testing.T) {
	var buf []byte
	for id := uint8(1); id <= 6; id++ {
		buf = append(buf, EncodePositionStatus(id, 0, int32(id)*100)...)
	}
	for i := 0; i < 6; i++ {
		st, err := ParseStatus(buf, i*PositionStatusSize)
		require.NoError(t, err)
		assert.Equal(t, uint8(i+1), st.ID)
		assert.Equal(t, int32(i+1)*100, st.Value)
	}
}

func TestScanStatuses_SkipsBadRegion(t *testing.T) {
	first := EncodePositionStatus(1, 0, 10)
	broken := EncodePositionStatus(2, 0, 20)
	broken[len(broken)-3] ^= 0x40
	last := EncodePositionStatus(3, 0, 30)

	buf := append(append(append([]byte{0x00, 0x13}, first...), broken...), last...)
	statuses, errs := ScanStatuses(buf, 4)

	want := []Status{{ID: 1, Value: 10}, {ID: 3, Value: 30}}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChecksum)

	var region *RegionError
	require.ErrorAs(t, errs[0], &region)
	assert.Equal(t, 2+len(first), region.Offset)
}

func TestScanStatuses_TruncatedTail(t *testing.T) {
	pkt := EncodePositionStatus(1, 0, 10)
	buf := append(append([]byte(nil), pkt...), pkt[:7]...)

	statuses, errs := ScanStatuses(buf, 4)
	assert.Len(t, statuses, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrShortPacket)
}
