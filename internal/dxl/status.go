package dxl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode failures. Every specific error wraps ErrDecode so callers can treat
// the whole class with one errors.Is check.
var (
	ErrDecode                = errors.New("status packet decode failed")
	ErrShortPacket           = fmt.Errorf("%w: packet truncated", ErrDecode)
	ErrBadHeader             = fmt.Errorf("%w: bad header", ErrDecode)
	ErrUnexpectedInstruction = fmt.Errorf("%w: not a status packet", ErrDecode)
	ErrBadLength             = fmt.Errorf("%w: unexpected length", ErrDecode)
	ErrChecksum              = fmt.Errorf("%w: checksum mismatch", ErrDecode)
)

// PositionStatusSize is the wire size of a status packet carrying a 4-byte
// present-position value.
const PositionStatusSize = minPacketSize + 1 + 4

// Status is one decoded status report.
type Status struct {
	ID    uint8
	Value int32
	// Error is the device's error byte. Bit 7 flags a hardware alert; the
	// low bits carry the error number of the last instruction.
	Error uint8
}

// DeviceError is the advisory raised when a motor reports a nonzero error
// byte. The accompanying value is still usable.
type DeviceError struct {
	ID   uint8
	Code uint8
}

func (e *DeviceError) Error() string {
	if e.Code&0x80 != 0 {
		return fmt.Sprintf("motor %d: hardware alert (error 0x%02x)", e.ID, e.Code)
	}
	return fmt.Sprintf("motor %d: error 0x%02x", e.ID, e.Code)
}

// Advisory returns a *DeviceError when the status carries a nonzero error
// byte, nil otherwise.
func (s Status) Advisory() error {
	if s.Error == 0 {
		return nil
	}
	return &DeviceError{ID: s.ID, Code: s.Error}
}

// ParseStatus decodes a status packet carrying a 4-byte value at offset.
func ParseStatus(buf []byte, offset int) (Status, error) {
	return ParseStatusSize(buf, offset, 4)
}

// ParseStatusSize decodes a status packet at offset whose payload is size
// bytes (1, 2 or 4). On any mismatch it returns a zero Status and an error
// wrapping ErrDecode; it never panics on malformed input.
func ParseStatusSize(buf []byte, offset, size int) (Status, error) {
	if size != 1 && size != 2 && size != 4 {
		return Status{}, fmt.Errorf("unsupported status payload size %d", size)
	}
	total := minPacketSize + 1 + size
	if offset < 0 || offset+total > len(buf) {
		return Status{}, ErrShortPacket
	}
	pkt := buf[offset : offset+total]

	if !bytes.Equal(pkt[:headerSize], Header[:]) {
		return Status{}, ErrBadHeader
	}
	if pkt[posInstruction] != InstStatus {
		return Status{}, fmt.Errorf("%w: instruction 0x%02x", ErrUnexpectedInstruction, pkt[posInstruction])
	}
	// instruction + error + payload + crc
	want := uint16(1 + 1 + size + crcSize)
	if got := binary.LittleEndian.Uint16(pkt[posLength:]); got != want {
		return Status{}, fmt.Errorf("%w: %d, want %d", ErrBadLength, got, want)
	}
	crcAt := total - crcSize
	if got, calc := binary.LittleEndian.Uint16(pkt[crcAt:]), CRC16(pkt[posID:crcAt]); got != calc {
		return Status{}, fmt.Errorf("%w: got 0x%04x, computed 0x%04x", ErrChecksum, got, calc)
	}

	st := Status{ID: pkt[posID], Error: pkt[posParams]}
	data := pkt[posParams+1 : crcAt]
	switch size {
	case 1:
		st.Value = int32(data[0])
	case 2:
		st.Value = int32(int16(binary.LittleEndian.Uint16(data)))
	case 4:
		st.Value = int32(binary.LittleEndian.Uint32(data))
	}
	return st, nil
}

// EncodeStatus builds a status packet; it is what a motor sends back and is
// used by the simulated bus.
func EncodeStatus(id, errCode uint8, data []byte) []byte {
	params := make([]byte, 0, 1+len(data))
	params = append(params, errCode)
	params = append(params, data...)
	return buildPacket(id, InstStatus, params)
}

// EncodePositionStatus builds the status packet a motor returns for a
// present-position read.
func EncodePositionStatus(id, errCode uint8, raw int32) []byte {
	return EncodeStatus(id, errCode, binary.LittleEndian.AppendUint32(nil, uint32(raw)))
}

// RegionError reports a region of a buffer that failed to decode.
type RegionError struct {
	Offset int
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

// ScanStatuses decodes every status packet with a size-byte payload in buf.
// A region that fails to decode is reported and skipped: scanning resumes at
// the next header so one corrupt packet does not hide the ones after it.
func ScanStatuses(buf []byte, size int) ([]Status, []error) {
	var (
		statuses []Status
		errs     []error
	)
	total := minPacketSize + 1 + size
	i := 0
	for i < len(buf) {
		start := bytes.Index(buf[i:], Header[:])
		if start < 0 {
			break
		}
		i += start
		st, err := ParseStatusSize(buf, i, size)
		if err != nil {
			errs = append(errs, &RegionError{Offset: i, Err: err})
			if errors.Is(err, ErrShortPacket) {
				break
			}
			// skip past this header only, a valid packet may start inside
			// the damaged region
			i += headerSize
			continue
		}
		statuses = append(statuses, st)
		i += total
	}
	return statuses, errs
}
