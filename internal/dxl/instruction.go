package dxl

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Instruction is a decoded instruction packet.
type Instruction struct {
	ID          uint8
	Instruction uint8
	Params      []byte
}

// SyncTarget is one per-id entry of a sync instruction.
type SyncTarget struct {
	ID   uint8
	Data []byte
}

// ParseInstruction decodes one instruction packet at the start of buf and
// returns it with the number of bytes consumed.
func ParseInstruction(buf []byte) (Instruction, int, error) {
	if len(buf) < minPacketSize {
		return Instruction{}, 0, ErrShortPacket
	}
	if !bytes.Equal(buf[:headerSize], Header[:]) {
		return Instruction{}, 0, ErrBadHeader
	}
	length := int(binary.LittleEndian.Uint16(buf[posLength:]))
	if length < 1+crcSize {
		return Instruction{}, 0, fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	total := headerSize + 3 + length
	if len(buf) < total {
		return Instruction{}, 0, ErrShortPacket
	}
	crcAt := total - crcSize
	if got, calc := binary.LittleEndian.Uint16(buf[crcAt:]), CRC16(buf[posID:crcAt]); got != calc {
		return Instruction{}, 0, fmt.Errorf("%w: got 0x%04x, computed 0x%04x", ErrChecksum, got, calc)
	}
	params := make([]byte, crcAt-posParams)
	copy(params, buf[posParams:crcAt])
	return Instruction{
		ID:          buf[posID],
		Instruction: buf[posInstruction],
		Params:      params,
	}, total, nil
}

// Address returns the control-table address and data length that lead the
// parameters of read, write and sync instructions.
func (in Instruction) Address() (address, length uint16, err error) {
	if len(in.Params) < 4 {
		return 0, 0, fmt.Errorf("instruction 0x%02x: %d parameter bytes", in.Instruction, len(in.Params))
	}
	return binary.LittleEndian.Uint16(in.Params), binary.LittleEndian.Uint16(in.Params[2:]), nil
}

// SyncTargets splits a sync read or sync write into its per-id entries. For a
// sync read the entries carry no data.
func (in Instruction) SyncTargets() ([]SyncTarget, error) {
	_, length, err := in.Address()
	if err != nil {
		return nil, err
	}
	stride := 1
	if in.Instruction == InstSyncWrite {
		stride += int(length)
	} else if in.Instruction != InstSyncRead {
		return nil, fmt.Errorf("instruction 0x%02x is not a sync instruction", in.Instruction)
	}
	body := in.Params[4:]
	if len(body)%stride != 0 {
		return nil, fmt.Errorf("sync instruction body of %d bytes is not a multiple of %d", len(body), stride)
	}
	targets := make([]SyncTarget, 0, len(body)/stride)
	for i := 0; i < len(body); i += stride {
		targets = append(targets, SyncTarget{ID: body[i], Data: body[i+1 : i+stride]})
	}
	return targets, nil
}
