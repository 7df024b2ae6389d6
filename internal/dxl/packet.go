// Package dxl builds and parses motor-bus packets (Dynamixel Protocol 2.0
// framing) for the head actuators.
//
// A packet is laid out as
//
//	FF FF FD 00 | id | len_lo len_hi | instruction | params... | crc_lo crc_hi
//
// where len counts the instruction, the parameters and the checksum, and the
// checksum covers every byte from the id through the end of the parameters.
// All multi-byte integers are little-endian.
package dxl

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 4-byte packet prefix.
var Header = [4]byte{0xFF, 0xFF, 0xFD, 0x00}

const (
	// BroadcastID addresses every id listed in a sync instruction.
	BroadcastID uint8 = 0xFE

	headerSize = 4
	// Offsets within a packet.
	posID          = 4
	posLength      = 5
	posInstruction = 7
	posParams      = 8
	// id + length + instruction
	preambleSize = 4
	crcSize      = 2
	// Smallest complete packet: header, id, length, instruction, crc.
	minPacketSize = headerSize + preambleSize + crcSize
)

// Instruction codes.
const (
	InstPing      uint8 = 0x01
	InstRead      uint8 = 0x02
	InstWrite     uint8 = 0x03
	InstStatus    uint8 = 0x55
	InstSyncRead  uint8 = 0x82
	InstSyncWrite uint8 = 0x83
)

// Control table addresses for the XL330 actuators used by the head.
const (
	AddrTorqueEnable    uint16 = 64
	AddrGoalPosition    uint16 = 116
	AddrPresentPosition uint16 = 132

	SizeTorqueEnable    uint16 = 1
	SizeGoalPosition    uint16 = 4
	SizePresentPosition uint16 = 4
)

// buildPacket frames an instruction with its parameters and checksum.
func buildPacket(id, instruction uint8, params []byte) []byte {
	pkt := make([]byte, 0, minPacketSize+len(params))
	pkt = append(pkt, Header[:]...)
	pkt = append(pkt, id)
	pkt = binary.LittleEndian.AppendUint16(pkt, uint16(len(params)+1+crcSize))
	pkt = append(pkt, instruction)
	pkt = append(pkt, params...)
	crc := CRC16(pkt[posID:])
	return binary.LittleEndian.AppendUint16(pkt, crc)
}

// SyncWrite builds a synchronized write of one value per id. Each value must
// be exactly length bytes long.
func SyncWrite(ids []uint8, address, length uint16, values [][]byte) ([]byte, error) {
	if len(ids) != len(values) {
		return nil, fmt.Errorf("sync write: %d ids but %d values", len(ids), len(values))
	}
	params := syncWriteParams(address, length, len(ids))
	for i, id := range ids {
		if len(values[i]) != int(length) {
			return nil, fmt.Errorf("sync write: value for id %d is %d bytes, want %d", id, len(values[i]), length)
		}
		params = append(params, id)
		params = append(params, values[i]...)
	}
	return buildPacket(BroadcastID, InstSyncWrite, params), nil
}

// SyncWriteTorque builds one packet enabling or disabling torque on every id.
func SyncWriteTorque(ids []uint8, enabled bool) []byte {
	v := byte(0)
	if enabled {
		v = 1
	}
	params := syncWriteParams(AddrTorqueEnable, SizeTorqueEnable, len(ids))
	for _, id := range ids {
		params = append(params, id, v)
	}
	return buildPacket(BroadcastID, InstSyncWrite, params)
}

// syncWriteParams starts the parameter block of a sync write to n ids.
func syncWriteParams(address, length uint16, n int) []byte {
	params := make([]byte, 0, 4+n*(1+int(length)))
	params = binary.LittleEndian.AppendUint16(params, address)
	return binary.LittleEndian.AppendUint16(params, length)
}

// SyncWritePosition converts each angle (radians) to the raw position domain
// and builds one synchronized goal-position write.
func SyncWritePosition(ids []uint8, angles []float64) ([]byte, error) {
	if len(ids) != len(angles) {
		return nil, fmt.Errorf("sync write position: %d ids but %d angles", len(ids), len(angles))
	}
	values := make([][]byte, len(ids))
	for i, a := range angles {
		values[i] = binary.LittleEndian.AppendUint32(nil, RadiansToRaw(a))
	}
	return SyncWrite(ids, AddrGoalPosition, SizeGoalPosition, values)
}

// SyncRead builds a synchronized read of length bytes at address for every id.
func SyncRead(ids []uint8, address, length uint16) []byte {
	params := make([]byte, 0, 4+len(ids))
	params = binary.LittleEndian.AppendUint16(params, address)
	params = binary.LittleEndian.AppendUint16(params, length)
	params = append(params, ids...)
	return buildPacket(BroadcastID, InstSyncRead, params)
}

// SyncReadPresentPosition asks every id for its current position.
func SyncReadPresentPosition(ids []uint8) []byte {
	return SyncRead(ids, AddrPresentPosition, SizePresentPosition)
}
