package dxl

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// SimBus is an in-process motor bus. It accepts instruction packets written to
// it and queues the status packets real motors would send back, so the whole
// stack can run without hardware (the -dev server mode and tests).
//
// Read never blocks: with nothing queued it returns 0, nil, the same as a
// serial port whose read timeout expired.
type SimBus struct {
	mu      sync.Mutex
	motors  map[uint8]*simMotor
	pending []byte
	out     []byte
	written []Instruction
	corrupt int
	closed  bool
}

type simMotor struct {
	torque   bool
	position int32
	errCode  uint8
}

// NewSimBus creates a bus with the given motor ids, all centred and with
// torque disabled.
func NewSimBus(ids []uint8) *SimBus {
	b := &SimBus{motors: make(map[uint8]*simMotor, len(ids))}
	for _, id := range ids {
		b.motors[id] = &simMotor{position: CenterPosition}
	}
	return b
}

// Write consumes instruction packets. Partial packets are buffered until the
// rest arrives; bytes that cannot start a packet are discarded.
func (b *SimBus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.pending = append(b.pending, p...)
	for len(b.pending) > 0 {
		in, n, err := ParseInstruction(b.pending)
		if errors.Is(err, ErrShortPacket) {
			break
		}
		if err != nil {
			b.pending = b.pending[1:]
			continue
		}
		b.pending = b.pending[n:]
		b.written = append(b.written, in)
		b.handle(in)
	}
	return len(p), nil
}

func (b *SimBus) handle(in Instruction) {
	switch in.Instruction {
	case InstPing:
		if m, ok := b.motors[in.ID]; ok {
			b.reply(EncodeStatus(in.ID, m.errCode, []byte{0x0A, 0x01, 0x2A}))
		}
	case InstSyncWrite:
		addr, _, err := in.Address()
		if err != nil {
			return
		}
		targets, err := in.SyncTargets()
		if err != nil {
			return
		}
		for _, t := range targets {
			m, ok := b.motors[t.ID]
			if !ok {
				continue
			}
			switch addr {
			case AddrTorqueEnable:
				m.torque = t.Data[0] != 0
			case AddrGoalPosition:
				// the motor only tracks its goal while torqued
				if m.torque && len(t.Data) == 4 {
					m.position = int32(binary.LittleEndian.Uint32(t.Data))
				}
			}
		}
	case InstSyncRead:
		addr, length, err := in.Address()
		if err != nil || addr != AddrPresentPosition || length != SizePresentPosition {
			return
		}
		targets, err := in.SyncTargets()
		if err != nil {
			return
		}
		for _, t := range targets {
			if m, ok := b.motors[t.ID]; ok {
				b.reply(EncodePositionStatus(t.ID, m.errCode, m.position))
			}
		}
	}
}

func (b *SimBus) reply(pkt []byte) {
	if b.corrupt > 0 {
		b.corrupt--
		pkt[len(pkt)-3] ^= 0x01
	}
	b.out = append(b.out, pkt...)
}

// Read drains queued status packets.
func (b *SimBus) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.EOF
	}
	n := copy(p, b.out)
	b.out = b.out[n:]
	return n, nil
}

// Close marks the bus closed; later reads return io.EOF.
func (b *SimBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// SetPosition moves a motor as if by hand.
func (b *SimBus) SetPosition(id uint8, raw int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.motors[id]; ok {
		m.position = raw
	}
}

// Position returns a motor's present raw position.
func (b *SimBus) Position(id uint8) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.motors[id]; ok {
		return m.position
	}
	return 0
}

// Torque reports whether torque is enabled on a motor.
func (b *SimBus) Torque(id uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.motors[id]
	return ok && m.torque
}

// SetErrorCode makes a motor report errCode in its status packets.
func (b *SimBus) SetErrorCode(id uint8, errCode uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.motors[id]; ok {
		m.errCode = errCode
	}
}

// CorruptNext damages the payload of the next n status packets so they fail
// their checksum.
func (b *SimBus) CorruptNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corrupt = n
}

// Instructions returns every instruction the bus has accepted, in order.
func (b *SimBus) Instructions() []Instruction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Instruction, len(b.written))
	copy(out, b.written)
	return out
}
