package motion

import (
	"fmt"
	"time"
)

// Frame is one sample of joint angles in radians, bus order.
type Frame []float64

// Recording is an ordered buffer of frames captured at a fixed cadence.
type Recording struct {
	MotorIDs []uint8       `json:"motor_ids"`
	Cadence  time.Duration `json:"cadence"`
	Frames   []Frame       `json:"frames"`
}

// Duration is the span the recording covers.
func (r Recording) Duration() time.Duration {
	return time.Duration(len(r.Frames)) * r.Cadence
}

// Validate checks that every frame has one angle per motor.
func (r Recording) Validate() error {
	for i, f := range r.Frames {
		if len(f) != len(r.MotorIDs) {
			return fmt.Errorf("%w: frame %d has %d angles for %d motors", ErrConfigMismatch, i, len(f), len(r.MotorIDs))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r Recording) Clone() Recording {
	out := Recording{
		MotorIDs: append([]uint8(nil), r.MotorIDs...),
		Cadence:  r.Cadence,
		Frames:   make([]Frame, len(r.Frames)),
	}
	for i, f := range r.Frames {
		out.Frames[i] = append(Frame(nil), f...)
	}
	return out
}
