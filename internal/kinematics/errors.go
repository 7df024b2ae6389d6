package kinematics

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable reports a target pose outside the mechanism's envelope.
	ErrUnreachable = errors.New("pose unreachable")
	// ErrJointCount reports a joint vector whose length does not match the
	// number of branches.
	ErrJointCount = errors.New("joint count does not match branch count")
	// ErrInvalidJoints reports a NaN or infinite joint angle.
	ErrInvalidJoints = errors.New("joint angle is not finite")
)

// UnreachableError names the branch that cannot reach its anchor.
type UnreachableError struct {
	Branch int
	// Ratio is K/ρ, the cosine the branch would need. Its magnitude exceeds
	// one, or it is NaN when the anchor sits on the motor axis.
	Ratio float64
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("branch %d: %v (cos %.4f)", e.Branch, ErrUnreachable, e.Ratio)
}

func (e *UnreachableError) Unwrap() error { return ErrUnreachable }
