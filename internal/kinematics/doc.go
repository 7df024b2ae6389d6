// Package kinematics converts between motor angles and platform pose for the
// head's parallel mechanism.
//
// Each branch is a motor-driven arm of fixed length joined by a rigid rod to
// an anchor on the moving platform. Inverse kinematics is closed form per
// branch. Forward kinematics has no closed form and is solved iteratively: the
// Solver keeps a running pose estimate and refines it with Gauss-Newton steps
// so that a stream of joint readings can be tracked with one step per sample.
package kinematics
