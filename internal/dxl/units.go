package dxl

import "math"

const (
	// StepsPerRevolution is the size of the raw position domain.
	StepsPerRevolution = 4096
	// CenterPosition is the raw value for a zero angle.
	CenterPosition = StepsPerRevolution / 2

	stepsPerRadian = StepsPerRevolution / (2 * math.Pi)
)

// RadiansToRaw maps an angle to the raw position domain, rounding to the
// nearest step and clamping to 0..StepsPerRevolution-1.
func RadiansToRaw(rad float64) uint32 {
	raw := math.Round(rad*stepsPerRadian + CenterPosition)
	switch {
	case math.IsNaN(raw) || raw < 0:
		return 0
	case raw > StepsPerRevolution-1:
		return StepsPerRevolution - 1
	}
	return uint32(raw)
}

// RawToRadians is the inverse of RadiansToRaw, exact to within half a step.
// The raw value is signed because present position is reported as a signed
// 32-bit quantity.
func RawToRadians(raw int32) float64 {
	return float64(raw-CenterPosition) / stepsPerRadian
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }
