package kinematics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// HeadZOffset is the height of the platform frame above the user frame
// origin. User-facing Z is measured from the resting head height.
const HeadZOffset = 0.172

// gimbalEpsilon bounds |cos(pitch)| below which roll and yaw are coupled.
const gimbalEpsilon = 1e-6

// Coords is a pose in user units: millimetres in the user frame and degrees.
type Coords struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Pose is a rigid transform of the moving platform in the solver frame
// (metres). Poses are values; methods never modify the receiver.
type Pose struct {
	rot   *r3.Mat
	trans r3.Vec
}

// NewPose builds a pose from a rotation and a translation. The rotation is
// copied.
func NewPose(rot mat.Matrix, trans r3.Vec) Pose {
	m := r3.NewMat(nil)
	m.CloneFrom(rot)
	return Pose{rot: m, trans: trans}
}

// ReferencePose is the resting pose: user coordinates all zero.
func ReferencePose() Pose {
	return PoseFromCoords(Coords{})
}

// Rotation returns a copy of the rotation part.
func (p Pose) Rotation() *r3.Mat {
	m := r3.NewMat(nil)
	m.CloneFrom(p.rotation())
	return m
}

// rotation treats the zero Pose as the identity.
func (p Pose) rotation() *r3.Mat {
	if p.rot == nil {
		return r3.Eye()
	}
	return p.rot
}

// Translation returns the translation part in metres.
func (p Pose) Translation() r3.Vec { return p.trans }

// Apply transforms a platform-frame point into the solver frame.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(p.rotation().MulVec(v), p.trans)
}

// Matrix returns the 4x4 homogeneous form of the pose.
func (p Pose) Matrix() *mat.Dense {
	rot := p.rotation()
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, rot.At(r, c))
		}
	}
	m.Set(0, 3, p.trans.X)
	m.Set(1, 3, p.trans.Y)
	m.Set(2, 3, p.trans.Z)
	m.Set(3, 3, 1)
	return m
}

// rpyMatrix returns Rz(yaw)·Ry(pitch)·Rx(roll).
func rpyMatrix(roll, pitch, yaw float64) *r3.Mat {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	return r3.NewMat([]float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	})
}

// PoseFromCoords converts user coordinates to a solver pose.
func PoseFromCoords(c Coords) Pose {
	return Pose{
		rot: rpyMatrix(radians(c.Roll), radians(c.Pitch), radians(c.Yaw)),
		trans: r3.Vec{
			X: c.X / 1000,
			Y: c.Y / 1000,
			Z: c.Z/1000 + HeadZOffset,
		},
	}
}

// Coords converts the pose to user coordinates. At pitch ±90° roll and yaw
// are not separable; yaw is reported as zero and the whole rotation about
// the vertical goes to roll.
func (p Pose) Coords() Coords {
	r := p.rotation()
	pitch := math.Asin(clamp(-r.At(2, 0), -1, 1))
	var roll, yaw float64
	if math.Abs(math.Cos(pitch)) > gimbalEpsilon {
		roll = math.Atan2(r.At(2, 1), r.At(2, 2))
		yaw = math.Atan2(r.At(1, 0), r.At(0, 0))
	} else {
		roll = math.Atan2(-r.At(1, 2), r.At(1, 1))
	}
	return Coords{
		X:     p.trans.X * 1000,
		Y:     p.trans.Y * 1000,
		Z:     (p.trans.Z - HeadZOffset) * 1000,
		Roll:  degrees(roll),
		Pitch: degrees(pitch),
		Yaw:   degrees(yaw),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
