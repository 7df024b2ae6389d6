package kinematics

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultArmLength is the motor horn length in metres.
	DefaultArmLength = 0.038
	// DefaultRodLength is the rod length in metres.
	DefaultRodLength = 0.09
	// DefaultIterations bounds Converge.
	DefaultIterations = 100
	// DefaultTolerance is the largest per-branch residual, in square metres,
	// accepted as converged.
	DefaultTolerance = 1e-9

	// anchors closer than this to a motor axis have no defined solution
	axisEpsilon = 1e-12
)

// Solver holds the branch geometry and the running forward-kinematics
// estimate. It is safe for concurrent use.
type Solver struct {
	branches   []Branch
	arm        float64
	rod        float64
	iterations int
	tolerance  float64

	mu       sync.Mutex
	estimate Pose
}

// Option configures a Solver.
type Option func(*Solver)

// WithArmLength overrides the motor arm length (metres).
func WithArmLength(l float64) Option { return func(s *Solver) { s.arm = l } }

// WithRodLength overrides the rod length (metres).
func WithRodLength(l float64) Option { return func(s *Solver) { s.rod = l } }

// WithIterations overrides the Converge step limit.
func WithIterations(n int) Option { return func(s *Solver) { s.iterations = n } }

// WithTolerance overrides the Converge residual threshold.
func WithTolerance(tol float64) Option { return func(s *Solver) { s.tolerance = tol } }

// NewSolver prepares a solver for geom. The forward-kinematics estimate starts
// at the reference pose.
func NewSolver(geom Geometry, opts ...Option) (*Solver, error) {
	branches, err := geom.Branches()
	if err != nil {
		return nil, err
	}
	s := &Solver{
		branches:   branches,
		arm:        DefaultArmLength,
		rod:        DefaultRodLength,
		iterations: DefaultIterations,
		tolerance:  DefaultTolerance,
		estimate:   ReferencePose(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.arm <= 0 || s.rod <= 0 {
		return nil, fmt.Errorf("arm (%g) and rod (%g) lengths must be positive", s.arm, s.rod)
	}
	if s.iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", s.iterations)
	}
	return s, nil
}

// NumBranches returns the number of branches, which is also the joint vector
// length.
func (s *Solver) NumBranches() int { return len(s.branches) }

// InverseKinematics returns the joint angles (radians, bus order) that place
// the platform at pose. If any branch cannot reach, it returns an
// *UnreachableError and no angles.
func (s *Solver) InverseKinematics(pose Pose) ([]float64, error) {
	joints := make([]float64, len(s.branches))
	for i, b := range s.branches {
		p := b.toMotor(pose.Apply(b.Anchor))
		k := (r3.Norm2(p) + s.arm*s.arm - s.rod*s.rod) / (2 * s.arm)
		rho := math.Hypot(p.X, p.Y)
		if rho < axisEpsilon {
			return nil, &UnreachableError{Branch: i, Ratio: math.NaN()}
		}
		ratio := k / rho
		if math.Abs(ratio) > 1 {
			return nil, &UnreachableError{Branch: i, Ratio: ratio}
		}
		joints[i] = math.Atan2(p.Y, p.X) + b.Sign*math.Acos(ratio)
	}
	return joints, nil
}

// ForwardKinematics performs exactly one Gauss-Newton refinement of the
// running estimate toward joints and returns the new estimate. Fed one sample
// per call it tracks a moving mechanism; use SolveForward for a cold solve.
func (s *Solver) ForwardKinematics(joints []float64) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.step(joints)
	return s.estimate, err
}

// ResetForwardKinematics overwrites the running estimate.
func (s *Solver) ResetForwardKinematics(pose Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimate = pose
}

// Estimate returns the running estimate without refining it.
func (s *Solver) Estimate() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimate
}

// Converge refines the running estimate until every branch residual is below
// the tolerance or the iteration limit is reached. It returns the estimate and
// the number of steps taken.
func (s *Solver) Converge(joints []float64) (Pose, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := 1; n <= s.iterations; n++ {
		residual, err := s.step(joints)
		if err != nil {
			return s.estimate, n, err
		}
		if residual < s.tolerance {
			return s.estimate, n, nil
		}
	}
	return s.estimate, s.iterations, nil
}

// SolveForward resets the estimate to the reference pose and converges.
func (s *Solver) SolveForward(joints []float64) (Pose, int, error) {
	s.ResetForwardKinematics(ReferencePose())
	return s.Converge(joints)
}

// step runs one Gauss-Newton update and returns the largest absolute branch
// residual measured before the update. On failure the estimate is unchanged.
func (s *Solver) step(joints []float64) (float64, error) {
	n := len(s.branches)
	if len(joints) != n {
		return math.Inf(1), fmt.Errorf("%w: got %d, want %d", ErrJointCount, len(joints), n)
	}
	for i, q := range joints {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return math.Inf(1), fmt.Errorf("%w: joint %d", ErrInvalidJoints, i)
		}
	}

	est := s.estimate
	jac := mat.NewDense(n, 6, nil)
	rhs := mat.NewVecDense(n, nil)
	var worst float64
	for i, b := range s.branches {
		ra := est.rotation().MulVec(b.Anchor)
		p := b.toMotor(r3.Add(ra, est.trans))
		tip := r3.Vec{X: s.arm * math.Cos(joints[i]), Y: s.arm * math.Sin(joints[i])}
		d := r3.Sub(p, tip)

		e := r3.Norm2(d) - s.rod*s.rod
		worst = math.Max(worst, math.Abs(e))
		rhs.SetVec(i, -e)

		// gradient of e with respect to the world-frame anchor position
		g := r3.Scale(2, b.rot.MulVecTrans(d))
		w := r3.Cross(ra, g)
		jac.SetRow(i, []float64{g.X, g.Y, g.Z, w.X, w.Y, w.Z})
	}

	var x mat.VecDense
	if err := x.SolveVec(jac, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || !finite(x.RawVector().Data) {
			return worst, fmt.Errorf("forward kinematics step: %w", err)
		}
	}

	dt := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	omega := r3.Vec{X: x.AtVec(3), Y: x.AtVec(4), Z: x.AtVec(5)}
	rot := r3.NewMat(nil)
	rot.Mul(rodrigues(omega), est.rotation())
	s.estimate = Pose{rot: rot, trans: r3.Add(est.trans, dt)}
	return worst, nil
}

// rodrigues returns the rotation by |omega| about omega.
func rodrigues(omega r3.Vec) *r3.Mat {
	theta := r3.Norm(omega)
	if theta < 1e-15 {
		return r3.Eye()
	}
	return r3.NewRotation(theta, omega).Mat()
}

func finite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
