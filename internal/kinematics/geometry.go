package kinematics

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

//go:embed geometry/*.json
var geometryFS embed.FS

// BranchSpec is one branch as stored in a geometry file.
type BranchSpec struct {
	// BranchPosition is the rod anchor on the moving platform, in the
	// platform frame (metres).
	BranchPosition [3]float64 `json:"branch_position"`
	// TMotorWorld is the motor frame expressed in the world frame.
	TMotorWorld [4][4]float64 `json:"T_motor_world"`
	// Solution selects the elbow branch: nonzero for +acos, zero for -acos.
	// Geometry files write it as 1.0 or 0.0.
	Solution float64 `json:"solution"`
}

// Geometry describes the whole mechanism, one entry per motor in bus order.
type Geometry []BranchSpec

// Branch is a BranchSpec prepared for solving.
type Branch struct {
	Anchor r3.Vec
	// WorldToMotor is the 4x4 inverse of the motor's world transform.
	WorldToMotor *mat.Dense
	// Sign is +1 or -1 and picks the closed-form solution.
	Sign float64

	rot *r3.Mat
	off r3.Vec
}

// toMotor maps a world point into the branch's motor frame.
func (b Branch) toMotor(w r3.Vec) r3.Vec {
	return r3.Add(b.rot.MulVec(w), b.off)
}

// ParseGeometry decodes a geometry file.
func ParseGeometry(data []byte) (Geometry, error) {
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	if len(g) == 0 {
		return nil, errors.New("parse geometry: no branches")
	}
	return g, nil
}

// LoadGeometry returns one of the embedded geometries by name ("mini6",
// "mini8").
func LoadGeometry(name string) (Geometry, error) {
	data, err := geometryFS.ReadFile(path.Join("geometry", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("unknown geometry %q (have %s)", name, strings.Join(GeometryNames(), ", "))
	}
	return ParseGeometry(data)
}

// GeometryNames lists the embedded geometries.
func GeometryNames() []string {
	entries, _ := fs.ReadDir(geometryFS, "geometry")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// Branches prepares every branch, inverting the motor transforms.
func (g Geometry) Branches() ([]Branch, error) {
	branches := make([]Branch, len(g))
	for i, spec := range g {
		tm := mat.NewDense(4, 4, nil)
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				tm.Set(r, c, spec.TMotorWorld[r][c])
			}
		}
		var inv mat.Dense
		if err := inv.Inverse(tm); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || cond > 1e12 {
				return nil, fmt.Errorf("branch %d: motor transform is not invertible: %w", i, err)
			}
		}

		rot := r3.NewMat(nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				rot.Set(r, c, inv.At(r, c))
			}
		}
		sign := -1.0
		if spec.Solution != 0 {
			sign = 1
		}
		branches[i] = Branch{
			Anchor:       r3.Vec{X: spec.BranchPosition[0], Y: spec.BranchPosition[1], Z: spec.BranchPosition[2]},
			WorldToMotor: &inv,
			Sign:         sign,
			rot:          rot,
			off:          r3.Vec{X: inv.At(0, 3), Y: inv.At(1, 3), Z: inv.At(2, 3)},
		}
	}
	return branches, nil
}
