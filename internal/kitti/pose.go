package kitti

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance bounds how far a parsed rotation may drift from
// orthonormal before the calibration is rejected.
const MatrixValidationTolerance = 0.01

// Pose is a rigid transform stored as a 4x4 row-major matrix, the same
// layout the calibration files use for R|T.
type Pose struct {
	T [16]float64
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{T: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// NewPose builds a pose from a row-major 3x3 rotation and a translation.
func NewPose(r [9]float64, t [3]float64) Pose {
	return Pose{T: [16]float64{
		r[0], r[1], r[2], t[0],
		r[3], r[4], r[5], t[1],
		r[6], r[7], r[8], t[2],
		0, 0, 0, 1,
	}}
}

func (p Pose) dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, p.T[:])
	return mat.NewDense(4, 4, data)
}

func poseFromDense(m mat.Matrix) Pose {
	var p Pose
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			p.T[r*4+c] = m.At(r, c)
		}
	}
	return p
}

// Rotation returns the row-major 3x3 rotation block.
func (p Pose) Rotation() [9]float64 {
	return [9]float64{
		p.T[0], p.T[1], p.T[2],
		p.T[4], p.T[5], p.T[6],
		p.T[8], p.T[9], p.T[10],
	}
}

// Translation returns the translation column.
func (p Pose) Translation() [3]float64 {
	return [3]float64{p.T[3], p.T[7], p.T[11]}
}

// Compose returns p * q: apply q first, then p.
func (p Pose) Compose(q Pose) Pose {
	var out mat.Dense
	out.Mul(p.dense(), q.dense())
	return poseFromDense(&out)
}

// Inverse returns the inverse transform.
func (p Pose) Inverse() (Pose, error) {
	var inv mat.Dense
	if err := inv.Inverse(p.dense()); err != nil {
		return Pose{}, fmt.Errorf("transform is not invertible: %w", err)
	}
	return poseFromDense(&inv), nil
}

// Apply transforms point (x, y, z).
func (p Pose) Apply(x, y, z float64) (wx, wy, wz float64) {
	T := p.T
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// TranslationNorm returns the length of the translation in metres. For the
// stereo baseline pose this is the baseline.
func (p Pose) TranslationNorm() float64 {
	t := p.Translation()
	return math.Sqrt(t[0]*t[0] + t[1]*t[1] + t[2]*t[2])
}

// IsRigid reports whether p is a proper rigid transform:
// 1. rotation block orthonormal (R^T R ≈ I) with det ≈ 1
// 2. last row is [0 0 0 1]
func (p Pose) IsRigid() bool {
	if p.T[12] != 0 || p.T[13] != 0 || p.T[14] != 0 || math.Abs(p.T[15]-1.0) > 0.001 {
		return false
	}
	r := p.Rotation()
	R := mat.NewDense(3, 3, r[:])
	if math.Abs(mat.Det(R)-1.0) > MatrixValidationTolerance {
		return false
	}
	var rtr mat.Dense
	rtr.Mul(R.T(), R)
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	return mat.EqualApprox(&rtr, eye, MatrixValidationTolerance)
}

// ApproxEqual compares two poses element-wise.
func (p Pose) ApproxEqual(q Pose, tol float64) bool {
	for i := range p.T {
		if math.Abs(p.T[i]-q.T[i]) > tol {
			return false
		}
	}
	return true
}

func (p Pose) String() string {
	t := p.Translation()
	return fmt.Sprintf("Pose{t=[%.4f %.4f %.4f]}", t[0], t[1], t[2])
}
