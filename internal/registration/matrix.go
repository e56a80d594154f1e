package registration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fixed-size vector and matrix kernels for the per-point hot path.
// All matrices are row-major: Mat4 is 4x4, Mat46 is 4 rows by 6 columns,
// Mat64 is 6 rows by 4 columns, Mat6 is 6x6. gonum is used only at the
// boundaries (4x4 inversion, caller-facing output blocks); the inner loops
// stay allocation-free.

// Vec4 is a homogeneous 4-vector. Points carry w=1 and directions w=0;
// the photometric policy additionally repurposes the fourth slot to carry
// scalar intensity in nearest neighbor queries.
type Vec4 [4]float64

// Vec6 is a tangent-space vector: rotation in elements 0..2, translation
// in elements 3..5.
type Vec6 [6]float64

// Mat4 is a row-major 4x4 matrix.
type Mat4 [16]float64

// Mat46 is a row-major 4x6 matrix (Jacobian of a homogeneous point with
// respect to a pose perturbation).
type Mat46 [24]float64

// Mat64 is a row-major 6x4 matrix.
type Mat64 [24]float64

// Mat6 is a row-major 6x6 matrix (Hessian block).
type Mat6 [36]float64

// PointVec builds a homogeneous point (w=1).
func PointVec(x, y, z float64) Vec4 { return Vec4{x, y, z, 1} }

// DirVec builds a homogeneous direction (w=0).
func DirVec(x, y, z float64) Vec4 { return Vec4{x, y, z, 0} }

// Dot returns the full 4-component dot product.
func (v Vec4) Dot(o Vec4) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] + v[3]*o[3]
}

// Sub returns v - o.
func (v Vec4) Sub(o Vec4) Vec4 {
	return Vec4{v[0] - o[0], v[1] - o[1], v[2] - o[2], v[3] - o[3]}
}

// Scale returns s*v.
func (v Vec4) Scale(s float64) Vec4 {
	return Vec4{s * v[0], s * v[1], s * v[2], s * v[3]}
}

// Norm3 returns the Euclidean norm of the geometric (x,y,z) part.
func (v Vec4) Norm3() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Add returns m + o.
func (m Mat4) Add(o Mat4) Mat4 {
	var out Mat4
	for i := range m {
		out[i] = m[i] + o[i]
	}
	return out
}

// Mul returns the matrix product m*o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			s := 0.0
			for k := 0; k < 4; k++ {
				s += m[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = s
		}
	}
	return out
}

// Transpose returns the transpose of m.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r*4+c]
		}
	}
	return out
}

// MulVec returns m*v.
func (m Mat4) MulVec(v Vec4) Vec4 {
	var out Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

// PreMulVec returns the row-vector product vᵀm as a Vec4.
func (m Mat4) PreMulVec(v Vec4) Vec4 {
	var out Vec4
	for c := 0; c < 4; c++ {
		out[c] = v[0]*m[c] + v[1]*m[4+c] + v[2]*m[8+c] + v[3]*m[12+c]
	}
	return out
}

// Inverse inverts m with gonum. A gonum Condition error (ill-conditioned
// but solvable) is tolerated; an exactly singular matrix is reported.
func (m Mat4) Inverse() (Mat4, error) {
	var dst mat.Dense
	err := dst.Inverse(mat.NewDense(4, 4, m[:]))
	if err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return Mat4{}, err
		}
	}
	var out Mat4
	copy(out[:], dst.RawMatrix().Data)
	return out, nil
}

// TransposeMul returns jᵀ*w as a 6x4 matrix.
func (j Mat46) TransposeMul(w Mat4) Mat64 {
	var out Mat64
	for r := 0; r < 6; r++ {
		for c := 0; c < 4; c++ {
			s := 0.0
			for k := 0; k < 4; k++ {
				s += j[k*6+r] * w[k*4+c]
			}
			out[r*4+c] = s
		}
	}
	return out
}

// PreMulVec returns the row-vector product vᵀj as a Vec6.
func (j Mat46) PreMulVec(v Vec4) Vec6 {
	var out Vec6
	for c := 0; c < 6; c++ {
		out[c] = v[0]*j[c] + v[1]*j[6+c] + v[2]*j[12+c] + v[3]*j[18+c]
	}
	return out
}

// MulMat46 returns the 6x6 product a*b.
func (a Mat64) MulMat46(b Mat46) Mat6 {
	var out Mat6
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			s := 0.0
			for k := 0; k < 4; k++ {
				s += a[r*4+k] * b[k*6+c]
			}
			out[r*6+c] = s
		}
	}
	return out
}

// MulVec returns a*v as a Vec6.
func (a Mat64) MulVec(v Vec4) Vec6 {
	var out Vec6
	for r := 0; r < 6; r++ {
		out[r] = a[r*4]*v[0] + a[r*4+1]*v[1] + a[r*4+2]*v[2] + a[r*4+3]*v[3]
	}
	return out
}

// AddMat accumulates o into h.
func (h *Mat6) AddMat(o Mat6) {
	for i := range h {
		h[i] += o[i]
	}
}

// AddOuterScaled accumulates s * a*bᵀ into h.
func (h *Mat6) AddOuterScaled(a, b Vec6, s float64) {
	for r := 0; r < 6; r++ {
		sa := s * a[r]
		for c := 0; c < 6; c++ {
			h[r*6+c] += sa * b[c]
		}
	}
}

// Add accumulates o into v.
func (v *Vec6) Add(o Vec6) {
	for i := range v {
		v[i] += o[i]
	}
}

// AddScaled accumulates s*o into v.
func (v *Vec6) AddScaled(o Vec6, s float64) {
	for i := range v {
		v[i] += s * o[i]
	}
}

// Norm returns the Euclidean norm of v.
func (v Vec6) Norm() float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// hat3 returns the 3x3 skew-symmetric (cross-product) matrix of the
// geometric part of v, row-major.
func hat3(v Vec4) [9]float64 {
	return [9]float64{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	}
}

// mul33 returns the row-major 3x3 product a*b.
func mul33(a, b [9]float64) [9]float64 {
	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = a[r*3]*b[c] + a[r*3+1]*b[3+c] + a[r*3+2]*b[6+c]
		}
	}
	return out
}
