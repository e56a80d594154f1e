package registration

import "math"

// Isometry is a rigid motion in 3D: a rotation followed by a translation.
// R is row-major 3x3 (m00,m01,m02, m10,...), matching the row-major pose
// convention used across the tooling.
type Isometry struct {
	R [9]float64
	T [3]float64
}

// Identity returns the identity transform.
func Identity() Isometry {
	return Isometry{R: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) Isometry {
	p := Identity()
	p.T = [3]float64{x, y, z}
	return p
}

// Matrix returns the 4x4 homogeneous matrix of p.
func (p Isometry) Matrix() Mat4 {
	return Mat4{
		p.R[0], p.R[1], p.R[2], p.T[0],
		p.R[3], p.R[4], p.R[5], p.T[1],
		p.R[6], p.R[7], p.R[8], p.T[2],
		0, 0, 0, 1,
	}
}

// Apply transforms a homogeneous 4-vector. The translation is scaled by
// the w component, so points (w=1) translate and directions (w=0) only
// rotate. The w component itself passes through unchanged, which lets the
// photometric policy carry intensity in that slot.
func (p Isometry) Apply(v Vec4) Vec4 {
	return Vec4{
		p.R[0]*v[0] + p.R[1]*v[1] + p.R[2]*v[2] + p.T[0]*v[3],
		p.R[3]*v[0] + p.R[4]*v[1] + p.R[5]*v[2] + p.T[1]*v[3],
		p.R[6]*v[0] + p.R[7]*v[1] + p.R[8]*v[2] + p.T[2]*v[3],
		v[3],
	}
}

// Rotate applies only the rotation part to the geometric components.
func (p Isometry) Rotate(v Vec4) Vec4 {
	return Vec4{
		p.R[0]*v[0] + p.R[1]*v[1] + p.R[2]*v[2],
		p.R[3]*v[0] + p.R[4]*v[1] + p.R[5]*v[2],
		p.R[6]*v[0] + p.R[7]*v[1] + p.R[8]*v[2],
		v[3],
	}
}

// Compose returns p*q (apply q first, then p).
func (p Isometry) Compose(q Isometry) Isometry {
	var out Isometry
	out.R = mul33(p.R, q.R)
	for r := 0; r < 3; r++ {
		out.T[r] = p.R[r*3]*q.T[0] + p.R[r*3+1]*q.T[1] + p.R[r*3+2]*q.T[2] + p.T[r]
	}
	return out
}

// Inverse returns the inverse rigid motion.
func (p Isometry) Inverse() Isometry {
	var out Isometry
	// Rᵀ
	out.R = [9]float64{
		p.R[0], p.R[3], p.R[6],
		p.R[1], p.R[4], p.R[7],
		p.R[2], p.R[5], p.R[8],
	}
	for r := 0; r < 3; r++ {
		out.T[r] = -(out.R[r*3]*p.T[0] + out.R[r*3+1]*p.T[1] + out.R[r*3+2]*p.T[2])
	}
	return out
}

// RotationAngle returns the angle of the rotation part in radians,
// in [0, pi].
func (p Isometry) RotationAngle() float64 {
	tr := p.R[0] + p.R[4] + p.R[8]
	c := (tr - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// TranslationNorm returns the Euclidean norm of the translation part.
func (p Isometry) TranslationNorm() float64 {
	return math.Sqrt(p.T[0]*p.T[0] + p.T[1]*p.T[1] + p.T[2]*p.T[2])
}

// Exp maps a tangent-space twist (rotation in tw[0..2], translation in
// tw[3..5]) to an isometry via the SE(3) exponential. It is the retraction
// used to apply optimizer updates and satisfies Exp(-tw) = Exp(tw)⁻¹.
func Exp(tw Vec6) Isometry {
	w := [3]float64{tw[0], tw[1], tw[2]}
	v := [3]float64{tw[3], tw[4], tw[5]}
	theta2 := w[0]*w[0] + w[1]*w[1] + w[2]*w[2]
	theta := math.Sqrt(theta2)

	wh := hat3(Vec4{w[0], w[1], w[2], 0})
	wh2 := mul33(wh, wh)

	// Series coefficients, with small-angle fallbacks.
	var a, b, c float64
	if theta < 1e-9 {
		a = 1 - theta2/6
		b = 0.5 - theta2/24
		c = 1.0/6 - theta2/120
	} else {
		a = math.Sin(theta) / theta
		b = (1 - math.Cos(theta)) / theta2
		c = (theta - math.Sin(theta)) / (theta2 * theta)
	}

	var out Isometry
	eye := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	for i := 0; i < 9; i++ {
		out.R[i] = eye[i] + a*wh[i] + b*wh2[i]
	}
	// t = V*v with V = I + b*wh + c*wh².
	var V [9]float64
	for i := 0; i < 9; i++ {
		V[i] = eye[i] + b*wh[i] + c*wh2[i]
	}
	for r := 0; r < 3; r++ {
		out.T[r] = V[r*3]*v[0] + V[r*3+1]*v[1] + V[r*3+2]*v[2]
	}
	return out
}
