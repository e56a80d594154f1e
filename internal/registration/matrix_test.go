package registration

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randMat46(rng *rand.Rand) Mat46 {
	var m Mat46
	for i := range m {
		m[i] = rng.NormFloat64()
	}
	return m
}

func randMat4(rng *rand.Rand) Mat4 {
	var m Mat4
	for i := range m {
		m[i] = rng.NormFloat64()
	}
	return m
}

func randVec4(rng *rand.Rand) Vec4 {
	var v Vec4
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

// TestFixedSizeKernels_AgainstGonum cross-checks the hand-written kernels
// against gonum dense products on random inputs.
func TestFixedSizeKernels_AgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		j := randMat46(rng)
		w := randMat4(rng)
		v := randVec4(rng)

		jd := mat.NewDense(4, 6, j[:])
		wd := mat.NewDense(4, 4, w[:])

		// jᵀw
		var jtw mat.Dense
		jtw.Mul(jd.T(), wd)
		got := j.TransposeMul(w)
		for r := 0; r < 6; r++ {
			for c := 0; c < 4; c++ {
				if math.Abs(got[r*4+c]-jtw.At(r, c)) > 1e-12 {
					t.Fatalf("TransposeMul mismatch at (%d,%d)", r, c)
				}
			}
		}

		// (jᵀw)·j
		var h mat.Dense
		h.Mul(&jtw, jd)
		got6 := got.MulMat46(j)
		for r := 0; r < 6; r++ {
			for c := 0; c < 6; c++ {
				if math.Abs(got6[r*6+c]-h.At(r, c)) > 1e-12 {
					t.Fatalf("MulMat46 mismatch at (%d,%d)", r, c)
				}
			}
		}

		// (jᵀw)·v
		var bv mat.VecDense
		bv.MulVec(&jtw, mat.NewVecDense(4, v[:]))
		gotb := got.MulVec(v)
		for r := 0; r < 6; r++ {
			if math.Abs(gotb[r]-bv.AtVec(r)) > 1e-12 {
				t.Fatalf("Mat64.MulVec mismatch at %d", r)
			}
		}

		// vᵀj
		var rv mat.VecDense
		rv.MulVec(jd.T(), mat.NewVecDense(4, v[:]))
		gotr := j.PreMulVec(v)
		for c := 0; c < 6; c++ {
			if math.Abs(gotr[c]-rv.AtVec(c)) > 1e-12 {
				t.Fatalf("Mat46.PreMulVec mismatch at %d", c)
			}
		}

		// vᵀw
		var rw mat.VecDense
		rw.MulVec(wd.T(), mat.NewVecDense(4, v[:]))
		gotw := w.PreMulVec(v)
		for c := 0; c < 4; c++ {
			if math.Abs(gotw[c]-rw.AtVec(c)) > 1e-12 {
				t.Fatalf("Mat4.PreMulVec mismatch at %d", c)
			}
		}
	}
}

func TestMat4_InverseRoundTrip(t *testing.T) {
	m := Mat4{
		2, 0.1, 0, 0,
		0.1, 3, 0.2, 0,
		0, 0.2, 4, 0,
		0, 0, 0, 1,
	}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	id := m.Mul(inv)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			if math.Abs(id[r*4+c]-want) > 1e-10 {
				t.Fatalf("m*m⁻¹ = %v, not identity", id)
			}
		}
	}
}

func TestMat4_InverseSingular(t *testing.T) {
	var zero Mat4
	if _, err := zero.Inverse(); err == nil {
		t.Fatal("inverting the zero matrix did not report an error")
	}
}

func TestMat6_AddOuterScaled(t *testing.T) {
	a := Vec6{1, 2, 3, 4, 5, 6}
	b := Vec6{-1, 0.5, 2, 0, 1, -2}
	var h Mat6
	h.AddOuterScaled(a, b, 2.5)
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			want := 2.5 * a[r] * b[c]
			if math.Abs(h[r*6+c]-want) > 1e-12 {
				t.Fatalf("outer product mismatch at (%d,%d)", r, c)
			}
		}
	}
}

func TestHat3_CrossProduct(t *testing.T) {
	v := Vec4{1, 2, 3, 0}
	u := Vec4{-2, 0.5, 4, 0}
	h := hat3(v)
	// hat(v)·u must equal v×u.
	got := [3]float64{
		h[0]*u[0] + h[1]*u[1] + h[2]*u[2],
		h[3]*u[0] + h[4]*u[1] + h[5]*u[2],
		h[6]*u[0] + h[7]*u[1] + h[8]*u[2],
	}
	want := [3]float64{
		v[1]*u[2] - v[2]*u[1],
		v[2]*u[0] - v[0]*u[2],
		v[0]*u[1] - v[1]*u[0],
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("hat(v)u = %v, want %v", got, want)
		}
	}
}
