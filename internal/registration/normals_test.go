package registration

import (
	"math"
	"testing"
)

// Points on a tilted plane must recover the plane normal, unit length,
// oriented toward the sensor at the origin.
func TestEstimateNormals_TiltedPlane(t *testing.T) {
	// z = 1 + 0.3x + 0.4y, so the plane normal is (-0.3, -0.4, 1)
	// normalized; every point has positive dot with it, so orientation
	// flips it to point back at the origin.
	cloud := &Cloud{}
	for ix := 0; ix < 10; ix++ {
		for iy := 0; iy < 10; iy++ {
			x := float64(ix) * 0.3
			y := float64(iy) * 0.3
			cloud.Points = append(cloud.Points, PointVec(x, y, 1+0.3*x+0.4*y))
		}
	}
	norm := math.Sqrt(0.3*0.3 + 0.4*0.4 + 1)
	want := DirVec(0.3/norm, 0.4/norm, -1/norm)

	normals, err := EstimateNormals(cloud, nil, 8, 0.5, 2)
	if err != nil {
		t.Fatalf("EstimateNormals: %v", err)
	}
	if len(normals) != cloud.Size() {
		t.Fatalf("got %d normals for %d points", len(normals), cloud.Size())
	}

	for i, n := range normals {
		if math.Abs(n.Norm3()-1) > 1e-9 {
			t.Fatalf("normal %d has length %v", i, n.Norm3())
		}
		for c := 0; c < 4; c++ {
			if math.Abs(n[c]-want[c]) > 1e-8 {
				t.Fatalf("normal %d = %v, want %v", i, n, want)
			}
		}
	}
}

func TestEstimateNormals_TooFewNeighbors(t *testing.T) {
	cloud := &Cloud{
		Points: []Vec4{PointVec(0, 0, 0), PointVec(100, 0, 0)},
	}
	normals, err := EstimateNormals(cloud, nil, 5, 1.0, 1)
	if err != nil {
		t.Fatalf("EstimateNormals: %v", err)
	}
	for i, n := range normals {
		if n != DirVec(0, 0, 1) {
			t.Errorf("isolated point %d got normal %v, want +z", i, n)
		}
	}
}

func TestEstimateNormals_MissingPoints(t *testing.T) {
	if _, err := EstimateNormals(&Cloud{}, nil, 5, 1.0, 1); err == nil {
		t.Fatal("expected a missing-attribute error")
	}
}
