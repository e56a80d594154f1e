package registration

import "math"

// latticeCloud builds a deterministic, non-coplanar test cloud: an nx*ny
// lattice in the XY plane with a repeating height pattern.
func latticeCloud(nx, ny int, spacing float64) *Cloud {
	pts := make([]Vec4, 0, nx*ny)
	for ix := 0; ix < nx; ix++ {
		for iy := 0; iy < ny; iy++ {
			z := 0.05 * spacing * float64((ix*3+iy*5)%7)
			pts = append(pts, PointVec(float64(ix)*spacing, float64(iy)*spacing, z))
		}
	}
	return &Cloud{Points: pts}
}

// identityCov is the homogeneous embedding of a 3x3 identity covariance.
var identityCov = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 0,
}

// withIdentityCovs attaches identity covariances to every point.
func withIdentityCovs(c *Cloud) *Cloud {
	covs := make([]Mat4, c.Size())
	for i := range covs {
		covs[i] = identityCov
	}
	c.Covs = covs
	return c
}

// rotZ returns a rotation about the Z axis by theta radians.
func rotZ(theta float64) Isometry {
	c, s := math.Cos(theta), math.Sin(theta)
	return Isometry{R: [9]float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}}
}

// planarPhotometricClouds builds matching target/source clouds on the
// z=0 plane with +z normals and intensity 2x+3y, plus the exact
// intensity gradient on the target.
func planarPhotometricClouds(n int, spacing float64) (target, source *Cloud) {
	target = &Cloud{}
	for ix := 0; ix < n; ix++ {
		for iy := 0; iy < n; iy++ {
			x := float64(ix) * spacing
			y := float64(iy) * spacing
			target.Points = append(target.Points, PointVec(x, y, 0))
			target.Normals = append(target.Normals, DirVec(0, 0, 1))
			target.Intensities = append(target.Intensities, 2*x+3*y)
			target.Gradients = append(target.Gradients, DirVec(2, 3, 0))
		}
	}
	source = &Cloud{
		Points:      append([]Vec4(nil), target.Points...),
		Intensities: append([]float64(nil), target.Intensities...),
	}
	return target, source
}
