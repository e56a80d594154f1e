package registration

import (
	"gonum.org/v1/gonum/mat"
)

// EstimateNormals fits a per-point unit normal for a frame with points:
// each normal is the smallest-variance principal direction of the k
// nearest neighbors, oriented toward the sensor at the origin. The result
// slice is aligned to the frame's indices and assignable to Cloud.Normals.
//
// k is the neighbor count per point and maxSqDist the squared search
// radius; points with fewer than three neighbors get a +z normal.
func EstimateNormals(frame Frame, tree NearestNeighbor, k int, maxSqDist float64, workers int) ([]Vec4, error) {
	if err := requireAttrs("target",
		attrCheck{frame.HasPoints(), "points"},
	); err != nil {
		return nil, err
	}
	if k < 3 {
		k = 3
	}
	if tree == nil {
		tree = NewVoxelIndex(frame, defaultCellSize(maxSqDist))
	}

	n := frame.Size()
	normals := make([]Vec4, n)

	parallelFor(n, workers, func(_, i int) {
		indices := make([]int, k)
		sqDists := make([]float64, k)

		p := frame.Point(i)
		normals[i] = DirVec(0, 0, 1)

		found := tree.Search(p, k, maxSqDist, indices, sqDists)
		if found < 3 {
			return
		}

		var cx, cy, cz float64
		for _, j := range indices[:found] {
			q := frame.Point(j)
			cx += q[0]
			cy += q[1]
			cz += q[2]
		}
		inv := 1 / float64(found)
		cx, cy, cz = cx*inv, cy*inv, cz*inv

		cov := mat.NewSymDense(3, nil)
		for _, j := range indices[:found] {
			q := frame.Point(j)
			dx, dy, dz := q[0]-cx, q[1]-cy, q[2]-cz
			cov.SetSym(0, 0, cov.At(0, 0)+dx*dx)
			cov.SetSym(0, 1, cov.At(0, 1)+dx*dy)
			cov.SetSym(0, 2, cov.At(0, 2)+dx*dz)
			cov.SetSym(1, 1, cov.At(1, 1)+dy*dy)
			cov.SetSym(1, 2, cov.At(1, 2)+dy*dz)
			cov.SetSym(2, 2, cov.At(2, 2)+dz*dz)
		}

		var eig mat.EigenSym
		if !eig.Factorize(cov, true) {
			return
		}
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		// Eigenvalues come out ascending, so column 0 spans the
		// smallest-variance direction.
		nx, ny, nz := vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)
		if nx*p[0]+ny*p[1]+nz*p[2] > 0 {
			nx, ny, nz = -nx, -ny, -nz
		}
		normals[i] = DirVec(nx, ny, nz)
	})

	return normals, nil
}
