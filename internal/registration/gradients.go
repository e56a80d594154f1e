package registration

import (
	"gonum.org/v1/gonum/mat"
)

// EstimateIntensityGradients fits a per-point intensity gradient for a
// frame with points, normals and intensities: for each point, neighbor
// intensity differences are explained by a linear model g·(p_j - p_i)
// with g constrained to the tangent plane of the point's normal. The
// result slice is aligned to the frame's indices and assignable to
// Cloud.Gradients.
//
// k is the neighbor count per point and maxSqDist the squared search
// radius; points with fewer than three neighbors get a zero gradient.
func EstimateIntensityGradients(frame Frame, tree NearestNeighbor, k int, maxSqDist float64, workers int) ([]Vec4, error) {
	if err := requireAttrs("target",
		attrCheck{frame.HasPoints(), "points"},
		attrCheck{frame.HasNormals(), "normals"},
		attrCheck{frame.HasIntensities(), "intensities"},
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
	grads := make([]Vec4, n)

	parallelFor(n, workers, func(_, i int) {
		indices := make([]int, k)
		sqDists := make([]float64, k)

		p := frame.Point(i)
		normal := frame.Normal(i)
		intensity := frame.Intensity(i)

		found := tree.Search(p, k, maxSqDist, indices, sqDists)
		if found < 3 {
			return
		}

		// One row per neighbor plus a tangency constraint row; the
		// constraint is weighted like the data so a near-degenerate
		// neighborhood still yields a bounded solution.
		a := mat.NewDense(found+1, 3, nil)
		b := mat.NewVecDense(found+1, nil)
		for r := 0; r < found; r++ {
			q := frame.Point(indices[r])
			a.Set(r, 0, q[0]-p[0])
			a.Set(r, 1, q[1]-p[1])
			a.Set(r, 2, q[2]-p[2])
			b.SetVec(r, frame.Intensity(indices[r])-intensity)
		}
		w := float64(found)
		a.Set(found, 0, w*normal[0])
		a.Set(found, 1, w*normal[1])
		a.Set(found, 2, w*normal[2])

		var g mat.VecDense
		if err := g.SolveVec(a, b); err != nil {
			return
		}

		grad := DirVec(g.AtVec(0), g.AtVec(1), g.AtVec(2))
		// Remove any residual normal component left by the soft
		// constraint.
		grad = grad.Sub(normal.Scale(grad.Dot(normal)))
		grads[i] = grad
	})

	return grads, nil
}
