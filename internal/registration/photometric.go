package registration

// PhotometricParams configures a PhotometricEvaluator.
type PhotometricParams struct {
	NumWorkers              int
	MaxCorrespondenceDistSq float64
	// Weight is the scalar photometric term weight applied uniformly to
	// every residual.
	Weight                             float64
	CorrespondenceUpdateToleranceRot   float64
	CorrespondenceUpdateToleranceTrans float64
}

// DefaultPhotometricParams returns the standard configuration: single
// worker, 1m correspondence bound, unit weight, refresh gating disabled.
func DefaultPhotometricParams() PhotometricParams {
	return PhotometricParams{
		NumWorkers:              1,
		MaxCorrespondenceDistSq: 1.0,
		Weight:                  1.0,
	}
}

// PhotometricEvaluator computes a color-consistency matching cost: each
// transformed source point is projected onto its matched target point's
// tangent plane, the target intensity is extrapolated to the projected
// location through the target's intensity gradient, and the residual is
// the difference to the source intensity.
//
// Sharing and concurrency rules match GICPEvaluator: frames, gradients
// and index are read-only shared references; the evaluator's own cache
// needs external mutual exclusion for concurrent use of one instance.
type PhotometricEvaluator struct {
	params PhotometricParams

	target    Frame
	source    Frame
	gradients IntensityGradients
	tree      NearestNeighbor

	cache correspondenceCache
}

// NewPhotometricEvaluator validates capabilities and builds the
// evaluator. The target needs points, normals and intensities plus a
// gradients entity aligned to its indices; the source needs points and
// intensities. A nil tree gets a default VoxelIndex over the target.
func NewPhotometricEvaluator(target, source Frame, gradients IntensityGradients, tree NearestNeighbor, params PhotometricParams) (*PhotometricEvaluator, error) {
	if err := requireAttrs("target",
		attrCheck{target.HasPoints(), "points"},
		attrCheck{target.HasNormals(), "normals"},
		attrCheck{target.HasIntensities(), "intensities"},
		attrCheck{gradients != nil && gradients.HasIntensityGradients(target.Size()), "intensity gradients"},
	); err != nil {
		return nil, err
	}
	if err := requireAttrs("source",
		attrCheck{source.HasPoints(), "points"},
		attrCheck{source.HasIntensities(), "intensities"},
	); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = NewVoxelIndex(target, defaultCellSize(params.MaxCorrespondenceDistSq))
	}
	return &PhotometricEvaluator{
		params:    params,
		target:    target,
		source:    source,
		gradients: gradients,
		tree:      tree,
		cache: correspondenceCache{
			rotTol:   params.CorrespondenceUpdateToleranceRot,
			transTol: params.CorrespondenceUpdateToleranceTrans,
		},
	}, nil
}

// Refresh brings the correspondence cache up to date for delta, skipping
// the nearest neighbor pass while the pose motion since the last real
// refresh stays below both tolerances. The query point's homogeneous slot
// is overwritten with the source intensity before the search, so an index
// that chooses to index on intensity can use it; VoxelIndex ignores it.
func (e *PhotometricEvaluator) Refresh(delta Isometry) {
	n := e.source.Size()
	update := e.cache.shouldRefresh(delta, n)
	if update {
		// Same conditional rule as the GICP policy: the tolerance
		// reference only moves when a search actually ran.
		e.cache.last = delta
	}
	e.cache.resize(n)
	if !update {
		return
	}

	parallelFor(n, e.params.NumWorkers, func(_, i int) {
		pt := delta.Apply(e.source.Point(i))
		pt[3] = e.source.Intensity(i)

		var idx [1]int
		var sq [1]float64
		found := e.tree.Search(pt, 1, e.params.MaxCorrespondenceDistSq, idx[:], sq[:])
		if found > 0 && sq[0] < e.params.MaxCorrespondenceDistSq {
			e.cache.indices[i] = int32(idx[0])
		} else {
			e.cache.indices[i] = noCorrespondence
		}
	})
}

// Evaluate returns the total photometric cost at delta and, when out is
// non-nil, accumulates the five derivative blocks into it. Semantics of
// staleness, refresh and the cost/derivative equivalence match
// GICPEvaluator.Evaluate.
func (e *PhotometricEvaluator) Evaluate(delta Isometry, out *Derivatives) float64 {
	n := e.source.Size()
	if len(e.cache.indices) != n {
		e.Refresh(delta)
	}

	workers := e.params.NumWorkers
	if workers < 1 {
		workers = 1
	}
	accs := make([]blockAccumulator, workers)
	weight := e.params.Weight

	parallelFor(n, workers, func(w, i int) {
		ti := e.cache.indices[i]
		if ti < 0 {
			return
		}
		acc := &accs[w]

		meanA := e.source.Point(i)
		intensityA := e.source.Intensity(i)

		meanB := e.target.Point(int(ti))
		normalB := e.target.Normal(int(ti))
		gradB := e.gradients.IntensityGradient(int(ti))
		intensityB := e.target.Intensity(int(ti))

		transA := delta.Apply(meanA)

		// Project onto the target tangent plane and linearize the target
		// intensity at the projected location.
		projected := transA.Sub(normalB.Scale(transA.Sub(meanB).Dot(normalB)))
		offset := projected.Sub(meanB)
		resid := intensityB + gradB.Dot(offset) - intensityA

		acc.cost += 0.5 * weight * resid * resid

		if out == nil {
			return
		}

		jtPose := photometricTargetJacobian(transA)
		jsPose := photometricSourceJacobian(delta, meanA)

		// d(projected)/d(transformed): tangent-plane projection operator
		// restricted to the geometric subspace.
		proj := projectionOperator(normalB)
		jResidTrans := proj.PreMulVec(gradB)

		jt := jtPose.PreMulVec(jResidTrans)
		js := jsPose.PreMulVec(jResidTrans)

		acc.hTarget.AddOuterScaled(jt, jt, weight)
		acc.hSource.AddOuterScaled(js, js, weight)
		acc.hCross.AddOuterScaled(jt, js, weight)
		acc.bTarget.AddScaled(jt, weight*resid)
		acc.bSource.AddScaled(js, weight*resid)
	})

	return mergeAccumulators(accs, out)
}

// projectionOperator returns I - n*nᵀ with the homogeneous row and column
// zeroed. For a unit normal (w=0) this maps a displacement onto the
// tangent plane.
func projectionOperator(n Vec4) Mat4 {
	var p Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			v := -n[r] * n[c]
			if r == c {
				v++
			}
			p[r*4+c] = v
		}
	}
	p[3], p[7], p[11] = 0, 0, 0
	p[12], p[13], p[14], p[15] = 0, 0, 0, 0
	return p
}

// photometricTargetJacobian is the 4x6 Jacobian of the transformed source
// point with respect to a target pose perturbation: rotation block
// +hat(transformed point), translation block -I.
func photometricTargetJacobian(transA Vec4) Mat46 {
	h := hat3(transA)
	var j Mat46
	for r := 0; r < 3; r++ {
		j[r*6] = h[r*3]
		j[r*6+1] = h[r*3+1]
		j[r*6+2] = h[r*3+2]
		j[r*6+3+r] = -1
	}
	return j
}

// photometricSourceJacobian is the 4x6 Jacobian of the transformed source
// point with respect to a source pose perturbation: rotation block
// -R*hat(source point), translation block +R.
func photometricSourceJacobian(delta Isometry, meanA Vec4) Mat46 {
	rh := mul33(delta.R, hat3(meanA))
	var j Mat46
	for r := 0; r < 3; r++ {
		j[r*6] = -rh[r*3]
		j[r*6+1] = -rh[r*3+1]
		j[r*6+2] = -rh[r*3+2]
		j[r*6+3] = delta.R[r*3]
		j[r*6+4] = delta.R[r*3+1]
		j[r*6+5] = delta.R[r*3+2]
	}
	return j
}
