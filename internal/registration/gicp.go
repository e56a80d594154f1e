package registration

import "math"

// GICPParams configures a GICPEvaluator. The zero value is not useful;
// start from DefaultGICPParams.
type GICPParams struct {
	// NumWorkers is the worker count for correspondence refresh and
	// cost/derivative accumulation.
	NumWorkers int
	// MaxCorrespondenceDistSq is the squared distance bound on nearest
	// neighbor matches. Points farther than this contribute nothing.
	MaxCorrespondenceDistSq float64
	// CorrespondenceUpdateToleranceRot and ...Trans gate correspondence
	// refreshes: while the pose has moved less than both tolerances since
	// the last refresh, the cached correspondences are reused. Zero for
	// both disables the gate.
	CorrespondenceUpdateToleranceRot   float64
	CorrespondenceUpdateToleranceTrans float64
}

// DefaultGICPParams returns the standard configuration: single worker,
// 1m correspondence bound, refresh gating disabled.
func DefaultGICPParams() GICPParams {
	return GICPParams{
		NumWorkers:              1,
		MaxCorrespondenceDistSq: 1.0,
	}
}

// GICPEvaluator computes the distribution-to-distribution matching cost
// between a target and a source cloud: each matched pair contributes a
// Mahalanobis-weighted squared residual, with the weight derived from the
// pair's combined covariance under the current transform.
//
// The target/source frames and the nearest neighbor index are read-only
// shared references; the caller guarantees they outlive the evaluator.
// The evaluator's own correspondence cache is mutable, so concurrent
// Refresh/Evaluate calls on the same instance require external mutual
// exclusion. Distinct evaluators may share frames and index freely.
type GICPEvaluator struct {
	params GICPParams

	target Frame
	source Frame
	tree   NearestNeighbor

	cache       correspondenceCache
	mahalanobis []Mat4
}

// NewGICPEvaluator validates the frames' capabilities and builds the
// evaluator. Both frames need points and covariances. A nil tree gets a
// default VoxelIndex over the target sized to the correspondence bound.
func NewGICPEvaluator(target, source Frame, tree NearestNeighbor, params GICPParams) (*GICPEvaluator, error) {
	if err := requireAttrs("target",
		attrCheck{target.HasPoints(), "points"},
		attrCheck{target.HasCovs(), "covs"},
	); err != nil {
		return nil, err
	}
	if err := requireAttrs("source",
		attrCheck{source.HasPoints(), "points"},
		attrCheck{source.HasCovs(), "covs"},
	); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = NewVoxelIndex(target, defaultCellSize(params.MaxCorrespondenceDistSq))
	}
	return &GICPEvaluator{
		params: params,
		target: target,
		source: source,
		tree:   tree,
		cache: correspondenceCache{
			rotTol:   params.CorrespondenceUpdateToleranceRot,
			transTol: params.CorrespondenceUpdateToleranceTrans,
		},
	}, nil
}

func defaultCellSize(maxSqDist float64) float64 {
	if maxSqDist > 0 {
		return math.Sqrt(maxSqDist)
	}
	return 1.0
}

// Refresh brings the correspondence cache up to date for delta. Nearest
// neighbor searches run only when the pose has moved beyond the configured
// tolerances (or the cache is invalid); the per-pair Mahalanobis weights
// are recomputed from the current delta either way, since they depend on
// the transform and not only on the match indices.
//
// A singular composed covariance is not guarded: its weight becomes
// non-finite and propagates into the cost, rather than being clamped.
func (e *GICPEvaluator) Refresh(delta Isometry) {
	n := e.source.Size()
	update := e.cache.shouldRefresh(delta, n)
	if update {
		// Reference pose moves only on a real refresh, so later calls
		// measure motion since the last true update.
		e.cache.last = delta
	}
	e.cache.resize(n)
	if len(e.mahalanobis) != n {
		e.mahalanobis = make([]Mat4, n)
	}

	dm := delta.Matrix()
	dmT := dm.Transpose()

	parallelFor(n, e.params.NumWorkers, func(_, i int) {
		if update {
			pt := delta.Apply(e.source.Point(i))

			var idx [1]int
			var sq [1]float64
			found := e.tree.Search(pt, 1, e.params.MaxCorrespondenceDistSq, idx[:], sq[:])
			if found > 0 && sq[0] < e.params.MaxCorrespondenceDistSq {
				e.cache.indices[i] = int32(idx[0])
			} else {
				e.cache.indices[i] = noCorrespondence
			}
		}

		ti := e.cache.indices[i]
		if ti < 0 {
			e.mahalanobis[i] = Mat4{}
			return
		}

		rcr := e.target.Cov(int(ti)).Add(dm.Mul(e.source.Cov(i)).Mul(dmT))
		// The homogeneous diagonal entry is forced to 1 so the embedding
		// stays invertible, then the inverse's homogeneous row/column is
		// zeroed so the weight acts only on the geometric subspace.
		rcr[15] = 1
		inv, err := rcr.Inverse()
		if err != nil {
			nan := math.NaN()
			for j := range inv {
				inv[j] = nan
			}
		}
		inv[3], inv[7], inv[11] = 0, 0, 0
		inv[12], inv[13], inv[14], inv[15] = 0, 0, 0, 0
		e.mahalanobis[i] = inv
	})
}

// Evaluate returns the total matching cost at delta and, when out is
// non-nil, accumulates the five derivative blocks into it. The cache is
// rebuilt first if it is stale (size mismatch); callers wanting
// tolerance-gated correspondence tracking call Refresh explicitly before
// each evaluation. The returned cost is identical whether or not out is
// provided.
func (e *GICPEvaluator) Evaluate(delta Isometry, out *Derivatives) float64 {
	n := e.source.Size()
	if len(e.cache.indices) != n {
		e.Refresh(delta)
	}

	workers := e.params.NumWorkers
	if workers < 1 {
		workers = 1
	}
	accs := make([]blockAccumulator, workers)

	parallelFor(n, workers, func(w, i int) {
		ti := e.cache.indices[i]
		if ti < 0 {
			return
		}
		acc := &accs[w]

		meanA := e.source.Point(i)
		meanB := e.target.Point(int(ti))
		W := e.mahalanobis[i]

		transA := delta.Apply(meanA)
		resid := meanB.Sub(transA)

		acc.cost += 0.5 * resid.Dot(W.MulVec(resid))

		if out == nil {
			return
		}

		jt := gicpTargetJacobian(transA)
		js := gicpSourceJacobian(delta, meanA)

		jtW := jt.TransposeMul(W)
		jsW := js.TransposeMul(W)

		acc.hTarget.AddMat(jtW.MulMat46(jt))
		acc.hSource.AddMat(jsW.MulMat46(js))
		acc.hCross.AddMat(jtW.MulMat46(js))
		acc.bTarget.Add(jtW.MulVec(resid))
		acc.bSource.Add(jsW.MulVec(resid))
	})

	return mergeAccumulators(accs, out)
}

// gicpTargetJacobian is the 4x6 Jacobian of the residual with respect to
// a tangent-space perturbation of the target pose: rotation block
// -hat(transformed source point), translation block +I.
func gicpTargetJacobian(transA Vec4) Mat46 {
	h := hat3(transA)
	var j Mat46
	for r := 0; r < 3; r++ {
		j[r*6] = -h[r*3]
		j[r*6+1] = -h[r*3+1]
		j[r*6+2] = -h[r*3+2]
		j[r*6+3+r] = 1
	}
	return j
}

// gicpSourceJacobian is the 4x6 Jacobian of the residual with respect to
// a tangent-space perturbation of the source pose: rotation block
// R*hat(source point), translation block -R.
func gicpSourceJacobian(delta Isometry, meanA Vec4) Mat46 {
	rh := mul33(delta.R, hat3(meanA))
	var j Mat46
	for r := 0; r < 3; r++ {
		j[r*6] = rh[r*3]
		j[r*6+1] = rh[r*3+1]
		j[r*6+2] = rh[r*3+2]
		j[r*6+3] = -delta.R[r*3]
		j[r*6+4] = -delta.R[r*3+1]
		j[r*6+5] = -delta.R[r*3+2]
	}
	return j
}
