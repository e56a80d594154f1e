package registration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Evaluator is the optimizer-facing contract shared by both cost
// policies: Refresh synchronizes the correspondence cache for a
// transform, Evaluate returns the cost and optionally fills derivative
// blocks.
type Evaluator interface {
	Refresh(delta Isometry)
	Evaluate(delta Isometry, out *Derivatives) float64
}

var (
	_ Evaluator = (*GICPEvaluator)(nil)
	_ Evaluator = (*PhotometricEvaluator)(nil)
)

// RefineParams configures RefineSourcePose.
type RefineParams struct {
	MaxIterations int
	// CostTolerance stops iteration when the relative cost decrease
	// falls below it.
	CostTolerance float64
	// StepTolerance stops iteration when the update twist norm falls
	// below it.
	StepTolerance float64
	// Damping is added to the Hessian diagonal when the plain
	// Gauss-Newton system is not positive definite.
	Damping float64
}

// DefaultRefineParams returns the standard refinement configuration.
func DefaultRefineParams() RefineParams {
	return RefineParams{
		MaxIterations: 30,
		CostTolerance: 1e-10,
		StepTolerance: 1e-10,
		Damping:       1e-6,
	}
}

// RefineResult reports the outcome of a refinement run.
type RefineResult struct {
	Delta       Isometry
	InitialCost float64
	FinalCost   float64
	Iterations  int
	Converged   bool
	// CostHistory holds the cost at the start of each iteration. A run
	// that converges on a small step carries one trailing entry with the
	// cost at the returned pose, so its length is Iterations+1. The last
	// entry always equals FinalCost.
	CostHistory []float64
}

// RefineSourcePose runs Gauss-Newton refinement of the source pose with
// the target pose held fixed: each iteration refreshes the evaluator,
// solves H_source·dx = -b_source and retracts the step onto the pose.
// Returning without error does not imply convergence; check
// RefineResult.Converged.
func RefineSourcePose(ev Evaluator, initial Isometry, params RefineParams) (RefineResult, error) {
	res := RefineResult{Delta: initial}
	d := NewDerivatives()
	prevCost := math.Inf(1)

	for it := 0; it < params.MaxIterations; it++ {
		ev.Refresh(res.Delta)
		cost := ev.Evaluate(res.Delta, d)
		res.CostHistory = append(res.CostHistory, cost)
		res.FinalCost = cost
		res.Iterations = it + 1
		if it == 0 {
			res.InitialCost = cost
		}

		if !math.IsInf(prevCost, 1) {
			denom := math.Max(prevCost, 1e-300)
			if (prevCost-cost)/denom < params.CostTolerance {
				res.Converged = true
				return res, nil
			}
		}
		prevCost = cost

		step, err := solveStep(d, params.Damping)
		if err != nil {
			return res, err
		}

		res.Delta = res.Delta.Compose(Exp(step))
		if step.Norm() < params.StepTolerance {
			res.Converged = true
			// Report the cost at the final pose.
			ev.Refresh(res.Delta)
			res.FinalCost = ev.Evaluate(res.Delta, nil)
			res.CostHistory = append(res.CostHistory, res.FinalCost)
			return res, nil
		}
	}

	return res, nil
}

// solveStep solves the symmetrized normal equations for one Gauss-Newton
// step, retrying once with diagonal damping when the system is not
// positive definite.
func solveStep(d *Derivatives, damping float64) (Vec6, error) {
	h := mat.NewSymDense(6, nil)
	for r := 0; r < 6; r++ {
		for c := r; c < 6; c++ {
			h.SetSym(r, c, 0.5*(d.HSource.At(r, c)+d.HSource.At(c, r)))
		}
	}
	negb := mat.NewVecDense(6, nil)
	for i := 0; i < 6; i++ {
		negb.SetVec(i, -d.BSource.AtVec(i))
	}

	var chol mat.Cholesky
	if !chol.Factorize(h) {
		if damping <= 0 {
			return Vec6{}, fmt.Errorf("refine: source Hessian not positive definite")
		}
		for i := 0; i < 6; i++ {
			h.SetSym(i, i, h.At(i, i)+damping)
		}
		if !chol.Factorize(h) {
			return Vec6{}, fmt.Errorf("refine: source Hessian not positive definite after damping")
		}
	}

	var dx mat.VecDense
	if err := chol.SolveVecTo(&dx, negb); err != nil {
		return Vec6{}, fmt.Errorf("refine: solving normal equations: %w", err)
	}

	var step Vec6
	for i := 0; i < 6; i++ {
		step[i] = dx.AtVec(i)
	}
	return step, nil
}
