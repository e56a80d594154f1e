package registration

import (
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// reduceChunk is the dynamic-scheduling granularity of parallelFor.
// Chunks are handed to workers from a shared counter so uneven per-point
// cost (variable-depth nearest neighbor searches) balances across workers.
const reduceChunk = 8

// parallelFor invokes fn(worker, i) once for every i in [0, n) using the
// given number of workers. Each invocation sees the id of the worker
// running it, so callers can give every worker a disjoint accumulator
// slot. fn must not assume any ordering between indices.
func parallelFor(n, workers int, fn func(worker, i int)) {
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || n <= reduceChunk {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for {
				start := int(next.Add(reduceChunk)) - reduceChunk
				if start >= n {
					return
				}
				end := min(start+reduceChunk, n)
				for i := start; i < end; i++ {
					fn(worker, i)
				}
			}
		}(w)
	}
	wg.Wait()
}

// blockAccumulator is one worker's partial cost and derivative blocks.
type blockAccumulator struct {
	cost    float64
	hTarget Mat6
	hSource Mat6
	hCross  Mat6
	bTarget Vec6
	bSource Vec6
}

// Derivatives carries the caller-supplied output blocks of Evaluate.
// All five blocks are present; callers wanting cost only pass a nil
// *Derivatives instead. The blocks are zeroed and overwritten on each
// Evaluate call that receives them.
type Derivatives struct {
	HTarget       *mat.Dense    // 6x6 target pose Hessian block
	HSource       *mat.Dense    // 6x6 source pose Hessian block
	HTargetSource *mat.Dense    // 6x6 target/source cross block
	BTarget       *mat.VecDense // 6x1 target bias
	BSource       *mat.VecDense // 6x1 source bias
}

// NewDerivatives allocates a zeroed block set.
func NewDerivatives() *Derivatives {
	return &Derivatives{
		HTarget:       mat.NewDense(6, 6, nil),
		HSource:       mat.NewDense(6, 6, nil),
		HTargetSource: mat.NewDense(6, 6, nil),
		BTarget:       mat.NewVecDense(6, nil),
		BSource:       mat.NewVecDense(6, nil),
	}
}

func (d *Derivatives) zero() {
	d.HTarget.Zero()
	d.HSource.Zero()
	d.HTargetSource.Zero()
	d.BTarget.Zero()
	d.BSource.Zero()
}

// mergeAccumulators sums the per-worker partial results. The scalar cost
// is summed the same way whether or not derivative outputs were
// requested, so the returned cost never depends on out being nil.
func mergeAccumulators(accs []blockAccumulator, out *Derivatives) float64 {
	cost := 0.0
	for i := range accs {
		cost += accs[i].cost
	}
	if out == nil {
		return cost
	}
	out.zero()
	for i := range accs {
		addMat6(out.HTarget, &accs[i].hTarget)
		addMat6(out.HSource, &accs[i].hSource)
		addMat6(out.HTargetSource, &accs[i].hCross)
		addVec6(out.BTarget, &accs[i].bTarget)
		addVec6(out.BSource, &accs[i].bSource)
	}
	return cost
}

func addMat6(dst *mat.Dense, m *Mat6) {
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			dst.Set(r, c, dst.At(r, c)+m[r*6+c])
		}
	}
}

func addVec6(dst *mat.VecDense, v *Vec6) {
	for i := 0; i < 6; i++ {
		dst.SetVec(i, dst.AtVec(i)+v[i])
	}
}
