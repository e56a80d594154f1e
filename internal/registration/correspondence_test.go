package registration

import (
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// countingIndex wraps a NearestNeighbor and counts Search invocations, so
// tests can observe whether a refresh actually ran queries.
type countingIndex struct {
	inner NearestNeighbor
	calls atomic.Int64
}

func (c *countingIndex) Search(query Vec4, k int, maxSqDist float64, indices []int, sqDists []float64) int {
	c.calls.Add(1)
	return c.inner.Search(query, k, maxSqDist, indices, sqDists)
}

func gatedGICP(t *testing.T, rotTol, transTol float64) (*GICPEvaluator, *countingIndex, int) {
	t.Helper()
	target := withIdentityCovs(latticeCloud(6, 6, 0.5))
	source := cloneCloud(target)
	idx := &countingIndex{inner: NewVoxelIndex(target, 1.0)}
	params := DefaultGICPParams()
	params.CorrespondenceUpdateToleranceRot = rotTol
	params.CorrespondenceUpdateToleranceTrans = transTol
	ev, err := NewGICPEvaluator(target, source, idx, params)
	if err != nil {
		t.Fatalf("NewGICPEvaluator: %v", err)
	}
	return ev, idx, source.Size()
}

func TestCorrespondenceGating_SkipsSmallMotion(t *testing.T) {
	ev, idx, n := gatedGICP(t, 0.1, 0.1)

	ev.Refresh(Identity())
	if got := idx.calls.Load(); got != int64(n) {
		t.Fatalf("first refresh ran %d searches, want %d", got, n)
	}
	before := append([]int32(nil), ev.cache.indices...)

	// Motion below both tolerances: no new searches, indices unchanged.
	ev.Refresh(Translation(0.05, 0, 0))
	if got := idx.calls.Load(); got != int64(n) {
		t.Errorf("gated refresh ran searches: %d total, want %d", got, n)
	}
	if diff := cmp.Diff(before, ev.cache.indices); diff != "" {
		t.Errorf("correspondences changed under gated refresh:\n%s", diff)
	}

	// Motion beyond the translation tolerance: full search pass.
	ev.Refresh(Translation(0.15, 0, 0))
	if got := idx.calls.Load(); got != int64(2*n) {
		t.Errorf("refresh beyond tolerance ran %d searches total, want %d", got, 2*n)
	}
}

func TestCorrespondenceGating_DisabledTolerancesAlwaysSearch(t *testing.T) {
	ev, idx, n := gatedGICP(t, 0, 0)

	ev.Refresh(Identity())
	ev.Refresh(Identity())
	if got := idx.calls.Load(); got != int64(2*n) {
		t.Errorf("%d searches with gating disabled, want %d", got, 2*n)
	}
}

// The tolerance reference pose must only advance when a search actually
// runs. Three refreshes with per-step motion below tolerance but total
// motion beyond it must trigger a second search pass; an unconditionally
// advancing reference would skip it.
func TestCorrespondenceGating_ReferenceAdvancesOnlyOnRefresh(t *testing.T) {
	ev, idx, n := gatedGICP(t, 0.1, 0.1)

	ev.Refresh(Identity())
	ev.Refresh(Translation(0.08, 0, 0)) // skipped: 0.08 < 0.1
	if got := idx.calls.Load(); got != int64(n) {
		t.Fatalf("second refresh was not gated: %d searches", got)
	}
	ev.Refresh(Translation(0.15, 0, 0)) // 0.15 from the reference, not 0.07
	if got := idx.calls.Load(); got != int64(2*n) {
		t.Errorf("accumulated motion did not force a refresh: %d searches total, want %d", got, 2*n)
	}
}

func TestCorrespondenceGating_PhotometricSameRule(t *testing.T) {
	target, source := planarPhotometricClouds(6, 0.5)
	idx := &countingIndex{inner: NewVoxelIndex(target, 1.0)}
	params := DefaultPhotometricParams()
	params.CorrespondenceUpdateToleranceRot = 0.1
	params.CorrespondenceUpdateToleranceTrans = 0.1
	ev, err := NewPhotometricEvaluator(target, source, target, idx, params)
	if err != nil {
		t.Fatalf("NewPhotometricEvaluator: %v", err)
	}
	n := int64(source.Size())

	ev.Refresh(Identity())
	ev.Refresh(Translation(0.08, 0, 0)) // gated
	if got := idx.calls.Load(); got != n {
		t.Fatalf("photometric refresh was not gated: %d searches", got)
	}
	ev.Refresh(Translation(0.15, 0, 0)) // beyond tolerance from the reference
	if got := idx.calls.Load(); got != 2*n {
		t.Errorf("photometric reference pose advanced without a refresh: %d searches total, want %d", got, 2*n)
	}
}

func TestCorrespondenceCache_SizeMismatchForcesRefresh(t *testing.T) {
	c := &correspondenceCache{rotTol: 1, transTol: 1}
	if !c.shouldRefresh(Identity(), 5) {
		t.Error("empty cache did not demand a refresh")
	}
	c.resize(5)
	c.last = Identity()
	if c.shouldRefresh(Identity(), 5) {
		t.Error("valid cache with zero motion demanded a refresh")
	}
	if !c.shouldRefresh(Identity(), 7) {
		t.Error("size change did not demand a refresh")
	}
}
