package registration

import (
	"math/rand"
	"sort"
	"testing"
)

// bruteKNN is the reference implementation: full scan, bounded, sorted by
// squared distance.
func bruteKNN(points []Vec4, query Vec4, k int, maxSqDist float64) ([]int, []float64) {
	type cand struct {
		idx int
		sq  float64
	}
	var cands []cand
	for i, p := range points {
		dx := p[0] - query[0]
		dy := p[1] - query[1]
		dz := p[2] - query[2]
		sq := dx*dx + dy*dy + dz*dz
		if sq < maxSqDist {
			cands = append(cands, cand{i, sq})
		}
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].sq < cands[b].sq })
	if len(cands) > k {
		cands = cands[:k]
	}
	idx := make([]int, len(cands))
	sq := make([]float64, len(cands))
	for i, c := range cands {
		idx[i] = c.idx
		sq[i] = c.sq
	}
	return idx, sq
}

func TestVoxelIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cloud := &Cloud{}
	for i := 0; i < 300; i++ {
		cloud.Points = append(cloud.Points, PointVec(
			rng.Float64()*4-2,
			rng.Float64()*4-2,
			rng.Float64()*4-2,
		))
	}

	const cell = 0.5
	const maxSq = cell * cell // query radius must not exceed the cell size
	vi := NewVoxelIndex(cloud, cell)

	for q := 0; q < 100; q++ {
		query := PointVec(rng.Float64()*4-2, rng.Float64()*4-2, rng.Float64()*4-2)
		for _, k := range []int{1, 3, 8} {
			idx := make([]int, k)
			sq := make([]float64, k)
			found := vi.Search(query, k, maxSq, idx, sq)

			wantIdx, wantSq := bruteKNN(cloud.Points, query, k, maxSq)
			if found != len(wantIdx) {
				t.Fatalf("query %d k=%d: found %d, want %d", q, k, found, len(wantIdx))
			}
			for i := 0; i < found; i++ {
				if idx[i] != wantIdx[i] || sq[i] != wantSq[i] {
					t.Fatalf("query %d k=%d result %d: got (%d, %v), want (%d, %v)",
						q, k, i, idx[i], sq[i], wantIdx[i], wantSq[i])
				}
			}
		}
	}
}

func TestVoxelIndex_ResultsSortedAndBounded(t *testing.T) {
	cloud := &Cloud{Points: []Vec4{
		PointVec(0, 0, 0),
		PointVec(0.1, 0, 0),
		PointVec(0.2, 0, 0),
		PointVec(5, 5, 5),
	}}
	vi := NewVoxelIndex(cloud, 0.5)

	idx := make([]int, 4)
	sq := make([]float64, 4)
	found := vi.Search(PointVec(0, 0, 0), 4, 0.25, idx, sq)
	if found != 3 {
		t.Fatalf("found = %d, want 3 (far point excluded)", found)
	}
	for i := 1; i < found; i++ {
		if sq[i] < sq[i-1] {
			t.Fatalf("squared distances not ascending: %v", sq[:found])
		}
	}
	if idx[0] != 0 {
		t.Errorf("nearest = %d, want 0", idx[0])
	}
}

func TestVoxelIndex_ZeroMaxDistance(t *testing.T) {
	cloud := &Cloud{Points: []Vec4{PointVec(0, 0, 0)}}
	vi := NewVoxelIndex(cloud, 1.0)

	idx := make([]int, 1)
	sq := make([]float64, 1)
	if found := vi.Search(PointVec(0, 0, 0), 1, 0, idx, sq); found != 0 {
		t.Fatalf("found = %d with zero bound, want 0", found)
	}
}
