package registration

import "math"

// NearestNeighbor answers bounded k-nearest-neighbor queries over a target
// point cloud. Search writes up to k neighbor indices and squared
// distances into the provided slices (len >= k) and returns how many were
// found. Only results with squared distance below maxSqDist are reported;
// callers re-check the bound regardless. Implementations must be safe for
// concurrent readers.
//
// The query is a homogeneous 4-vector; the fourth slot may carry a
// non-geometric payload (the photometric policy stores intensity there).
// Each implementation decides which components it indexes on.
type NearestNeighbor interface {
	Search(query Vec4, k int, maxSqDist float64, indices []int, sqDists []float64) int
}

// VoxelIndex is a regular-grid nearest neighbor index over the geometric
// (x,y,z) components of a frame's points. Queries scan the 3x3x3 cell
// neighborhood of the query point, so results are complete only for query
// radii up to the cell size; construct it with a cell size at least the
// maximum correspondence distance.
type VoxelIndex struct {
	cellSize float64
	cells    map[voxelKey][]int32
	points   []Vec4
}

type voxelKey struct{ x, y, z int32 }

// NewVoxelIndex builds the index over all points of frame. cellSize must
// be positive.
func NewVoxelIndex(frame Frame, cellSize float64) *VoxelIndex {
	n := frame.Size()
	vi := &VoxelIndex{
		cellSize: cellSize,
		cells:    make(map[voxelKey][]int32, n/4+1),
		points:   make([]Vec4, n),
	}
	for i := 0; i < n; i++ {
		p := frame.Point(i)
		vi.points[i] = p
		k := vi.key(p)
		vi.cells[k] = append(vi.cells[k], int32(i))
	}
	return vi
}

func (vi *VoxelIndex) key(p Vec4) voxelKey {
	return voxelKey{
		x: int32(math.Floor(p[0] / vi.cellSize)),
		y: int32(math.Floor(p[1] / vi.cellSize)),
		z: int32(math.Floor(p[2] / vi.cellSize)),
	}
}

// Search implements NearestNeighbor. Distances are measured over the
// geometric components only; the fourth query slot is ignored.
func (vi *VoxelIndex) Search(query Vec4, k int, maxSqDist float64, indices []int, sqDists []float64) int {
	if k <= 0 || len(vi.points) == 0 {
		return 0
	}
	base := vi.key(query)
	found := 0
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				cell := vi.cells[voxelKey{base.x + dx, base.y + dy, base.z + dz}]
				for _, idx := range cell {
					p := vi.points[idx]
					ddx := p[0] - query[0]
					ddy := p[1] - query[1]
					ddz := p[2] - query[2]
					sq := ddx*ddx + ddy*ddy + ddz*ddz
					if sq >= maxSqDist {
						continue
					}
					// Insertion sort into the best-k result set.
					pos := found
					if pos == k {
						if sq >= sqDists[k-1] {
							continue
						}
						pos = k - 1
					} else {
						found++
					}
					for pos > 0 && sqDists[pos-1] > sq {
						sqDists[pos] = sqDists[pos-1]
						indices[pos] = indices[pos-1]
						pos--
					}
					sqDists[pos] = sq
					indices[pos] = int(idx)
				}
			}
		}
	}
	return found
}

var _ NearestNeighbor = (*VoxelIndex)(nil)
