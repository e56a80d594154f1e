package registration

// noCorrespondence marks a source point with no valid target match.
const noCorrespondence int32 = -1

// correspondenceCache tracks, per source point, the index of its nearest
// target point under the transform most recently used for a refresh. The
// cache is valid when len(indices) matches the source size; a length
// mismatch is the rebuild signal.
//
// Refreshes may be skipped while the relative motion since the last real
// refresh stays below both the rotation and translation tolerances. With
// both tolerances zero the gate is disabled and every refresh recomputes.
type correspondenceCache struct {
	rotTol   float64
	transTol float64

	indices []int32
	last    Isometry // delta at the last performed refresh
}

// shouldRefresh reports whether correspondences must be recomputed for the
// given transform and source size.
func (c *correspondenceCache) shouldRefresh(delta Isometry, n int) bool {
	if len(c.indices) != n {
		return true
	}
	if c.rotTol <= 0 && c.transTol <= 0 {
		return true
	}
	rel := delta.Inverse().Compose(c.last)
	if rel.RotationAngle() < c.rotTol && rel.TranslationNorm() < c.transTol {
		return false
	}
	return true
}

// resize ensures the index array matches the source size. Existing
// entries are discarded on size change.
func (c *correspondenceCache) resize(n int) {
	if len(c.indices) != n {
		c.indices = make([]int32, n)
	}
}
