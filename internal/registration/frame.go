package registration

import "fmt"

// Frame is uniform capability-based access to a point cloud's per-point
// attributes. Implementations must be safe for concurrent readers; the
// evaluators never write through this interface and assume the attributes
// are immutable while an evaluator references the frame.
type Frame interface {
	Size() int

	HasPoints() bool
	HasNormals() bool
	HasCovs() bool
	HasIntensities() bool

	// Point returns the i-th point as a homogeneous vector (w=1).
	Point(i int) Vec4
	// Normal returns the i-th unit normal as a direction (w=0).
	Normal(i int) Vec4
	// Cov returns the i-th 4x4 covariance in the homogeneous embedding
	// (fourth row and column zero).
	Cov(i int) Mat4
	// Intensity returns the i-th scalar intensity.
	Intensity(i int) float64
}

// IntensityGradients supplies per-point intensity gradients aligned to a
// target frame's indices. The gradient is a direction (w=0) tangent to the
// surface at the corresponding point.
type IntensityGradients interface {
	// HasIntensityGradients reports whether gradients exist for every
	// index in [0, n).
	HasIntensityGradients(n int) bool
	IntensityGradient(i int) Vec4
}

// Cloud is the in-memory Frame implementation. Optional attribute slices
// are either nil or exactly Size() long.
type Cloud struct {
	Points      []Vec4
	Normals     []Vec4
	Covs        []Mat4
	Intensities []float64
	Gradients   []Vec4
}

func (c *Cloud) Size() int        { return len(c.Points) }
func (c *Cloud) HasPoints() bool  { return len(c.Points) > 0 }
func (c *Cloud) HasNormals() bool { return len(c.Normals) == len(c.Points) && len(c.Points) > 0 }
func (c *Cloud) HasCovs() bool    { return len(c.Covs) == len(c.Points) && len(c.Points) > 0 }
func (c *Cloud) HasIntensities() bool {
	return len(c.Intensities) == len(c.Points) && len(c.Points) > 0
}

func (c *Cloud) Point(i int) Vec4             { return c.Points[i] }
func (c *Cloud) Normal(i int) Vec4            { return c.Normals[i] }
func (c *Cloud) Cov(i int) Mat4               { return c.Covs[i] }
func (c *Cloud) Intensity(i int) float64      { return c.Intensities[i] }
func (c *Cloud) IntensityGradient(i int) Vec4 { return c.Gradients[i] }

func (c *Cloud) HasIntensityGradients(n int) bool { return len(c.Gradients) >= n }

var (
	_ Frame              = (*Cloud)(nil)
	_ IntensityGradients = (*Cloud)(nil)
)

// MissingAttributeError reports a required per-point attribute absent from
// a frame at evaluator construction time.
type MissingAttributeError struct {
	Frame     string // "target" or "source"
	Attribute string // e.g. "points", "covs", "normals", "intensities"
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%s frame missing required attribute %q", e.Frame, e.Attribute)
}

// requireAttrs checks a list of (predicate, attribute) pairs on a frame.
func requireAttrs(frameName string, checks ...attrCheck) error {
	for _, c := range checks {
		if !c.ok {
			return &MissingAttributeError{Frame: frameName, Attribute: c.name}
		}
	}
	return nil
}

type attrCheck struct {
	ok   bool
	name string
}
