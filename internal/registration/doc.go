// Package registration computes least-squares matching costs and their
// first/second-order derivative blocks for a pair of point clouds related
// by a rigid transform. It is the numerical core consumed by a nonlinear
// pose optimizer: given a candidate transform, each evaluator returns a
// scalar cost and, on request, 6x6 Hessian and 6x1 bias blocks for the
// target pose, the source pose, and their cross term.
//
// Two cost policies are provided. GICPEvaluator implements a
// distribution-to-distribution cost where each residual is weighted by the
// inverse of the combined target/source covariance (Mahalanobis weighting).
// PhotometricEvaluator implements a color-consistency cost that projects
// the transformed source point onto the target point's tangent plane and
// compares intensities through an intensity-gradient linearization.
//
// Both evaluators maintain an incremental correspondence cache: nearest
// neighbor lookups are skipped while the accumulated pose change stays
// below configurable rotation/translation tolerances. Cost and derivative
// accumulation runs as a worker-parallel map with per-worker partial
// blocks merged associatively at the end, so results are independent of
// worker count up to floating-point summation order.
package registration
