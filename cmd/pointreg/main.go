// Command pointreg aligns a source point cloud to a target point cloud
// with Gauss-Newton pose refinement over one of the two matching cost
// policies (GICP or photometric). It reads ASCII PCD files, reports the
// refined pose and cost as JSON, and can optionally persist the run to a
// sqlite database and write a convergence plot.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/banshee-data/pointreg/internal/pcd"
	"github.com/banshee-data/pointreg/internal/registration"
	"github.com/banshee-data/pointreg/internal/rundb"
)

// Config holds the resolved run configuration.
type Config struct {
	TargetFile string
	SourceFile string
	Policy     string
	Workers    int
	MaxDist    float64
	RotTol     float64
	TransTol   float64
	PhotoWt    float64
	Iterations int
	GradientK  int
	OutputJSON string
	DBPath     string
	PlotPath   string
	Verbose    bool
}

// overrides is an optional JSON parameter file; nil fields keep the flag
// or default value.
type overrides struct {
	Workers              *int     `json:"workers,omitempty"`
	MaxDist              *float64 `json:"max_correspondence_dist,omitempty"`
	RotationTolerance    *float64 `json:"rotation_tolerance,omitempty"`
	TranslationTolerance *float64 `json:"translation_tolerance,omitempty"`
	PhotometricWeight    *float64 `json:"photometric_weight,omitempty"`
	MaxIterations        *int     `json:"max_iterations,omitempty"`
	GradientNeighbors    *int     `json:"gradient_neighbors,omitempty"`
}

// Result is the JSON report of one run.
type Result struct {
	Policy       string      `json:"policy"`
	TargetFile   string      `json:"target_file"`
	SourceFile   string      `json:"source_file"`
	TargetPoints int         `json:"target_points"`
	SourcePoints int         `json:"source_points"`
	InitialCost  float64     `json:"initial_cost"`
	FinalCost    float64     `json:"final_cost"`
	Iterations   int         `json:"iterations"`
	Converged    bool        `json:"converged"`
	DurationMs   int64       `json:"duration_ms"`
	Pose         [16]float64 `json:"pose"`
	CostHistory  []float64   `json:"cost_history,omitempty"`
}

func main() {
	cfg := Config{}
	var paramsFile string
	flag.StringVar(&cfg.TargetFile, "target", "", "target cloud PCD file (required)")
	flag.StringVar(&cfg.SourceFile, "source", "", "source cloud PCD file (required)")
	flag.StringVar(&cfg.Policy, "policy", "gicp", "cost policy: gicp or photometric")
	flag.IntVar(&cfg.Workers, "workers", 1, "worker count for parallel evaluation")
	flag.Float64Var(&cfg.MaxDist, "max-dist", 1.0, "max correspondence distance (meters)")
	flag.Float64Var(&cfg.RotTol, "rot-tol", 0, "correspondence update rotation tolerance (radians, 0 disables gating)")
	flag.Float64Var(&cfg.TransTol, "trans-tol", 0, "correspondence update translation tolerance (meters, 0 disables gating)")
	flag.Float64Var(&cfg.PhotoWt, "photo-weight", 1.0, "photometric term weight")
	flag.IntVar(&cfg.Iterations, "iters", 30, "max Gauss-Newton iterations")
	flag.IntVar(&cfg.GradientK, "gradient-k", 10, "neighbor count for intensity gradient estimation")
	flag.StringVar(&paramsFile, "params", "", "optional JSON parameter override file")
	flag.StringVar(&cfg.OutputJSON, "out", "", "write result JSON here instead of stdout")
	flag.StringVar(&cfg.DBPath, "db", "", "optional sqlite database to record the run")
	flag.StringVar(&cfg.PlotPath, "plot", "", "optional PNG path for the convergence plot")
	flag.BoolVar(&cfg.Verbose, "v", false, "verbose logging")
	flag.Parse()

	if cfg.TargetFile == "" || cfg.SourceFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if paramsFile != "" {
		if err := applyOverrides(paramsFile, &cfg); err != nil {
			log.Fatalf("[pointreg] loading params %s: %v", paramsFile, err)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatalf("[pointreg] %v", err)
	}
}

func applyOverrides(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov overrides
	if err := json.Unmarshal(data, &ov); err != nil {
		return err
	}
	if ov.Workers != nil {
		cfg.Workers = *ov.Workers
	}
	if ov.MaxDist != nil {
		cfg.MaxDist = *ov.MaxDist
	}
	if ov.RotationTolerance != nil {
		cfg.RotTol = *ov.RotationTolerance
	}
	if ov.TranslationTolerance != nil {
		cfg.TransTol = *ov.TranslationTolerance
	}
	if ov.PhotometricWeight != nil {
		cfg.PhotoWt = *ov.PhotometricWeight
	}
	if ov.MaxIterations != nil {
		cfg.Iterations = *ov.MaxIterations
	}
	if ov.GradientNeighbors != nil {
		cfg.GradientK = *ov.GradientNeighbors
	}
	return nil
}

func run(cfg Config) error {
	target, err := pcd.Read(cfg.TargetFile)
	if err != nil {
		return fmt.Errorf("reading target: %w", err)
	}
	source, err := pcd.Read(cfg.SourceFile)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	if cfg.Verbose {
		log.Printf("[pointreg] target=%d points source=%d points", target.Size(), source.Size())
	}

	maxSq := cfg.MaxDist * cfg.MaxDist
	tree := registration.NewVoxelIndex(target, math.Max(cfg.MaxDist, 1e-6))

	ev, err := buildEvaluator(cfg, target, source, tree, maxSq)
	if err != nil {
		return err
	}

	refineParams := registration.DefaultRefineParams()
	refineParams.MaxIterations = cfg.Iterations

	start := time.Now()
	res, err := registration.RefineSourcePose(ev, registration.Identity(), refineParams)
	if err != nil {
		return fmt.Errorf("refining pose: %w", err)
	}
	elapsed := time.Since(start)

	result := Result{
		Policy:       cfg.Policy,
		TargetFile:   cfg.TargetFile,
		SourceFile:   cfg.SourceFile,
		TargetPoints: target.Size(),
		SourcePoints: source.Size(),
		InitialCost:  res.InitialCost,
		FinalCost:    res.FinalCost,
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		DurationMs:   elapsed.Milliseconds(),
		Pose:         [16]float64(res.Delta.Matrix()),
		CostHistory:  res.CostHistory,
	}

	if err := emitResult(cfg, result); err != nil {
		return err
	}
	if cfg.DBPath != "" {
		if err := recordRun(cfg, result); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
	}
	if cfg.PlotPath != "" {
		if err := plotConvergence(cfg.PlotPath, res.CostHistory); err != nil {
			return fmt.Errorf("writing convergence plot: %w", err)
		}
		if cfg.Verbose {
			log.Printf("[pointreg] wrote convergence plot to %s", cfg.PlotPath)
		}
	}
	return nil
}

func buildEvaluator(cfg Config, target, source *registration.Cloud, tree registration.NearestNeighbor, maxSq float64) (registration.Evaluator, error) {
	switch cfg.Policy {
	case "gicp":
		// This tool does not estimate covariances; inputs without them
		// fall back to identity covariances, which reduces GICP to
		// point-to-point ICP.
		ensureIdentityCovs(target)
		ensureIdentityCovs(source)
		params := registration.GICPParams{
			NumWorkers:                         cfg.Workers,
			MaxCorrespondenceDistSq:            maxSq,
			CorrespondenceUpdateToleranceRot:   cfg.RotTol,
			CorrespondenceUpdateToleranceTrans: cfg.TransTol,
		}
		return registration.NewGICPEvaluator(target, source, tree, params)

	case "photometric":
		if !target.HasNormals() {
			log.Printf("[pointreg] target has no normals; estimating from %d-neighborhoods", cfg.GradientK)
			normals, err := registration.EstimateNormals(target, tree, cfg.GradientK, maxSq, cfg.Workers)
			if err != nil {
				return nil, fmt.Errorf("estimating normals: %w", err)
			}
			target.Normals = normals
		}
		grads, err := registration.EstimateIntensityGradients(target, tree, cfg.GradientK, maxSq, cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("estimating intensity gradients: %w", err)
		}
		target.Gradients = grads
		params := registration.PhotometricParams{
			NumWorkers:                         cfg.Workers,
			MaxCorrespondenceDistSq:            maxSq,
			Weight:                             cfg.PhotoWt,
			CorrespondenceUpdateToleranceRot:   cfg.RotTol,
			CorrespondenceUpdateToleranceTrans: cfg.TransTol,
		}
		return registration.NewPhotometricEvaluator(target, source, target, tree, params)

	default:
		return nil, fmt.Errorf("unknown policy %q (want gicp or photometric)", cfg.Policy)
	}
}

func ensureIdentityCovs(c *registration.Cloud) {
	if c.HasCovs() {
		return
	}
	log.Printf("[pointreg] cloud has no covariances; using identity (point-to-point)")
	covs := make([]registration.Mat4, c.Size())
	for i := range covs {
		covs[i] = registration.Mat4{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 0,
		}
	}
	c.Covs = covs
}

func emitResult(cfg Config, result Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if cfg.OutputJSON == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(cfg.OutputJSON, data, 0644)
}

func recordRun(cfg Config, result Result) error {
	db, err := rundb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pose, err := json.Marshal(result.Pose)
	if err != nil {
		return err
	}
	run := rundb.Run{
		Policy:       result.Policy,
		TargetFile:   result.TargetFile,
		SourceFile:   result.SourceFile,
		TargetPoints: result.TargetPoints,
		SourcePoints: result.SourcePoints,
		InitialCost:  result.InitialCost,
		FinalCost:    result.FinalCost,
		Iterations:   result.Iterations,
		Converged:    result.Converged,
		Pose:         string(pose),
	}
	if err := db.RecordRun(&run); err != nil {
		return err
	}
	if cfg.Verbose {
		log.Printf("[pointreg] recorded run %s in %s", run.RunID, cfg.DBPath)
	}
	return nil
}
