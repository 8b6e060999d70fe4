package pnp

import (
	"context"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posest/logging"
	"go.viam.com/posest/rimage/transform"
)

// MinimalSampleSize is the number of correspondences drawn per RANSAC trial.
const MinimalSampleSize = 5

// Camera is what the estimator needs from a camera: its intrinsics, a settable extrinsic pose, and a
// working copy with the same projection and distortion, through which trial poses are scored.
type Camera interface {
	Intrinsics() *transform.PinholeCameraIntrinsics
	SetExtrinsic(extrinsic *mat.Dense) error
	WorkingCopy() *transform.Camera
}

// Projector maps world points to image coordinates.
type Projector interface {
	Project(pt r3.Vector) r2.Point
}

var (
	_ Camera    = (*transform.Camera)(nil)
	_ Projector = (*transform.Camera)(nil)
)

// Result is the outcome of a robust pose estimation.
type Result struct {
	Pose      *transform.CamPose
	Extrinsic *mat.Dense
	// Outliers holds the classification of every correspondence under Pose.
	Outliers    []bool
	InlierCount int
	// Iterations is the number of trials run and Budget the trial budget when the loop stopped.
	Iterations int
	Budget     int
	// Residual is the mean reprojection error of the consensus set under Pose.
	Residual float64
	Refined  bool
	// Residuals holds the reprojection error of every correspondence under Pose, NaN behind the camera.
	Residuals []float64
	Stats     ResidualStats
}

// ResidualStats summarizes the reprojection errors, in pixels, of the final inliers.
type ResidualStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Max    float64 `json:"max"`
}

// Estimator is a RANSAC camera pose estimator around a minimal pose solver.
type Estimator struct {
	cfg       Config
	newSolver SolverFactory
	sampler   Sampler
	clock     clock.Clock
	logger    logging.Logger
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithSolverFactory replaces the EPnP solver.
func WithSolverFactory(factory SolverFactory) Option {
	return func(e *Estimator) { e.newSolver = factory }
}

// WithSampler fixes the sampler used by every call, overriding Config.Seed.
func WithSampler(sampler Sampler) Option {
	return func(e *Estimator) { e.sampler = sampler }
}

// WithClock sets the clock used to seed sampling when Config.Seed is nil.
func WithClock(clk clock.Clock) Option {
	return func(e *Estimator) { e.clock = clk }
}

// NewEstimator returns an estimator for the given configuration. A nil logger uses the global logger.
func NewEstimator(cfg Config, logger logging.Logger, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}
	if cfg.Seed != nil {
		seed := *cfg.Seed
		cfg.Seed = &seed
	}
	e := &Estimator{
		cfg:       cfg,
		newSolver: NewEPnPSolver,
		clock:     clock.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate finds the extrinsic pose of cam with the largest consensus among the correspondences refs[i] <-> scene[i]
// and classifies every correspondence under the pose refitted to that consensus. It does not modify cam.
func (e *Estimator) Estimate(ctx context.Context, cam Camera, refs []r3.Vector, scene []r2.Point) (*Result, error) {
	intrinsics, err := checkInputs(cam, refs, scene)
	if err != nil {
		return nil, err
	}
	n := len(refs)
	working := cam.WorkingCopy()
	solver, err := e.newSolver(intrinsics)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create pose solver")
	}
	sampler := e.sampler
	if sampler == nil {
		seed := SeedFromClock(e.clock)
		if e.cfg.Seed != nil {
			seed = *e.cfg.Seed
		}
		sampler = NewUniformSampler(seed)
	}

	// the solver works on the ideal pinhole image, scoring on the observed one
	undistorted := make([]r2.Point, n)
	for i, pt := range scene {
		undistorted[i] = working.UndistortPixel(pt)
	}

	sample := make([]int, MinimalSampleSize)
	trial := make([]Correspondence, MinimalSampleSize)
	mask := make([]bool, n)
	bestMask := make([]bool, n)
	bestCount, iter, budget := 0, 0, e.cfg.MaxIteration
	for iter < budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sampler.Sample(sample, n); err != nil {
			return nil, errors.Wrap(err, "cannot draw a minimal sample")
		}
		for j, idx := range sample {
			trial[j] = Correspondence{Reference: refs[idx], Scene: undistorted[idx]}
		}
		count := 0
		if pose, _, err := solver.Solve(trial); err == nil {
			if err := working.SetExtrinsic(pose.Extrinsic()); err == nil {
				count = classify(working, refs, scene, e.cfg.ReprojectionError, mask, nil)
			}
		}
		if count > bestCount {
			bestCount = count
			copy(bestMask, mask)
			budget = AdaptiveIterations(e.cfg.Confidence, float64(n-count)/float64(n), MinimalSampleSize, budget)
			e.logger.Debugw("consensus improved", "iteration", iter, "inliers", count, "budget", budget)
		}
		iter++
	}
	if bestCount < MinimalSampleSize {
		return nil, errors.Wrapf(ErrDegenerateEstimate, "best of %d trials kept %d of %d correspondences",
			iter, bestCount, n)
	}

	inliers := make([]Correspondence, 0, bestCount)
	for i, in := range bestMask {
		if in {
			inliers = append(inliers, Correspondence{Reference: refs[i], Scene: undistorted[i]})
		}
	}
	pose, residual, err := solver.Solve(inliers)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot refit pose to %d inliers", len(inliers))
	}
	refined := false
	if e.cfg.RefineFinal {
		refinedPose, refinedResidual, err := Refine(intrinsics, pose, inliers)
		switch {
		case err != nil:
			e.logger.Debugw("pose refinement failed", "error", err)
		case refinedResidual < residual:
			pose, residual, refined = refinedPose, refinedResidual, true
		}
	}
	extrinsic := pose.Extrinsic()
	if err := working.SetExtrinsic(extrinsic); err != nil {
		return nil, err
	}

	errs := make([]float64, n)
	final := make([]bool, n)
	count := classify(working, refs, scene, e.cfg.ReprojectionError, final, errs)
	outliers := make([]bool, n)
	inlierErrs := make([]float64, 0, count)
	for i, in := range final {
		outliers[i] = !in
		if in {
			inlierErrs = append(inlierErrs, errs[i])
		}
	}
	e.logger.Debugw("pose refit", "trials", iter, "consensus", bestCount, "inliers", count,
		"residual", residual, "refined", refined)

	return &Result{
		Pose:        pose,
		Extrinsic:   extrinsic,
		Outliers:    outliers,
		InlierCount: count,
		Iterations:  iter,
		Budget:      budget,
		Residual:    residual,
		Refined:     refined,
		Residuals:   errs,
		Stats:       summarize(inlierErrs),
	}, nil
}

// Calculate runs Estimate on the correspondences of store. On success it installs the pose into cam and
// writes every outlier flag of store; on failure neither is touched.
func (e *Estimator) Calculate(ctx context.Context, cam Camera, store CorrespondenceStore) (*Result, error) {
	if store == nil {
		return nil, errors.Wrap(ErrInsufficientPoints, "no correspondences")
	}
	refs := make([]r3.Vector, store.NumReferences())
	for i := range refs {
		refs[i] = store.Reference(i)
	}
	scene := make([]r2.Point, store.NumScenes())
	for i := range scene {
		scene[i] = store.Scene(i)
	}
	res, err := e.Estimate(ctx, cam, refs, scene)
	if err != nil {
		return nil, err
	}
	if err := cam.SetExtrinsic(res.Extrinsic); err != nil {
		return nil, errors.Wrap(err, "cannot install estimated pose")
	}
	for i, outlier := range res.Outliers {
		store.SetOutlier(i, outlier)
	}
	return res, nil
}

// ClassifyOutliers projects every reference point through cam and flags the correspondences whose
// reprojection error is not strictly below threshold.
func ClassifyOutliers(cam Projector, refs []r3.Vector, scene []r2.Point, threshold float64) []bool {
	outliers := make([]bool, len(refs))
	classify(cam, refs, scene, threshold, outliers, nil)
	for i := range outliers {
		outliers[i] = !outliers[i]
	}
	return outliers
}

// classify marks in mask the correspondences whose reprojection error through cam is below threshold and
// returns their number. Errors are stored in errs when it is not nil. Points that do not project are never
// inliers.
func classify(cam Projector, refs []r3.Vector, scene []r2.Point, threshold float64, mask []bool, errs []float64) int {
	count := 0
	for i := range refs {
		d := cam.Project(refs[i]).Sub(scene[i]).Norm()
		if errs != nil {
			errs[i] = d
		}
		mask[i] = d < threshold
		if mask[i] {
			count++
		}
	}
	return count
}

func checkInputs(cam Camera, refs []r3.Vector, scene []r2.Point) (*transform.PinholeCameraIntrinsics, error) {
	if cam == nil {
		return nil, ErrNoCamera
	}
	intrinsics := cam.Intrinsics()
	if err := intrinsics.CheckValid(); err != nil {
		return nil, errors.Wrap(ErrNoCamera, err.Error())
	}
	if len(refs) != len(scene) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d reference points, %d scene points", len(refs), len(scene))
	}
	if len(refs) < MinimalSampleSize {
		return nil, errors.Wrapf(ErrInsufficientPoints, "need at least %d correspondences, got %d",
			MinimalSampleSize, len(refs))
	}
	return intrinsics, nil
}

func summarize(errs []float64) ResidualStats {
	var rs ResidualStats
	if len(errs) == 0 {
		return rs
	}
	data := stats.Float64Data(errs)
	rs.Mean, _ = stats.Mean(data)
	rs.Median, _ = stats.Median(data)
	rs.StdDev, _ = stats.StandardDeviation(data)
	rs.Max, _ = stats.Max(data)
	if math.IsNaN(rs.StdDev) {
		rs.StdDev = 0
	}
	return rs
}
