package cli

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/posest/logging"
	"go.viam.com/posest/rimage/transform"
	"go.viam.com/posest/vision/pnp"
)

type benchmarkOptions struct {
	Trials    int
	Workers   int
	Seed      uint64
	Synthetic pnp.SyntheticConfig
	Estimator pnp.Config
}

type trialResult struct {
	Seed             uint64
	Failed           bool
	RotationError    float64
	TranslationError float64
	InlierCount      int
	// OutlierRecall is the fraction of generated outliers the estimator rejected.
	OutlierRecall float64
	Iterations    int
	Residual      float64
}

// BenchmarkAction estimates the pose of many synthetic datasets and summarizes the errors against
// their ground truth.
func BenchmarkAction(c *cli.Context) error {
	logger, closeLogger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer closeLogger()

	opts := benchmarkOptions{
		Trials:    c.Int(flagTrials),
		Workers:   c.Int(flagWorkers),
		Seed:      c.Uint64(flagSeed),
		Synthetic: pnp.NewDefaultSyntheticConfig(c.Int(flagPoints), c.Int(flagOutliers)),
		Estimator: *pnp.NewDefaultConfig(),
	}
	opts.Synthetic.NoiseSigma = c.Float64(flagNoise)
	opts.Synthetic.Planar = c.Bool(flagPlanar)
	opts.Estimator.RefineFinal = c.Bool(flagRefine)
	if c.IsSet(flagReprojectionError) {
		opts.Estimator.ReprojectionError = c.Float64(flagReprojectionError)
	}

	results, err := runBenchmark(c.Context, opts)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.Debugw("trial", "seed", r.Seed, "failed", r.Failed, "inliers", r.InlierCount,
			"iterations", r.Iterations, "rotation_error", r.RotationError)
	}
	printf(c.App.Writer, "%s", renderBenchmark(results))
	return nil
}

// runBenchmark runs the trials on up to opts.Workers goroutines. Trial i uses seed opts.Seed+i for both
// the data and the sampler, so results do not depend on scheduling.
func runBenchmark(ctx context.Context, opts benchmarkOptions) ([]trialResult, error) {
	if opts.Trials <= 0 {
		return nil, errors.Errorf("trials must be positive, got %d", opts.Trials)
	}
	if opts.Workers <= 0 {
		return nil, errors.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if err := opts.Estimator.Validate(); err != nil {
		return nil, err
	}

	results := make([]trialResult, opts.Trials)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Workers)
	for i := range results {
		seed := opts.Seed + uint64(i)
		group.Go(func() error {
			r, err := runTrial(ctx, opts, seed)
			if err != nil {
				return errors.Wrapf(err, "trial with seed %d", seed)
			}
			results[i] = r
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runTrial(ctx context.Context, opts benchmarkOptions, seed uint64) (trialResult, error) {
	r := trialResult{Seed: seed}
	data, err := pnp.GenerateSynthetic(opts.Synthetic, rand.NewPCG(seed, seed))
	if err != nil {
		return r, err
	}
	cam, err := data.Dataset.Camera()
	if err != nil {
		return r, err
	}
	cfg := opts.Estimator
	cfg.Seed = &seed
	estimator, err := pnp.NewEstimator(cfg, logging.NewBlankLogger("benchmark"))
	if err != nil {
		return r, err
	}
	refs, scene := data.Dataset.Points()
	res, err := estimator.Estimate(ctx, cam, refs, scene)
	if errors.Is(err, pnp.ErrDegenerateEstimate) {
		r.Failed = true
		return r, nil
	}
	if err != nil {
		return r, err
	}

	r.RotationError = transform.RotationAngleBetween(res.Pose, data.Pose)
	r.TranslationError = transform.TranslationDistance(res.Pose, data.Pose)
	r.InlierCount = res.InlierCount
	r.Iterations = res.Iterations
	r.Residual = res.Residual
	r.OutlierRecall = 1
	if len(data.OutlierIndices) > 0 {
		rejected := lo.CountBy(data.OutlierIndices, func(idx int) bool { return res.Outliers[idx] })
		r.OutlierRecall = float64(rejected) / float64(len(data.OutlierIndices))
	}
	return r, nil
}

func renderBenchmark(results []trialResult) string {
	solved := lo.Filter(results, func(r trialResult, _ int) bool { return !r.Failed })

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Benchmark: %d/%d trials solved", len(solved), len(results)))
	t.AppendHeader(table.Row{"Metric", "Mean", "Median", "Max"})
	if len(solved) == 0 {
		return t.Render()
	}
	metric := func(name string, get func(trialResult) float64) {
		data := stats.Float64Data(lo.Map(solved, func(r trialResult, _ int) float64 { return get(r) }))
		mean, _ := stats.Mean(data)
		median, _ := stats.Median(data)
		maximum, _ := stats.Max(data)
		t.AppendRow([]interface{}{
			name, fmt.Sprintf("%.6g", mean), fmt.Sprintf("%.6g", median), fmt.Sprintf("%.6g", maximum),
		})
	}
	metric("Rotation error (rad)", func(r trialResult) float64 { return r.RotationError })
	metric("Translation error", func(r trialResult) float64 { return r.TranslationError })
	metric("Residual (px)", func(r trialResult) float64 { return r.Residual })
	metric("Outlier recall", func(r trialResult) float64 { return r.OutlierRecall })
	metric("Inliers", func(r trialResult) float64 { return float64(r.InlierCount) })
	metric("Iterations", func(r trialResult) float64 { return float64(r.Iterations) })
	return t.Render()
}
