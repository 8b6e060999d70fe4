package cli

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/posest/vision/pnp"
)

func TestRunBenchmark(t *testing.T) {
	opts := benchmarkOptions{
		Trials:    6,
		Workers:   3,
		Seed:      40,
		Synthetic: pnp.NewDefaultSyntheticConfig(60, 10),
		Estimator: *pnp.NewDefaultConfig(),
	}
	opts.Synthetic.NoiseSigma = 0.5

	results, err := runBenchmark(context.Background(), opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results, test.ShouldHaveLength, 6)
	for i, r := range results {
		test.That(t, r.Seed, test.ShouldEqual, uint64(40+i))
		test.That(t, r.Failed, test.ShouldBeFalse)
		test.That(t, r.OutlierRecall, test.ShouldEqual, 1.)
		test.That(t, r.RotationError, test.ShouldBeLessThan, 0.05)
		test.That(t, r.InlierCount, test.ShouldBeLessThanOrEqualTo, 50)
	}

	// scheduling does not change the outcome
	opts.Workers = 1
	again, err := runBenchmark(context.Background(), opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, results)

	bad := opts
	bad.Trials = 0
	_, err = runBenchmark(context.Background(), bad)
	test.That(t, err, test.ShouldNotBeNil)
	bad = opts
	bad.Workers = 0
	_, err = runBenchmark(context.Background(), bad)
	test.That(t, err, test.ShouldNotBeNil)
	bad = opts
	bad.Estimator.Confidence = 3
	_, err = runBenchmark(context.Background(), bad)
	test.That(t, err, test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runBenchmark(ctx, opts)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBenchmarkCommand(t *testing.T) {
	out, _, err := runApp(t, "benchmark", "--trials", "3", "--workers", "2", "--points", "40", "--outliers", "5")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "3/3 trials solved")
	test.That(t, out, test.ShouldContainSubstring, "Outlier recall")

	test.That(t, renderBenchmark([]trialResult{{Failed: true}}), test.ShouldContainSubstring, "0/1 trials solved")
}
