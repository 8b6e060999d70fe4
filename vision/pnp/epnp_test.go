package pnp

import (
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posest/rimage/transform"
)

func generate(t *testing.T, n, outliers int, sigma float64, seed uint64) *SyntheticData {
	t.Helper()
	cfg := NewDefaultSyntheticConfig(n, outliers)
	cfg.NoiseSigma = sigma
	data, err := GenerateSynthetic(cfg, rand.NewPCG(seed, 1))
	test.That(t, err, test.ShouldBeNil)
	return data
}

func datasetCorrespondences(ds *Dataset) []Correspondence {
	refs, scene := ds.Points()
	corrs := make([]Correspondence, len(refs))
	for i := range refs {
		corrs[i] = Correspondence{Reference: refs[i], Scene: scene[i]}
	}
	return corrs
}

func TestEPnPExactMinimalSample(t *testing.T) {
	for seed := uint64(0); seed < 10; seed++ {
		data := generate(t, MinimalSampleSize, 0, 0, seed)
		solver, err := NewEPnP(data.Dataset.Intrinsics)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, solver.MinCorrespondences(), test.ShouldEqual, 4)

		pose, residual, err := solver.Solve(datasetCorrespondences(data.Dataset))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, residual, test.ShouldBeLessThan, 1e-4)
		test.That(t, transform.RotationAngleBetween(pose, data.Pose), test.ShouldBeLessThan, 1e-5)
		test.That(t, transform.TranslationDistance(pose, data.Pose), test.ShouldBeLessThan, 1e-5)
		test.That(t, mat.Det(pose.Rotation), test.ShouldAlmostEqual, 1, 1e-9)
	}
}

func TestEPnPManyPoints(t *testing.T) {
	data := generate(t, 60, 0, 0, 3)
	solver, err := NewEPnP(data.Dataset.Intrinsics)
	test.That(t, err, test.ShouldBeNil)
	pose, residual, err := solver.Solve(datasetCorrespondences(data.Dataset))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual, test.ShouldBeLessThan, 1e-4)
	test.That(t, transform.RotationAngleBetween(pose, data.Pose), test.ShouldBeLessThan, 1e-6)
	test.That(t, transform.TranslationDistance(pose, data.Pose), test.ShouldBeLessThan, 1e-6)

	noisy := generate(t, 100, 0, 0.5, 4)
	pose, residual, err = solver.Solve(datasetCorrespondences(noisy.Dataset))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual, test.ShouldBeLessThan, 2.)
	test.That(t, transform.RotationAngleBetween(pose, noisy.Pose), test.ShouldBeLessThan, 0.02)
	test.That(t, transform.TranslationDistance(pose, noisy.Pose), test.ShouldBeLessThan, 0.2)
}

func TestEPnPErrors(t *testing.T) {
	_, err := NewEPnP(&transform.PinholeCameraIntrinsics{})
	test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)

	intrinsics := &transform.PinholeCameraIntrinsics{Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	solver, err := NewEPnP(intrinsics)
	test.That(t, err, test.ShouldBeNil)

	corrs := []Correspondence{
		{Reference: r3.Vector{X: 0, Y: 0, Z: 5}, Scene: r2.Point{X: 320, Y: 240}},
		{Reference: r3.Vector{X: 1, Y: 0, Z: 5}, Scene: r2.Point{X: 420, Y: 240}},
		{Reference: r3.Vector{X: 0, Y: 1, Z: 5}, Scene: r2.Point{X: 320, Y: 340}},
	}
	_, _, err = solver.Solve(corrs)
	test.That(t, errors.Is(err, ErrTooFewCorrespondences), test.ShouldBeTrue)

	// all on the plane z = 5, seen by a camera at the origin
	corrs = append(corrs,
		Correspondence{Reference: r3.Vector{X: 1, Y: 1, Z: 5}, Scene: r2.Point{X: 420, Y: 340}},
		Correspondence{Reference: r3.Vector{X: -1, Y: 0.5, Z: 5}, Scene: r2.Point{X: 220, Y: 290}},
	)
	pose, residual, err := solver.Solve(corrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual, test.ShouldBeLessThan, 1e-6)
	identity := transform.NewIdentityCamPose()
	test.That(t, transform.RotationAngleBetween(pose, identity), test.ShouldBeLessThan, 1e-6)
	test.That(t, transform.TranslationDistance(pose, identity), test.ShouldBeLessThan, 1e-6)

	collinear := make([]Correspondence, 5)
	for i := range collinear {
		x := float64(i) - 2
		collinear[i] = Correspondence{Reference: r3.Vector{X: x, Y: 0, Z: 5}, Scene: r2.Point{X: 320 + 100*x, Y: 240}}
	}
	_, _, err = solver.Solve(collinear)
	test.That(t, errors.Is(err, ErrDegenerateConfiguration), test.ShouldBeTrue)
}

func generatePlanar(t *testing.T, n, outliers int, sigma float64, seed uint64) *SyntheticData {
	t.Helper()
	cfg := NewDefaultSyntheticConfig(n, outliers)
	cfg.NoiseSigma = sigma
	cfg.Planar = true
	data, err := GenerateSynthetic(cfg, rand.NewPCG(seed, 1))
	test.That(t, err, test.ShouldBeNil)
	return data
}

func TestEPnPPlanar(t *testing.T) {
	for seed := uint64(0); seed < 10; seed++ {
		data := generatePlanar(t, MinimalSampleSize, 0, 0, seed)
		solver, err := NewEPnP(data.Dataset.Intrinsics)
		test.That(t, err, test.ShouldBeNil)

		pose, residual, err := solver.Solve(datasetCorrespondences(data.Dataset))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, residual, test.ShouldBeLessThan, 1e-3)
		test.That(t, transform.RotationAngleBetween(pose, data.Pose), test.ShouldBeLessThan, 1e-4)
		test.That(t, transform.TranslationDistance(pose, data.Pose), test.ShouldBeLessThan, 1e-3)
		test.That(t, mat.Det(pose.Rotation), test.ShouldAlmostEqual, 1, 1e-9)
	}

	noisy := generatePlanar(t, 100, 0, 0.5, 21)
	solver, err := NewEPnP(noisy.Dataset.Intrinsics)
	test.That(t, err, test.ShouldBeNil)
	pose, residual, err := solver.Solve(datasetCorrespondences(noisy.Dataset))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual, test.ShouldBeLessThan, 2.)
	test.That(t, transform.RotationAngleBetween(pose, noisy.Pose), test.ShouldBeLessThan, 0.05)
	test.That(t, transform.TranslationDistance(pose, noisy.Pose), test.ShouldBeLessThan, 0.3)
}

func TestRefine(t *testing.T) {
	data := generate(t, 80, 0, 0.5, 5)
	corrs := datasetCorrespondences(data.Dataset)
	intrinsics := data.Dataset.Intrinsics

	// start away from the truth
	start := perturb(data.Pose, 0.03, 0.05)
	startErr := meanReprojectionError(intrinsics, start, corrs)
	refined, refinedErr, err := Refine(intrinsics, start, corrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, refinedErr, test.ShouldBeLessThan, startErr)
	test.That(t, refinedErr, test.ShouldBeLessThan, 1.)
	test.That(t, transform.RotationAngleBetween(refined, data.Pose), test.ShouldBeLessThan, 0.01)

	_, _, err = Refine(intrinsics, start, corrs[:2])
	test.That(t, errors.Is(err, ErrTooFewCorrespondences), test.ShouldBeTrue)
}

func perturb(pose *transform.CamPose, angle, offset float64) *transform.CamPose {
	// small rotation about x followed by a translation offset along every axis
	delta := poseFromParams([]float64{angle, 0, 0, offset, offset, offset})
	var rot mat.Dense
	rot.Mul(delta.Rotation, pose.Rotation)
	var trans mat.Dense
	trans.Add(pose.Translation, delta.Translation)
	return transform.NewCamPoseFromRotationTranslation(&rot, &trans)
}
