package pnp

import (
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/posest/rimage/transform"
	"go.viam.com/posest/spatialmath"
	"go.viam.com/posest/utils/matrix"
)

// SyntheticConfig describes a randomly generated correspondence set.
type SyntheticConfig struct {
	Intrinsics transform.PinholeCameraIntrinsics
	Distortion transform.Distorter
	// Points is the total number of correspondences, Outliers of which are replaced by random pixels.
	Points   int
	Outliers int
	// NoiseSigma is the standard deviation, in pixels, of the Gaussian noise added to inlier observations.
	NoiseSigma float64
	// Reference points are placed at camera depths in [MinDepth, MaxDepth].
	MinDepth float64
	MaxDepth float64
	// MaxRotation bounds the angle, in radians, of the ground truth rotation.
	MaxRotation float64
	// MinOutlierOffset is the minimum pixel distance between an outlier and the true projection of its
	// reference point.
	MinOutlierOffset float64
	// Planar puts the reference points on the world plane z = 0, centered in front of the camera at the
	// middle of the depth range.
	Planar bool
}

// NewDefaultSyntheticConfig returns a config generating n correspondences for a 640x480 camera.
func NewDefaultSyntheticConfig(n, outliers int) SyntheticConfig {
	return SyntheticConfig{
		Intrinsics:       transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240},
		Points:           n,
		Outliers:         outliers,
		MinDepth:         4,
		MaxDepth:         8,
		MaxRotation:      0.5,
		MinOutlierOffset: 20,
	}
}

// SyntheticData is a generated dataset with its ground truth.
type SyntheticData struct {
	Dataset *Dataset
	Pose    *transform.CamPose
	// OutlierIndices lists the correspondences whose scene point is random.
	OutlierIndices []int
}

// IsOutlier reports whether correspondence i was generated as an outlier.
func (sd *SyntheticData) IsOutlier(i int) bool {
	for _, idx := range sd.OutlierIndices {
		if idx == i {
			return true
		}
	}
	return false
}

// GenerateSynthetic generates correspondences observed by a camera at a random pose. Inlier observations are
// exact projections plus Gaussian noise; outliers are uniform random pixels.
func GenerateSynthetic(cfg SyntheticConfig, src rand.Source) (*SyntheticData, error) {
	if cfg.Points < MinimalSampleSize {
		return nil, errors.Wrapf(ErrInsufficientPoints, "cannot generate %d points", cfg.Points)
	}
	if cfg.Outliers < 0 || cfg.Outliers > cfg.Points {
		return nil, errors.Errorf("outlier count %d out of range [0, %d]", cfg.Outliers, cfg.Points)
	}
	if cfg.Intrinsics.Width <= 0 || cfg.Intrinsics.Height <= 0 {
		return nil, errors.New("synthetic data needs the image size")
	}
	if cfg.MinDepth <= 0 || cfg.MaxDepth < cfg.MinDepth {
		return nil, errors.Errorf("invalid depth range [%v, %v]", cfg.MinDepth, cfg.MaxDepth)
	}
	if cfg.NoiseSigma < 0 {
		return nil, errors.Errorf("noise sigma must not be negative, got %v", cfg.NoiseSigma)
	}
	cam, err := transform.NewCamera(&cfg.Intrinsics, cfg.Distortion)
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	rng := rand.New(src)
	width, height := float64(cfg.Intrinsics.Width), float64(cfg.Intrinsics.Height)

	axis := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	r4 := &spatialmath.R4AA{Theta: rng.Float64() * cfg.MaxRotation, RX: axis.X, RY: axis.Y, RZ: axis.Z}
	rot := r4.RotationMatrix()
	trans := mat.NewDense(3, 1, []float64{rng.Float64() - 0.5, rng.Float64() - 0.5, rng.Float64() - 0.5})
	mid := (cfg.MinDepth + cfg.MaxDepth) / 2
	if cfg.Planar {
		trans.Set(2, 0, mid)
	}
	pose := transform.NewCamPoseFromRotationTranslation(rot, trans)
	if err := cam.SetExtrinsic(pose.Extrinsic()); err != nil {
		return nil, err
	}

	var noise distuv.Normal
	if cfg.NoiseSigma > 0 {
		noise = distuv.Normal{Mu: 0, Sigma: cfg.NoiseSigma, Src: src}
	}
	depth := distuv.Uniform{Min: cfg.MinDepth, Max: cfg.MaxDepth, Src: src}
	pixelX := distuv.Uniform{Min: 0, Max: width, Src: src}
	pixelY := distuv.Uniform{Min: 0, Max: height, Src: src}
	// the plane covers about the middle half of the image
	halfX, halfY := mid*cfg.Intrinsics.Ppx/(2*cfg.Intrinsics.Fx), mid*cfg.Intrinsics.Ppy/(2*cfg.Intrinsics.Fy)
	planeX := distuv.Uniform{Min: -halfX, Max: halfX, Src: src}
	planeY := distuv.Uniform{Min: -halfY, Max: halfY, Src: src}

	corrs := make([]Correspondence, cfg.Points)
	for i := range corrs {
		var ref r3.Vector
		if cfg.Planar {
			ref = r3.Vector{X: planeX.Rand(), Y: planeY.Rand()}
			if pose.Apply(ref).Z <= 0 {
				return nil, errors.New("planar target is not in front of the camera, lower the maximum rotation")
			}
		} else {
			// back-project an in-frame pixel, then move it to the world frame: Xw = Rᵀ(Xc - t)
			x, y, z := cfg.Intrinsics.PixelToPoint(pixelX.Rand(), pixelY.Rand(), depth.Rand())
			var world mat.VecDense
			world.MulVec(rot.T(), mat.NewVecDense(3, []float64{
				x - trans.At(0, 0), y - trans.At(1, 0), z - trans.At(2, 0),
			}))
			ref = r3.Vector{X: world.AtVec(0), Y: world.AtVec(1), Z: world.AtVec(2)}
		}
		obs := cam.Project(ref)
		if cfg.NoiseSigma > 0 {
			obs = obs.Add(r2.Point{X: noise.Rand(), Y: noise.Rand()})
		}
		corrs[i] = Correspondence{Reference: ref, Scene: obs}
	}

	outlierIdx := make([]int, cfg.Outliers)
	if err := matrix.SampleDistinctIntegers(outlierIdx, cfg.Points, src); err != nil {
		return nil, err
	}
	for _, idx := range outlierIdx {
		truth := cam.Project(corrs[idx].Reference)
		obs := r2.Point{X: pixelX.Rand(), Y: pixelY.Rand()}
		for tries := 0; tries < 100 && obs.Sub(truth).Norm() < cfg.MinOutlierOffset; tries++ {
			obs = r2.Point{X: pixelX.Rand(), Y: pixelY.Rand()}
		}
		if d := obs.Sub(truth); d.Norm() < cfg.MinOutlierOffset {
			obs = truth.Add(r2.Point{X: cfg.MinOutlierOffset, Y: cfg.MinOutlierOffset})
		}
		corrs[idx].Scene = obs
	}

	ds := NewDataset(&cfg.Intrinsics, cfg.Distortion, corrs)
	ds.GroundTruth = NewPoseRecord(pose)
	return &SyntheticData{Dataset: ds, Pose: pose, OutlierIndices: outlierIdx}, nil
}
