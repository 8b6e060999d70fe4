package pnp

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/posest/rimage/transform"
	"go.viam.com/posest/spatialmath"
)

// behindCameraCost is added to the cost for every reference point that lands behind the camera.
const behindCameraCost = 1e12

// Refine minimizes the sum of squared reprojection errors of corrs over the six pose parameters (axis angle
// rotation and translation), starting from pose. It returns the refined pose and its mean reprojection error.
// Scene points must be free of lens distortion.
func Refine(intrinsics *transform.PinholeCameraIntrinsics, pose *transform.CamPose, corrs []Correspondence,
) (*transform.CamPose, float64, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, 0, err
	}
	if len(corrs) < 3 {
		return nil, 0, errors.Wrapf(ErrTooFewCorrespondences, "refinement needs 3, got %d", len(corrs))
	}
	aa := spatialmath.RotationMatrixToR4AA(pose.Rotation).ToR3()
	t := pose.TranslationVector()
	x0 := []float64{aa.X, aa.Y, aa.Z, t.X, t.Y, t.Z}

	cost := func(x []float64) float64 {
		p := poseFromParams(x)
		sum := 0.
		for _, c := range corrs {
			cam := p.Apply(c.Reference)
			if cam.Z <= 0 {
				sum += behindCameraCost
				continue
			}
			u, v := intrinsics.PointToPixel(cam.X, cam.Y, cam.Z)
			du, dv := u-c.Scene.X, v-c.Scene.Y
			sum += du*du + dv*dv
		}
		return sum
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 200,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 10,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if err != nil && result == nil {
		return nil, 0, errors.Wrap(err, "pose refinement failed")
	}
	if !finite(result.X...) {
		return nil, 0, errors.New("pose refinement diverged")
	}
	refined := poseFromParams(result.X)
	return refined, meanReprojectionError(intrinsics, refined, corrs), nil
}

// poseFromParams builds a pose from [rx ry rz tx ty tz], where r is an R3 axis angle.
func poseFromParams(x []float64) *transform.CamPose {
	rot := spatialmath.R3ToR4(r3.Vector{X: x[0], Y: x[1], Z: x[2]}).RotationMatrix()
	return transform.NewCamPoseFromRotationTranslation(rot, mat.NewDense(3, 1, []float64{x[3], x[4], x[5]}))
}
