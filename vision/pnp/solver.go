// Package pnp estimates camera poses from 3D to 2D point correspondences. It contains the EPnP minimal
// solver, a nonlinear reprojection refinement, and a RANSAC estimator that rejects mismatched
// correspondences while keeping the largest consensus set.
package pnp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posest/rimage/transform"
)

// Solver computes the world to camera pose explaining a set of correspondences.
// Solve has no state across calls; the residual is the mean reprojection error in pixels.
type Solver interface {
	Solve(corrs []Correspondence) (*transform.CamPose, float64, error)
	MinCorrespondences() int
}

// SolverFactory builds a Solver for a camera.
type SolverFactory func(intrinsics *transform.PinholeCameraIntrinsics) (Solver, error)

// NewEPnPSolver is the default SolverFactory.
func NewEPnPSolver(intrinsics *transform.PinholeCameraIntrinsics) (Solver, error) {
	return NewEPnP(intrinsics)
}

// ErrTooFewCorrespondences is returned by solvers given less than their minimum number of correspondences.
var ErrTooFewCorrespondences = errors.New("not enough correspondences to solve for a pose")

// ErrDegenerateConfiguration is returned when the reference points do not span a plane.
var ErrDegenerateConfiguration = errors.New("reference points are collinear")

// meanReprojectionError returns the mean pixel distance between the observed scene points and the
// pinhole projection of the reference points under pose. Points behind the camera give +Inf.
func meanReprojectionError(intrinsics *transform.PinholeCameraIntrinsics, pose *transform.CamPose,
	corrs []Correspondence,
) float64 {
	if len(corrs) == 0 {
		return 0
	}
	sum := 0.
	for _, c := range corrs {
		cam := pose.Apply(c.Reference)
		if cam.Z <= 0 {
			return math.Inf(1)
		}
		u, v := intrinsics.PointToPixel(cam.X, cam.Y, cam.Z)
		du, dv := u-c.Scene.X, v-c.Scene.Y
		sum += math.Hypot(du, dv)
	}
	return sum / float64(len(corrs))
}

// solveLeastSquares returns the minimum norm least squares solution of a x = b through the pseudo-inverse of a.
func solveLeastSquares(a mat.Matrix, b *mat.VecDense) (*mat.VecDense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	r, c := a.Dims()
	tol := 0.
	if len(values) > 0 {
		tol = values[0] * float64(max(r, c)) * 1e-14
	}
	var utb mat.VecDense
	utb.MulVec(u.T(), b)
	for i, s := range values {
		if s > tol {
			utb.SetVec(i, utb.AtVec(i)/s)
		} else {
			utb.SetVec(i, 0)
		}
	}
	var x mat.VecDense
	x.MulVec(&v, &utb)
	return &x, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
