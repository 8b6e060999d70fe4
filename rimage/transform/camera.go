package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var nan = math.NaN()

// Camera is a pinhole camera with optional lens distortion and a world to camera extrinsic pose.
// A Camera is not safe for concurrent mutation.
type Camera struct {
	intrinsics *PinholeCameraIntrinsics
	distortion Distorter
	pose       *CamPose
}

// NewCamera returns a camera with the given intrinsics, an optional distortion model, and an identity
// extrinsic pose.
func NewCamera(intrinsics *PinholeCameraIntrinsics, distortion Distorter) (*Camera, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if distortion != nil {
		if err := distortion.CheckValid(); err != nil {
			return nil, err
		}
		if _, ok := invertDistorter(distortion); !ok {
			return nil, errors.Errorf("distortion model %q cannot be inverted", distortion.ModelType())
		}
	}
	params := *intrinsics
	return &Camera{intrinsics: &params, distortion: distortion, pose: NewIdentityCamPose()}, nil
}

// Intrinsics returns a copy of the camera intrinsics, or nil if the camera is not configured.
func (c *Camera) Intrinsics() *PinholeCameraIntrinsics {
	if c == nil || c.intrinsics == nil {
		return nil
	}
	params := *c.intrinsics
	return &params
}

// Distortion returns the distortion model of the camera, which may be nil.
func (c *Camera) Distortion() Distorter {
	return c.distortion
}

// Pose returns the current world to camera pose.
func (c *Camera) Pose() *CamPose {
	return NewCamPoseFromRotationTranslation(c.pose.Rotation, c.pose.Translation)
}

// Extrinsic returns a copy of the current 4x4 extrinsic matrix.
func (c *Camera) Extrinsic() *mat.Dense {
	return c.pose.Extrinsic()
}

// SetExtrinsic installs a 4x4 homogeneous extrinsic matrix.
func (c *Camera) SetExtrinsic(extrinsic *mat.Dense) error {
	if c == nil || c.intrinsics == nil {
		return NewNoIntrinsicsError("camera is not configured")
	}
	if extrinsic == nil {
		return errors.New("extrinsic matrix is nil")
	}
	if err := CheckExtrinsic(extrinsic); err != nil {
		return err
	}
	c.pose = NewCamPoseFromMat(extrinsic)
	return nil
}

// Project maps a world point to image coordinates through the extrinsic pose, distortion and
// intrinsics. Points at or behind the camera plane project to NaN coordinates.
func (c *Camera) Project(pt r3.Vector) r2.Point {
	cam := c.pose.Apply(pt)
	if cam.Z <= 0 {
		return r2.Point{X: nan, Y: nan}
	}
	x, y := cam.X/cam.Z, cam.Y/cam.Z
	if c.distortion != nil {
		x, y = c.distortion.Transform(x, y)
	}
	return c.intrinsics.DenormalizePixel(r2.Point{X: x, Y: y})
}

// UndistortPixel removes the lens distortion from an observed pixel, so that the result follows the ideal
// pinhole model. Without a distortion model the pixel is returned unchanged.
func (c *Camera) UndistortPixel(pt r2.Point) r2.Point {
	inverse, _ := invertDistorter(c.distortion)
	if inverse == nil {
		return pt
	}
	n := c.intrinsics.NormalizePixel(pt)
	x, y := inverse.Transform(n.X, n.Y)
	return c.intrinsics.DenormalizePixel(r2.Point{X: x, Y: y})
}

// WorkingCopy returns a camera with the same intrinsics and distortion and an identity extrinsic pose.
func (c *Camera) WorkingCopy() *Camera {
	params := *c.intrinsics
	return &Camera{intrinsics: &params, distortion: c.distortion, pose: NewIdentityCamPose()}
}

// ReprojectionError returns the pixel distance between the projection of a world point and an observation.
func (c *Camera) ReprojectionError(world r3.Vector, observed r2.Point) float64 {
	return c.Project(world).Sub(observed).Norm()
}

func invertDistorter(d Distorter) (Distorter, bool) {
	switch model := d.(type) {
	case *BrownConrady:
		return model.Inverse(), true
	case *InverseBrownConrady:
		return model.Inverse(), true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}
