package transform

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240}
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	err := nilIntrinsics.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)
	// Image size is optional.
	test.That(t, (&PinholeCameraIntrinsics{Fx: 1, Fy: 1}).CheckValid(), test.ShouldBeNil)

	bad := testIntrinsics()
	bad.Fx = 0
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid focal length Fx")
	bad = testIntrinsics()
	bad.Fy = -2
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid focal length Fy")
	bad = testIntrinsics()
	bad.Ppy = -1
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid principal Y point")
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	data := `{"width_px": 640, "height_px": 480, "fx": 500, "fy": 510, "ppx": 320, "ppy": 240}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	intrinsics, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics, test.ShouldResemble, testIntrinsics())

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening JSON file")
}

func TestPixelPointRoundTrip(t *testing.T) {
	params := testIntrinsics()
	u, v := params.PointToPixel(0.1, -0.2, 2)
	test.That(t, u, test.ShouldAlmostEqual, 345)
	test.That(t, v, test.ShouldAlmostEqual, 189)
	x, y, z := params.PixelToPoint(u, v, 2)
	test.That(t, x, test.ShouldAlmostEqual, 0.1)
	test.That(t, y, test.ShouldAlmostEqual, -0.2)
	test.That(t, z, test.ShouldEqual, 2.)

	u, v = params.PointToPixel(1, 1, 0)
	test.That(t, math.IsNaN(u), test.ShouldBeTrue)
	test.That(t, math.IsNaN(v), test.ShouldBeTrue)

	k := params.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 500.)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240.)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.)
}

func TestCameraProjection(t *testing.T) {
	cam, err := NewCamera(testIntrinsics(), nil)
	test.That(t, err, test.ShouldBeNil)

	// identity pose: the world frame is the camera frame
	pt := cam.Project(r3.Vector{X: 0.2, Y: 0.1, Z: 1})
	test.That(t, pt.X, test.ShouldAlmostEqual, 420)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 291)

	// translate the world 1 unit further away
	extrinsic := eye(4)
	extrinsic.Set(2, 3, 1)
	test.That(t, cam.SetExtrinsic(extrinsic), test.ShouldBeNil)
	pt = cam.Project(r3.Vector{X: 0.2, Y: 0.1, Z: 1})
	test.That(t, pt.X, test.ShouldAlmostEqual, 370)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 265.5)
	test.That(t, cam.ReprojectionError(r3.Vector{X: 0.2, Y: 0.1, Z: 1}, r2.Point{X: 373, Y: 269.5}),
		test.ShouldAlmostEqual, 5)

	// behind the camera
	pt = cam.Project(r3.Vector{X: 0, Y: 0, Z: -3})
	test.That(t, math.IsNaN(pt.X), test.ShouldBeTrue)

	test.That(t, mat.Equal(cam.Extrinsic(), extrinsic), test.ShouldBeTrue)
	// the returned extrinsic is a copy
	cam.Extrinsic().Set(0, 3, 100)
	test.That(t, cam.Extrinsic().At(0, 3), test.ShouldEqual, 0.)
}

func TestCameraSetExtrinsicValidation(t *testing.T) {
	cam, err := NewCamera(testIntrinsics(), nil)
	test.That(t, err, test.ShouldBeNil)

	err = cam.SetExtrinsic(mat.NewDense(3, 4, nil))
	test.That(t, err.Error(), test.ShouldContainSubstring, "must be 4x4")

	bad := eye(4)
	bad.Set(3, 1, 0.5)
	err = cam.SetExtrinsic(bad)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bottom row")
	test.That(t, mat.Equal(cam.Extrinsic(), eye(4)), test.ShouldBeTrue)

	var unconfigured Camera
	test.That(t, unconfigured.Intrinsics(), test.ShouldBeNil)
	test.That(t, errors.Is(unconfigured.SetExtrinsic(eye(4)), ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewCamera(&PinholeCameraIntrinsics{}, nil)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestErrorMessagesKeepPercent(t *testing.T) {
	err := NewNoIntrinsicsError("fx is 100% zero")
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldStartWith, "fx is 100% zero: ")

	err = InvalidDistortionError("k1 off by 5%")
	test.That(t, err.Error(), test.ShouldEqual, "k1 off by 5%: invalid distortion_parameters")
}

func TestWorkingCopy(t *testing.T) {
	distortion, err := NewBrownConrady([]float64{0.1, -0.05})
	test.That(t, err, test.ShouldBeNil)
	cam, err := NewCamera(testIntrinsics(), distortion)
	test.That(t, err, test.ShouldBeNil)
	extrinsic := eye(4)
	extrinsic.Set(0, 3, 2)
	test.That(t, cam.SetExtrinsic(extrinsic), test.ShouldBeNil)

	working := cam.WorkingCopy()
	test.That(t, working.Intrinsics(), test.ShouldResemble, cam.Intrinsics())
	test.That(t, working.Distortion(), test.ShouldEqual, cam.Distortion())
	test.That(t, mat.Equal(working.Extrinsic(), eye(4)), test.ShouldBeTrue)

	test.That(t, working.SetExtrinsic(eye(4)), test.ShouldBeNil)
	test.That(t, cam.Extrinsic().At(0, 3), test.ShouldEqual, 2.)
}

func TestDistortionRoundTrip(t *testing.T) {
	distortion, err := NewDistorter(BrownConradyDistortionType, []float64{-0.2, 0.05, 0.001, 0.002, -0.001})
	test.That(t, err, test.ShouldBeNil)
	cam, err := NewCamera(testIntrinsics(), distortion)
	test.That(t, err, test.ShouldBeNil)

	ideal, err := NewCamera(testIntrinsics(), nil)
	test.That(t, err, test.ShouldBeNil)

	for _, world := range []r3.Vector{{X: 0.3, Y: -0.2, Z: 1}, {X: -0.4, Y: 0.35, Z: 1.5}, {X: 0, Y: 0, Z: 2}} {
		distorted := cam.Project(world)
		undistorted := cam.UndistortPixel(distorted)
		want := ideal.Project(world)
		test.That(t, undistorted.X, test.ShouldAlmostEqual, want.X, 1e-6)
		test.That(t, undistorted.Y, test.ShouldAlmostEqual, want.Y, 1e-6)
	}

	// no distortion model leaves pixels unchanged
	px := r2.Point{X: 12, Y: 34}
	test.That(t, ideal.UndistortPixel(px), test.ShouldResemble, px)
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(NoneDistortionType, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldBeNil)

	d, err = NewDistorter(InverseBrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0.1, 0, 0, 0, 0})

	_, err = NewDistorter(DistortionType("kannala_brandt"), nil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to parse")

	_, err = NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err.Error(), test.ShouldContainSubstring, "too long")
}

func TestCamPose(t *testing.T) {
	// 90 degree rotation about z
	rot := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	trans := mat.NewDense(3, 1, []float64{1, 2, 3})
	pose := NewCamPoseFromRotationTranslation(rot, trans)

	moved := pose.Apply(r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, moved.X, test.ShouldAlmostEqual, 1)
	test.That(t, moved.Y, test.ShouldAlmostEqual, 3)
	test.That(t, moved.Z, test.ShouldAlmostEqual, 3)

	extrinsic := pose.Extrinsic()
	test.That(t, CheckExtrinsic(extrinsic), test.ShouldBeNil)
	test.That(t, extrinsic.At(1, 0), test.ShouldEqual, 1.)
	test.That(t, extrinsic.At(2, 3), test.ShouldEqual, 3.)

	back := NewCamPoseFromMat(extrinsic)
	test.That(t, mat.Equal(back.Rotation, rot), test.ShouldBeTrue)
	test.That(t, mat.Equal(back.Translation, trans), test.ShouldBeTrue)

	test.That(t, RotationAngleBetween(pose, NewIdentityCamPose()), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, TranslationDistance(pose, back), test.ShouldAlmostEqual, 0)
	test.That(t, TranslationDistance(pose, NewIdentityCamPose()), test.ShouldAlmostEqual, math.Sqrt(14))
}
