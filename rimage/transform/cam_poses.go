package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// extrinsicTolerance bounds how far the bottom row of a homogeneous extrinsic may be from (0,0,0,1).
const extrinsicTolerance = 1e-9

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation matrices.
// It maps world coordinates to camera coordinates: Xc = Rotation * Xw + Translation.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 or 4x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	rot := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
	t := mat.DenseCopyOf(pose.Slice(0, 3, 3, 4))
	return NewCamPoseFromRotationTranslation(rot, t)
}

// NewCamPoseFromRotationTranslation creates a Camera pose from a 3x3 rotation and a 3x1 translation.
// The inputs are copied.
func NewCamPoseFromRotationTranslation(rotation, translation *mat.Dense) *CamPose {
	rot := mat.DenseCopyOf(rotation)
	t := mat.DenseCopyOf(translation)
	var poseMat mat.Dense
	poseMat.Augment(rot, t)
	return &CamPose{
		PoseMat:     &poseMat,
		Rotation:    rot,
		Translation: t,
	}
}

// NewIdentityCamPose returns the pose whose camera frame coincides with the world frame.
func NewIdentityCamPose() *CamPose {
	return NewCamPoseFromRotationTranslation(eye(3), mat.NewDense(3, 1, nil))
}

// Extrinsic returns the pose as a 4x4 homogeneous matrix with bottom row (0,0,0,1).
func (cp *CamPose) Extrinsic() *mat.Dense {
	extrinsic := mat.NewDense(4, 4, nil)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			extrinsic.Set(y, x, cp.Rotation.At(y, x))
		}
		extrinsic.Set(y, 3, cp.Translation.At(y, 0))
	}
	extrinsic.Set(3, 3, 1)
	return extrinsic
}

// TranslationVector returns the translation as an r3.Vector.
func (cp *CamPose) TranslationVector() r3.Vector {
	return r3.Vector{X: cp.Translation.At(0, 0), Y: cp.Translation.At(1, 0), Z: cp.Translation.At(2, 0)}
}

// Apply maps a world point into the camera frame.
func (cp *CamPose) Apply(pt r3.Vector) r3.Vector {
	r := cp.Rotation
	return r3.Vector{
		X: r.At(0, 0)*pt.X + r.At(0, 1)*pt.Y + r.At(0, 2)*pt.Z + cp.Translation.At(0, 0),
		Y: r.At(1, 0)*pt.X + r.At(1, 1)*pt.Y + r.At(1, 2)*pt.Z + cp.Translation.At(1, 0),
		Z: r.At(2, 0)*pt.X + r.At(2, 1)*pt.Y + r.At(2, 2)*pt.Z + cp.Translation.At(2, 0),
	}
}

// RotationAngleBetween returns the angle in radians of the relative rotation between two poses.
func RotationAngleBetween(a, b *CamPose) float64 {
	var rel mat.Dense
	rel.Mul(a.Rotation.T(), b.Rotation)
	cos := (mat.Trace(&rel) - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, cos)))
}

// TranslationDistance returns the Euclidean distance between the translations of two poses.
func TranslationDistance(a, b *CamPose) float64 {
	return a.TranslationVector().Sub(b.TranslationVector()).Norm()
}

// CheckExtrinsic returns an error if m is not a 4x4 homogeneous rigid transform matrix.
func CheckExtrinsic(m mat.Matrix) error {
	if m == nil {
		return errors.New("extrinsic matrix is nil")
	}
	if r, c := m.Dims(); r != 4 || c != 4 {
		return errors.Errorf("extrinsic matrix must be 4x4, got %dx%d", r, c)
	}
	for x, want := range []float64{0, 0, 0, 1} {
		if math.Abs(m.At(3, x)-want) > extrinsicTolerance {
			return errors.Errorf("extrinsic matrix bottom row must be (0,0,0,1), got element %d = %v", x, m.At(3, x))
		}
	}
	return nil
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
