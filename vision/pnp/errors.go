package pnp

import "github.com/pkg/errors"

var (
	// ErrNoCamera is returned when the camera is missing or has no valid intrinsics.
	ErrNoCamera = errors.New("camera is not configured")
	// ErrInsufficientPoints is returned when there are fewer correspondences than the minimal sample size.
	ErrInsufficientPoints = errors.New("not enough correspondences")
	// ErrLengthMismatch is returned when the reference and scene sequences differ in length.
	ErrLengthMismatch = errors.New("reference and scene point counts differ")
	// ErrInvalidConfig is returned for estimator configurations outside their valid ranges.
	ErrInvalidConfig = errors.New("invalid estimator configuration")
	// ErrDegenerateEstimate is returned when no trial found a consensus set as large as the minimal sample.
	ErrDegenerateEstimate = errors.New("consensus set is smaller than the minimal sample")
)

// IsPreconditionError reports whether err was caused by invalid input rather than by the estimation itself.
func IsPreconditionError(err error) bool {
	for _, target := range []error{ErrNoCamera, ErrInsufficientPoints, ErrLengthMismatch, ErrInvalidConfig} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
