package pnp

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posest/rimage/transform"
)

const (
	epnpMinCorrespondences = 4
	gaussNewtonIterations  = 5
	// planarityTolerance is the ratio between a principal variance of the reference points and the largest
	// one below which that direction is treated as empty.
	planarityTolerance = 1e-10
)

// pairs of control points whose distances constrain the betas.
var (
	controlPointPairs       = [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	planarControlPointPairs = [][2]int{{0, 1}, {0, 2}, {1, 2}}
)

// EPnP solves the perspective-n-point problem in closed form by expressing the reference points as weighted
// sums of four virtual control points, following Lepetit, Moreno-Noguer and Fua, "EPnP: An Accurate O(n)
// Solution to the PnP Problem", IJCV 2009. Coplanar reference points use three control points in their
// plane.
type EPnP struct {
	intrinsics transform.PinholeCameraIntrinsics
}

// NewEPnP returns an EPnP solver for a pinhole camera. The scene points passed to Solve must be free of
// lens distortion.
func NewEPnP(intrinsics *transform.PinholeCameraIntrinsics) (*EPnP, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return &EPnP{intrinsics: *intrinsics}, nil
}

// MinCorrespondences returns 4.
func (e *EPnP) MinCorrespondences() int {
	return epnpMinCorrespondences
}

// Solve returns the pose with the lowest mean reprojection error among the three beta approximations, and
// that error.
func (e *EPnP) Solve(corrs []Correspondence) (*transform.CamPose, float64, error) {
	if len(corrs) < epnpMinCorrespondences {
		return nil, 0, errors.Wrapf(ErrTooFewCorrespondences, "epnp needs %d, got %d", epnpMinCorrespondences, len(corrs))
	}
	cws, err := chooseControlPoints(corrs)
	if err != nil {
		return nil, 0, err
	}
	alphas := barycentricCoordinates(corrs, cws)
	if len(cws) == 3 {
		return e.solvePlanar(corrs, cws, alphas)
	}
	kernel, err := e.nullSpace(corrs, alphas, 4)
	if err != nil {
		return nil, 0, err
	}
	l := computeL6x10(kernel)
	rho := computeRho(cws, controlPointPairs)

	var best *transform.CamPose
	bestErr := math.Inf(1)
	for _, approx := range []func(*mat.Dense, *mat.VecDense) ([4]float64, error){
		findBetasApprox1, findBetasApprox2, findBetasApprox3,
	} {
		betas, err := approx(l, rho)
		if err != nil {
			continue
		}
		betas = gaussNewton(l, rho, betas)
		if !finite(betas[:]...) {
			continue
		}
		pose, err := poseFromBetas(corrs, alphas, kernel, betas[:])
		if err != nil {
			continue
		}
		if repErr := meanReprojectionError(&e.intrinsics, pose, corrs); repErr < bestErr {
			best, bestErr = pose, repErr
		}
	}
	if best == nil {
		return nil, 0, errors.New("epnp found no pose in front of the camera")
	}
	return best, bestErr, nil
}

// solvePlanar handles reference points on a plane. Their projections determine the camera frame control
// points up to scale, through the single null vector of M, and the control point distances fix the scale.
func (e *EPnP) solvePlanar(corrs []Correspondence, cws []r3.Vector, alphas [][]float64,
) (*transform.CamPose, float64, error) {
	kernel, err := e.nullSpace(corrs, alphas, 1)
	if err != nil {
		return nil, 0, err
	}
	rho := computeRho(cws, planarControlPointPairs)
	num, den := 0., 0.
	for row, pair := range planarControlPointPairs {
		d := kernel[0][pair[0]].Sub(kernel[0][pair[1]])
		dd := d.Dot(d)
		num += dd * rho.AtVec(row)
		den += dd * dd
	}
	if den == 0 || num <= 0 {
		return nil, 0, errors.New("epnp beta approximation vanished")
	}
	pose, err := poseFromBetas(corrs, alphas, kernel, []float64{math.Sqrt(num / den)})
	if err != nil {
		return nil, 0, err
	}
	repErr := meanReprojectionError(&e.intrinsics, pose, corrs)
	if math.IsInf(repErr, 1) {
		return nil, 0, errors.New("epnp found no pose in front of the camera")
	}
	return pose, repErr, nil
}

// chooseControlPoints returns the centroid of the reference points and the centroid displaced along each
// principal direction by the standard deviation along it. The direction normal to coplanar points is left
// out, leaving three control points.
func chooseControlPoints(corrs []Correspondence) ([]r3.Vector, error) {
	var centroid r3.Vector
	n := float64(len(corrs))
	for _, c := range corrs {
		centroid = centroid.Add(c.Reference)
	}
	centroid = centroid.Mul(1 / n)

	centered := mat.NewDense(len(corrs), 3, nil)
	for i, c := range corrs {
		d := c.Reference.Sub(centroid)
		centered.SetRow(i, []float64{d.X, d.Y, d.Z})
	}
	var cov mat.SymDense
	cov.SymOuterK(1, centered.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, errors.New("eigen decomposition of reference points failed")
	}
	// ascending
	values := eig.Values(nil)
	if values[2] <= 0 || values[1] <= planarityTolerance*values[2] {
		return nil, ErrDegenerateConfiguration
	}
	first := 0
	if values[0] <= planarityTolerance*values[2] {
		first = 1
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	cws := []r3.Vector{centroid}
	for j := first; j < 3; j++ {
		k := math.Sqrt(values[j] / n)
		dir := r3.Vector{X: vectors.At(0, j), Y: vectors.At(1, j), Z: vectors.At(2, j)}
		cws = append(cws, centroid.Add(dir.Mul(k)))
	}
	return cws, nil
}

// barycentricCoordinates expresses every reference point as a weighted sum of the control points. The
// control points sit on orthogonal axes around the first one, so each weight is a scaled projection.
func barycentricCoordinates(corrs []Correspondence, cws []r3.Vector) [][]float64 {
	axes := make([]r3.Vector, len(cws)-1)
	for j := range axes {
		d := cws[j+1].Sub(cws[0])
		axes[j] = d.Mul(1 / d.Dot(d))
	}
	alphas := make([][]float64, len(corrs))
	for i, c := range corrs {
		d := c.Reference.Sub(cws[0])
		alphas[i] = make([]float64, len(cws))
		alphas[i][0] = 1
		for j, axis := range axes {
			a := d.Dot(axis)
			alphas[i][j+1] = a
			alphas[i][0] -= a
		}
	}
	return alphas
}

// nullSpace returns the eigenvectors of MᵀM for its dims smallest eigenvalues, smallest first, each
// reshaped into the control points in the camera frame.
func (e *EPnP) nullSpace(corrs []Correspondence, alphas [][]float64, dims int) ([][]r3.Vector, error) {
	fx, fy := e.intrinsics.Fx, e.intrinsics.Fy
	cx, cy := e.intrinsics.Ppx, e.intrinsics.Ppy
	points := len(alphas[0])

	m := mat.NewDense(2*len(corrs), 3*points, nil)
	for i, c := range corrs {
		for j, a := range alphas[i] {
			m.Set(2*i, 3*j, a*fx)
			m.Set(2*i, 3*j+2, a*(cx-c.Scene.X))
			m.Set(2*i+1, 3*j+1, a*fy)
			m.Set(2*i+1, 3*j+2, a*(cy-c.Scene.Y))
		}
	}
	var mtm mat.SymDense
	mtm.SymOuterK(1, m.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&mtm, true); !ok {
		return nil, errors.New("eigen decomposition of the projection system failed")
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	kernel := make([][]r3.Vector, dims)
	for i := range kernel {
		kernel[i] = make([]r3.Vector, points)
		for j := range kernel[i] {
			kernel[i][j] = r3.Vector{X: vectors.At(3*j, i), Y: vectors.At(3*j+1, i), Z: vectors.At(3*j+2, i)}
		}
	}
	return kernel, nil
}

// computeL6x10 builds the quadratic form of the six control point distances in the ten beta products
// b00 b01 b11 b02 b12 b22 b03 b13 b23 b33.
func computeL6x10(kernel [][]r3.Vector) *mat.Dense {
	l := mat.NewDense(6, 10, nil)
	for row, pair := range controlPointPairs {
		var dv [4]r3.Vector
		for i := range kernel {
			dv[i] = kernel[i][pair[0]].Sub(kernel[i][pair[1]])
		}
		l.SetRow(row, []float64{
			dv[0].Dot(dv[0]),
			2 * dv[0].Dot(dv[1]),
			dv[1].Dot(dv[1]),
			2 * dv[0].Dot(dv[2]),
			2 * dv[1].Dot(dv[2]),
			dv[2].Dot(dv[2]),
			2 * dv[0].Dot(dv[3]),
			2 * dv[1].Dot(dv[3]),
			2 * dv[2].Dot(dv[3]),
			dv[3].Dot(dv[3]),
		})
	}
	return l
}

// computeRho returns the squared world distances between the control point pairs.
func computeRho(cws []r3.Vector, pairs [][2]int) *mat.VecDense {
	rho := mat.NewVecDense(len(pairs), nil)
	for row, pair := range pairs {
		d := cws[pair[0]].Sub(cws[pair[1]])
		rho.SetVec(row, d.Dot(d))
	}
	return rho
}

func selectColumns(l *mat.Dense, cols ...int) *mat.Dense {
	r, _ := l.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for j, col := range cols {
		for i := 0; i < r; i++ {
			out.Set(i, j, l.At(i, col))
		}
	}
	return out
}

// findBetasApprox1 solves for [b00 b01 b02 b03].
func findBetasApprox1(l *mat.Dense, rho *mat.VecDense) ([4]float64, error) {
	var betas [4]float64
	b4, err := solveLeastSquares(selectColumns(l, 0, 1, 3, 6), rho)
	if err != nil {
		return betas, err
	}
	sign := 1.
	if b4.AtVec(0) < 0 {
		sign = -1
	}
	betas[0] = math.Sqrt(sign * b4.AtVec(0))
	if betas[0] == 0 {
		return betas, errors.New("epnp beta approximation vanished")
	}
	for k := 1; k < 4; k++ {
		betas[k] = sign * b4.AtVec(k) / betas[0]
	}
	return betas, nil
}

// findBetasApprox2 solves for [b00 b01 b11].
func findBetasApprox2(l *mat.Dense, rho *mat.VecDense) ([4]float64, error) {
	var betas [4]float64
	b3, err := solveLeastSquares(selectColumns(l, 0, 1, 2), rho)
	if err != nil {
		return betas, err
	}
	betas[0], betas[1] = firstTwoBetas(b3.AtVec(0), b3.AtVec(1), b3.AtVec(2))
	return betas, nil
}

// findBetasApprox3 solves for [b00 b01 b11 b02 b12].
func findBetasApprox3(l *mat.Dense, rho *mat.VecDense) ([4]float64, error) {
	var betas [4]float64
	b5, err := solveLeastSquares(selectColumns(l, 0, 1, 2, 3, 4), rho)
	if err != nil {
		return betas, err
	}
	betas[0], betas[1] = firstTwoBetas(b5.AtVec(0), b5.AtVec(1), b5.AtVec(2))
	if betas[0] == 0 {
		return betas, errors.New("epnp beta approximation vanished")
	}
	betas[2] = b5.AtVec(3) / betas[0]
	return betas, nil
}

// firstTwoBetas recovers beta0 and beta1 from the products b00, b01 and b11. The overall sign is
// arbitrary; it is fixed later by requiring the points to lie in front of the camera.
func firstTwoBetas(b00, b01, b11 float64) (float64, float64) {
	var beta0, beta1 float64
	if b00 < 0 {
		beta0 = math.Sqrt(-b00)
		if b11 < 0 {
			beta1 = math.Sqrt(-b11)
		}
	} else {
		beta0 = math.Sqrt(b00)
		if b11 > 0 {
			beta1 = math.Sqrt(b11)
		}
	}
	if b01 < 0 {
		beta0 = -beta0
	}
	return beta0, beta1
}

// gaussNewton refines the betas to minimize the mismatch between camera and world control point distances.
func gaussNewton(l *mat.Dense, rho *mat.VecDense, betas [4]float64) [4]float64 {
	a := mat.NewDense(6, 4, nil)
	b := mat.NewVecDense(6, nil)
	for iter := 0; iter < gaussNewtonIterations; iter++ {
		b0, b1, b2, b3 := betas[0], betas[1], betas[2], betas[3]
		for i := 0; i < 6; i++ {
			r := l.RawRowView(i)
			a.SetRow(i, []float64{
				2*r[0]*b0 + r[1]*b1 + r[3]*b2 + r[6]*b3,
				r[1]*b0 + 2*r[2]*b1 + r[4]*b2 + r[7]*b3,
				r[3]*b0 + r[4]*b1 + 2*r[5]*b2 + r[8]*b3,
				r[6]*b0 + r[7]*b1 + r[8]*b2 + 2*r[9]*b3,
			})
			quad := r[0]*b0*b0 + r[1]*b0*b1 + r[2]*b1*b1 + r[3]*b0*b2 + r[4]*b1*b2 +
				r[5]*b2*b2 + r[6]*b0*b3 + r[7]*b1*b3 + r[8]*b2*b3 + r[9]*b3*b3
			b.SetVec(i, rho.AtVec(i)-quad)
		}
		dx, err := solveLeastSquares(a, b)
		if err != nil {
			return betas
		}
		for k := range betas {
			betas[k] += dx.AtVec(k)
		}
	}
	return betas
}

// poseFromBetas rebuilds the camera frame control points and reference points from the betas and aligns
// them with the world frame.
func poseFromBetas(corrs []Correspondence, alphas [][]float64, kernel [][]r3.Vector, betas []float64,
) (*transform.CamPose, error) {
	ccs := make([]r3.Vector, len(kernel[0]))
	for i, beta := range betas {
		for j := range ccs {
			ccs[j] = ccs[j].Add(kernel[i][j].Mul(beta))
		}
	}
	pcs := make([]r3.Vector, len(corrs))
	behind := 0
	for i, a := range alphas {
		for j, cc := range ccs {
			pcs[i] = pcs[i].Add(cc.Mul(a[j]))
		}
		if pcs[i].Z < 0 {
			behind++
		}
	}
	if 2*behind > len(pcs) {
		for i := range pcs {
			pcs[i] = pcs[i].Mul(-1)
		}
	}
	pws := make([]r3.Vector, len(corrs))
	for i, c := range corrs {
		pws[i] = c.Reference
	}
	return absoluteOrientation(pws, pcs)
}

// absoluteOrientation returns the rigid transform taking the world points onto the camera points in the
// least squares sense.
func absoluteOrientation(pws, pcs []r3.Vector) (*transform.CamPose, error) {
	var pw0, pc0 r3.Vector
	for i := range pws {
		pw0 = pw0.Add(pws[i])
		pc0 = pc0.Add(pcs[i])
	}
	n := float64(len(pws))
	pw0, pc0 = pw0.Mul(1/n), pc0.Mul(1/n)

	abt := mat.NewDense(3, 3, nil)
	for i := range pws {
		c := pcs[i].Sub(pc0)
		w := pws[i].Sub(pw0)
		cv := [3]float64{c.X, c.Y, c.Z}
		wv := [3]float64{w.X, w.Y, w.Z}
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				abt.Set(y, x, abt.At(y, x)+cv[y]*wv[x])
			}
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(abt, mat.SVDFull); !ok {
		return nil, errors.New("singular value decomposition of the point alignment failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		// reflection: flip the axis of the smallest singular value
		fix := mat.NewDiagDense(3, []float64{1, 1, -1})
		var uf mat.Dense
		uf.Mul(&u, fix)
		rot.Mul(&uf, v.T())
	}
	var rpw mat.VecDense
	rpw.MulVec(&rot, mat.NewVecDense(3, []float64{pw0.X, pw0.Y, pw0.Z}))
	trans := mat.NewDense(3, 1, []float64{pc0.X - rpw.AtVec(0), pc0.Y - rpw.AtVec(1), pc0.Z - rpw.AtVec(2)})
	return transform.NewCamPoseFromRotationTranslation(&rot, trans), nil
}
