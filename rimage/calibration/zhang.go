package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/rimage/transform"
)

// zhangVector is v_ij from Zhang's "A Flexible New Technique for Camera Calibration", built from
// columns i and j of a homography.
func zhangVector(h mat.Matrix, i, j int) []float64 {
	return []float64{
		h.At(0, i) * h.At(0, j),
		h.At(0, i)*h.At(1, j) + h.At(1, i)*h.At(0, j),
		h.At(1, i) * h.At(1, j),
		h.At(2, i)*h.At(0, j) + h.At(0, i)*h.At(2, j),
		h.At(2, i)*h.At(1, j) + h.At(1, i)*h.At(2, j),
		h.At(2, i) * h.At(2, j),
	}
}

// viewHomographies maps each view's board plane onto its image.
func viewHomographies(observations []Observation) ([]*mat.Dense, error) {
	homographies := make([]*mat.Dense, len(observations))
	for i, obs := range observations {
		h, err := transform.EstimateHomography(planar(obs.ObjectPoints), obs.ImagePoints)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		homographies[i] = h
	}
	return homographies, nil
}

// closedFormIntrinsics solves for the camera matrix from three or more plane homographies. Skew
// is dropped from the result.
func closedFormIntrinsics(homographies []*mat.Dense, imageSize image.Point) (*transform.PinholeCameraIntrinsics, error) {
	if len(homographies) < 3 {
		return nil, errors.Errorf("closed form needs 3 views, got %d", len(homographies))
	}
	v := mat.NewDense(2*len(homographies), 6, nil)
	for i, h := range homographies {
		v12 := zhangVector(h, 0, 1)
		v11 := zhangVector(h, 0, 0)
		v22 := zhangVector(h, 1, 1)
		diff := make([]float64, 6)
		for k := range diff {
			diff[k] = v11[k] - v22[k]
		}
		v.SetRow(2*i, v12)
		v.SetRow(2*i+1, diff)
	}

	var svd mat.SVD
	if !svd.Factorize(v, mat.SVDFullV) {
		return nil, errors.New("svd failed on the intrinsic constraints")
	}
	var vt mat.Dense
	svd.VTo(&vt)
	b := mat.Col(nil, 5, &vt)
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]

	denom := b11*b22 - b12*b12
	if b11 == 0 || denom == 0 {
		return nil, errors.New("degenerate intrinsic constraints")
	}
	v0 := (b12*b13 - b11*b23) / denom
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	alpha := math.Sqrt(lambda / b11)
	beta := math.Sqrt(lambda * b11 / denom)
	gamma := -b12 * alpha * alpha * beta / lambda
	u0 := gamma*v0/beta - b13*alpha*alpha/lambda

	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:  imageSize.X,
		Height: imageSize.Y,
		Fx:     alpha,
		Fy:     beta,
		Ppx:    u0,
		Ppy:    v0,
	}
	for _, val := range []float64{alpha, beta, u0, v0} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, errors.New("closed form produced a non finite camera matrix")
		}
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// fallbackIntrinsics is a generic camera: focal length equal to the larger image side, principal
// point in the middle.
func fallbackIntrinsics(imageSize image.Point) *transform.PinholeCameraIntrinsics {
	f := float64(max(imageSize.X, imageSize.Y))
	return &transform.PinholeCameraIntrinsics{
		Width:  imageSize.X,
		Height: imageSize.Y,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(imageSize.X) / 2,
		Ppy:    float64(imageSize.Y) / 2,
	}
}

// poseFromHomography recovers the board pose from H = K [r1 r2 t].
func poseFromHomography(h mat.Matrix, intrinsics *transform.PinholeCameraIntrinsics) (transform.Pose, error) {
	var kInv mat.Dense
	if err := kInv.Inverse(intrinsics.GetCameraMatrix()); err != nil {
		return transform.Pose{}, errors.Wrap(err, "camera matrix is singular")
	}
	var m mat.Dense
	m.Mul(&kInv, h)
	col := func(j int) r3.Vector {
		return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
	}
	h1, h2, h3 := col(0), col(1), col(2)
	norm := h1.Norm()
	if norm == 0 {
		return transform.Pose{}, errors.New("degenerate homography")
	}
	scale := 1 / norm
	// the board must be in front of the camera
	if h3.Z < 0 {
		scale = -scale
	}
	r1 := h1.Mul(scale)
	r2 := h2.Mul(scale)
	r3v := r1.Cross(r2)
	t := h3.Mul(scale)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	rot := transform.NearestRotation(approx)
	if rot == nil {
		return transform.Pose{}, errors.New("cannot orthogonalize rotation")
	}
	return transform.Pose{Rotation: transform.RodriguesFromRotationMatrix(rot), Translation: t}, nil
}

// initialEstimate returns starting intrinsics and per-view poses for the nonlinear refinement.
func initialEstimate(observations []Observation, imageSize image.Point) (*transform.PinholeCameraIntrinsics, []transform.Pose, bool, error) {
	homographies, err := viewHomographies(observations)
	if err != nil {
		return nil, nil, false, err
	}
	closedForm := true
	intrinsics, err := closedFormIntrinsics(homographies, imageSize)
	if err != nil {
		closedForm = false
		intrinsics = fallbackIntrinsics(imageSize)
	}
	poses := make([]transform.Pose, len(homographies))
	for i, h := range homographies {
		pose, err := poseFromHomography(h, intrinsics)
		if err != nil {
			return nil, nil, false, errors.Wrapf(err, "view %d", i)
		}
		poses[i] = pose
	}
	return intrinsics, poses, closedForm, nil
}
