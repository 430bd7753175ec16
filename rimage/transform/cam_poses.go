package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform from a target frame into the camera frame. Rotation is an axis-angle
// (Rodrigues) vector whose norm is the angle in radians.
type Pose struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
}

// RotationMatrixFromRodrigues converts an axis-angle vector into a 3x3 rotation matrix.
func RotationMatrixFromRodrigues(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-12 {
		// First order expansion, R = I + [r]x.
		return mat.NewDense(3, 3, []float64{
			1, -rvec.Z, rvec.Y,
			rvec.Z, 1, -rvec.X,
			-rvec.Y, rvec.X, 1,
		})
	}
	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
}

// RodriguesFromRotationMatrix converts a 3x3 rotation matrix into an axis-angle vector.
func RodriguesFromRotationMatrix(rot mat.Matrix) r3.Vector {
	cosTheta := (rot.At(0, 0) + rot.At(1, 1) + rot.At(2, 2) - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)
	axis := r3.Vector{
		X: rot.At(2, 1) - rot.At(1, 2),
		Y: rot.At(0, 2) - rot.At(2, 0),
		Z: rot.At(1, 0) - rot.At(0, 1),
	}

	sinTheta := math.Sin(theta)
	switch {
	case theta < 1e-12:
		return axis.Mul(0.5)
	case sinTheta > 1e-6:
		return axis.Mul(theta / (2 * sinTheta))
	}

	// theta is close to pi: recover the axis from the symmetric part, R = 2kk^T - I.
	kx := math.Sqrt(math.Max(0, (rot.At(0, 0)+1)/2))
	ky := math.Sqrt(math.Max(0, (rot.At(1, 1)+1)/2))
	kz := math.Sqrt(math.Max(0, (rot.At(2, 2)+1)/2))
	switch {
	case kx >= ky && kx >= kz:
		ky = math.Copysign(ky, rot.At(0, 1))
		kz = math.Copysign(kz, rot.At(0, 2))
	case ky >= kz:
		kx = math.Copysign(kx, rot.At(0, 1))
		kz = math.Copysign(kz, rot.At(1, 2))
	default:
		kx = math.Copysign(kx, rot.At(0, 2))
		ky = math.Copysign(ky, rot.At(1, 2))
	}
	return r3.Vector{X: kx, Y: ky, Z: kz}.Normalize().Mul(theta)
}

// Apply moves a target frame point into the camera frame.
func (p Pose) Apply(pt r3.Vector) r3.Vector {
	return applyRotation(RotationMatrixFromRodrigues(p.Rotation), pt).Add(p.Translation)
}

func applyRotation(rot *mat.Dense, pt r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*pt.X + rot.At(0, 1)*pt.Y + rot.At(0, 2)*pt.Z,
		Y: rot.At(1, 0)*pt.X + rot.At(1, 1)*pt.Y + rot.At(1, 2)*pt.Z,
		Z: rot.At(2, 0)*pt.X + rot.At(2, 1)*pt.Y + rot.At(2, 2)*pt.Z,
	}
}

// ProjectPoints projects target frame points through pose, the lens distortion and the camera
// matrix, returning pixel coordinates in the same order.
func (params *PinholeCameraModel) ProjectPoints(pose Pose, pts []r3.Vector) []r2.Point {
	rot := RotationMatrixFromRodrigues(pose.Rotation)
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		cam := applyRotation(rot, pt).Add(pose.Translation)
		x, y := cam.X/cam.Z, cam.Y/cam.Z
		if params.Distortion != nil {
			x, y = params.Distortion.Transform(x, y)
		}
		out[i] = params.NormalizedToPixel(r2.Point{X: x, Y: y})
	}
	return out
}
