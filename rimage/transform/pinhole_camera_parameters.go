package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs. A zero size is
// allowed since a calibration archive may not record the resolution it was fitted at.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx and ppy out of a 3x3 camera matrix. Skew
// is not modeled and must be zero, as must the projective row apart from the trailing 1.
func NewPinholeCameraIntrinsicsFromMatrix(m mat.Matrix, width, height int) (*PinholeCameraIntrinsics, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	if m.At(0, 1) != 0 || m.At(1, 0) != 0 || m.At(2, 0) != 0 || m.At(2, 1) != 0 || m.At(2, 2) != 1 {
		return nil, errors.Errorf("camera matrix is not a zero-skew pinhole matrix: %v", mat.Formatted(m, mat.Squeeze()))
	}
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     m.At(0, 0),
		Fy:     m.At(1, 1),
		Ppx:    m.At(0, 2),
		Ppy:    m.At(1, 2),
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// PixelToNormalized maps a pixel to the z=1 image plane.
func (params *PinholeCameraIntrinsics) PixelToNormalized(pt r2.Point) r2.Point {
	return r2.Point{X: (pt.X - params.Ppx) / params.Fx, Y: (pt.Y - params.Ppy) / params.Fy}
}

// NormalizedToPixel maps a point on the z=1 image plane to pixel coordinates.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(pt r2.Point) r2.Point {
	return r2.Point{X: pt.X*params.Fx + params.Ppx, Y: pt.Y*params.Fy + params.Ppy}
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid validates both the intrinsics and the distortion model, if any.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		if params.Distortion == nil {
			return u, v
		}
		x := (u - params.Ppx) / params.Fx
		y := (v - params.Ppy) / params.Fy
		x, y = params.Distortion.Transform(x, y)
		x = x*params.Fx + params.Ppx
		y = y*params.Fy + params.Ppy
		return x, y
	}
}

// DistortPoint moves an ideal pinhole pixel to where the lens actually images it.
func (params *PinholeCameraModel) DistortPoint(pt r2.Point) r2.Point {
	x, y := params.DistortionMap()(pt.X, pt.Y)
	return r2.Point{X: x, Y: y}
}

// UndistortPoint maps a raw pixel to the pixel it would occupy under an ideal pinhole projection
// with the same camera matrix. When the iterative inverse hits its iteration cap the best estimate
// is still returned, together with ErrConvergenceFailure. Any other error means the model cannot
// be inverted and the returned point is the input.
func (params *PinholeCameraModel) UndistortPoint(pt r2.Point) (r2.Point, error) {
	if params.Distortion == nil {
		return pt, nil
	}
	inverter, ok := params.Distortion.(Inverter)
	if !ok {
		return pt, errors.Errorf("distortion model %q cannot be inverted", params.Distortion.ModelType())
	}
	normalized := params.PixelToNormalized(pt)
	xu, yu, converged := inverter.Invert(normalized.X, normalized.Y)
	out := params.NormalizedToPixel(r2.Point{X: xu, Y: yu})
	if !converged {
		return out, ErrConvergenceFailure
	}
	return out, nil
}

// BrownConrady returns the distortion coefficients as a BrownConrady model, zero when the model
// has no distortion.
func (params *PinholeCameraModel) BrownConrady() (*BrownConrady, error) {
	switch d := params.Distortion.(type) {
	case nil:
		return &BrownConrady{}, nil
	case *BrownConrady:
		return d, nil
	default:
		return nil, errors.Errorf("distortion model %q is not brown_conrady", d.ModelType())
	}
}
