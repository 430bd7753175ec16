package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is the 5 coefficient radial + tangential model used by OpenCV.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// NoDistortionType is an ideal pinhole lens.
	NoDistortionType = DistortionType("no_distortion")
)

// ErrConvergenceFailure is an advisory error: an iterative inverse ran out of iterations before
// its residual dropped below tolerance. The value returned alongside it is the best estimate.
var ErrConvergenceFailure = errors.New("distortion inverse did not converge")

// Distorter defines a Transform that takes an undistorted normalized point and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// Inverter is implemented by distortion models that can undo their own Transform. converged is
// false when the iteration cap was reached first.
type Inverter interface {
	Invert(xd, yd float64) (xu, yu float64, converged bool)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case NoDistortionType:
		if len(parameters) != 0 {
			return nil, InvalidDistortionError("no_distortion takes no parameters")
		}
		return &BrownConrady{}, nil
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}
