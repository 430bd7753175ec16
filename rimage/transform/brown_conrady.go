package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConradyParameterCount is the number of coefficients in a BrownConrady model.
const BrownConradyParameterCount = 5

// BrownConrady is the forward radial + tangential lens distortion model. Coefficients follow the
// OpenCV ordering (k1, k2, p1, p2, k3) everywhere they are listed.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// NewBrownConrady takes in a slice of floats in (k1, k2, p1, p2, k3) order. Missing trailing
// values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > BrownConradyParameterCount {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", BrownConradyParameterCount, len(inp))
	}
	padded := make([]float64, BrownConradyParameterCount)
	copy(padded, inp)
	bc := &BrownConrady{padded[0], padded[1], padded[2], padded[3], padded[4]}
	if err := bc.CheckValid(); err != nil {
		return nil, err
	}
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs. A nil model is an ideal
// lens, like everywhere else on this type.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return nil
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady coefficients must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients as (k1, k2, p1, p2, k3).
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// IsZero reports whether the model is an ideal pinhole lens.
func (bc *BrownConrady) IsZero() bool {
	return bc == nil || *bc == BrownConrady{}
}

// Transform distorts a normalized, undistorted point:
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radDist := 1.0 + r2*(bc.RadialK1+r2*(bc.RadialK2+r2*bc.RadialK3))
	xd := x*radDist + 2.0*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2.0*x*x)
	yd := y*radDist + 2.0*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2.0*y*y)
	return xd, yd
}
