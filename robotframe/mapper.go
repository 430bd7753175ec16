package robotframe

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcal/rimage/transform"
)

// Transform is the fixed scale and translation from corrected pixels to robot millimetres.
type Transform struct {
	PixelToMM float64 `json:"pixel_to_mm"`
	XOffset   float64 `json:"x_offset"`
	YOffset   float64 `json:"y_offset"`
}

// CheckValid checks the scale is a positive finite number and the offsets are finite.
func (t Transform) CheckValid() error {
	if !(t.PixelToMM > 0) || math.IsInf(t.PixelToMM, 0) {
		return errors.Errorf("pixel_to_mm must be positive, got %v", t.PixelToMM)
	}
	for _, v := range []float64{t.XOffset, t.YOffset} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("robot frame offsets must be finite, got (%v, %v)", t.XOffset, t.YOffset)
		}
	}
	return nil
}

// RobotPoint is a position in the robot frame. ConvergenceFailure is set when the lens distortion
// could not be fully inverted; X and Y are then computed from the best estimate available.
type RobotPoint struct {
	X                  float64
	Y                  float64
	Z                  float64
	ConvergenceFailure bool
}

func (p RobotPoint) String() string {
	if p.ConvergenceFailure {
		return fmt.Sprintf("(%.4f, %.4f, %.4f) [distortion inverse did not converge]", p.X, p.Y, p.Z)
	}
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", p.X, p.Y, p.Z)
}

// Mapper turns pixels into robot coordinates. Its state is fixed at construction, so one Mapper
// may be shared by any number of goroutines.
type Mapper struct {
	model     *transform.PinholeCameraModel
	table     *ROITable
	transform Transform
}

// NewMapper validates and captures the camera model, ROI table and robot frame transform. A nil
// table is treated as empty.
func NewMapper(model *transform.PinholeCameraModel, table *ROITable, frame Transform) (*Mapper, error) {
	if err := model.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid camera model")
	}
	if model.Distortion != nil {
		if _, ok := model.Distortion.(transform.Inverter); !ok {
			return nil, errors.Errorf("distortion model %q cannot be inverted", model.Distortion.ModelType())
		}
	}
	if err := frame.CheckValid(); err != nil {
		return nil, err
	}
	if table == nil {
		table = NewROITable(nil)
	}
	return &Mapper{model: model, table: table, transform: frame}, nil
}

// Table returns the mapper's ROI table.
func (m *Mapper) Table() *ROITable {
	return m.table
}

// PixelToRobot maps the raw pixel (x, y) seen in region roi, at depth z, into the robot frame:
//
//	robot_x = (ux + diff_x) * pixel_to_mm + x_offset
//	robot_y = (uy + diff_y) * pixel_to_mm + y_offset
//	robot_z = z
//
// where (ux, uy) is the undistorted pixel measured from the principal point and (diff_x, diff_y)
// is the region's offset, (0, 0) for unknown regions. It never fails.
//
// Because ux and uy are relative to (cx, cy), the principal point maps to (x_offset, y_offset).
// Offsets measured against absolute undistorted pixels need cx*pixel_to_mm added to x_offset and
// cy*pixel_to_mm added to y_offset to give the same robot coordinates here.
func (m *Mapper) PixelToRobot(x, y, z float64, roi int) RobotPoint {
	return m.pixelToRobot(x, y, z, m.table.Lookup(roi))
}

func (m *Mapper) pixelToRobot(x, y, z float64, diff r2.Point) RobotPoint {
	undistorted, err := m.model.UndistortPoint(r2.Point{X: x, Y: y})
	ux := undistorted.X - m.model.Ppx
	uy := undistorted.Y - m.model.Ppy
	return RobotPoint{
		X:                  (ux+diff.X)*m.transform.PixelToMM + m.transform.XOffset,
		Y:                  (uy+diff.Y)*m.transform.PixelToMM + m.transform.YOffset,
		Z:                  z,
		ConvergenceFailure: errors.Is(err, transform.ErrConvergenceFailure),
	}
}
