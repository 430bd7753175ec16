// Package calibration estimates a camera's intrinsic model from views of a planar checkerboard and
// persists the result.
package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientObservations means there is nothing to calibrate from.
	ErrInsufficientObservations = errors.New("insufficient observations for calibration")
	// ErrInconsistentObservation means point counts or image sizes disagree within or across views.
	ErrInconsistentObservation = errors.New("inconsistent calibration observation")
	// ErrNoDetections means no image in a batch contained the calibration target.
	ErrNoDetections = errors.New("no calibration target detected in any image")
)

// minPointsPerView is the number of correspondences needed for a homography.
const minPointsPerView = 4

// Observation pairs target frame points with the pixels they were detected at, index for index.
type Observation struct {
	ObjectPoints []r3.Vector
	ImagePoints  []r2.Point
	// Source names where the view came from, usually an image path.
	Source string
}

// ObjectPoints returns the inner corners of a board with pattern.X columns and pattern.Y rows on
// the z=0 plane. Index row*cols+col holds (col*squareSize, row*squareSize, 0), which is the order
// the chessboard detector reports corners in.
func ObjectPoints(pattern image.Point, squareSize float64) []r3.Vector {
	pts := make([]r3.Vector, 0, pattern.X*pattern.Y)
	for row := 0; row < pattern.Y; row++ {
		for col := 0; col < pattern.X; col++ {
			pts = append(pts, r3.Vector{X: float64(col) * squareSize, Y: float64(row) * squareSize})
		}
	}
	return pts
}

// planar returns the x, y components of target points, which all lie on z=0.
func planar(pts []r3.Vector) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return out
}

// validateObservations checks the invariants every solve relies on: at least one view, and the
// same number of points (at least four) on both sides of every view.
func validateObservations(observations []Observation) error {
	if len(observations) == 0 {
		return ErrInsufficientObservations
	}
	count := len(observations[0].ObjectPoints)
	for i, obs := range observations {
		if len(obs.ObjectPoints) != len(obs.ImagePoints) {
			return errors.Wrapf(ErrInconsistentObservation, "view %d has %d object points and %d image points",
				i, len(obs.ObjectPoints), len(obs.ImagePoints))
		}
		if len(obs.ObjectPoints) != count {
			return errors.Wrapf(ErrInconsistentObservation, "view %d has %d points, view 0 has %d",
				i, len(obs.ObjectPoints), count)
		}
		if count < minPointsPerView {
			return errors.Wrapf(ErrInconsistentObservation, "view %d has %d points, need at least %d",
				i, count, minPointsPerView)
		}
		for _, p := range obs.ObjectPoints {
			if p.Z != 0 {
				return errors.Wrapf(ErrInconsistentObservation, "view %d has a non planar target point %v", i, p)
			}
		}
	}
	return nil
}
