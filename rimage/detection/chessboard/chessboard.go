// Package chessboard locates the inner corners of a planar checkerboard calibration target.
//
// Detection runs an ordered list of strategies and stops at the first one that returns the full
// corner grid. Later strategies are more permissive and only act as fallbacks, so the order of
// the list is significant. Found corners are then refined to sub-pixel accuracy.
package chessboard

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage"
)

// ErrNotFound is returned when no strategy could locate the full corner grid.
var ErrNotFound = errors.New("chessboard pattern not found")

// Strategy is one way of locating the corner grid in a grayscale image. Find returns the
// pattern.X*pattern.Y inner corners in row-major order, or false. It must never invent points.
type Strategy interface {
	Name() string
	Find(img *image.Gray, pattern image.Point) ([]r2.Point, bool)
}

// Config tunes a Detector.
type Config struct {
	// Enhance equalizes the histogram and blurs the image before strategies run.
	Enhance bool `json:"enhance"`
	// SkipRefine returns corners exactly as the winning strategy reported them.
	SkipRefine bool         `json:"skip_refine"`
	Refine     RefineParams `json:"refine"`
}

// Detection is a successful chessboard detection.
type Detection struct {
	Corners   []r2.Point
	Strategy  string
	ImageSize image.Point
}

// Detector runs strategies in priority order.
type Detector struct {
	strategies []Strategy
	cfg        Config
	logger     logging.Logger
}

// NewDetector returns a detector trying strategies in the given order. With no strategies it
// uses DefaultStrategies.
func NewDetector(cfg Config, logger logging.Logger, strategies ...Strategy) *Detector {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if cfg.Refine == (RefineParams{}) {
		cfg.Refine = DefaultRefineParams
	}
	return &Detector{strategies: strategies, cfg: cfg, logger: logger}
}

// Strategies returns the names of the detector's strategies in the order they are tried.
func (d *Detector) Strategies() []string {
	names := make([]string, 0, len(d.strategies))
	for _, s := range d.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Detect looks for a chessboard with pattern.X columns and pattern.Y rows of inner corners.
func (d *Detector) Detect(ctx context.Context, img image.Image, pattern image.Point) (*Detection, error) {
	if pattern.X < 2 || pattern.Y < 2 {
		return nil, errors.Errorf("pattern must have at least 2x2 inner corners, got %dx%d", pattern.X, pattern.Y)
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	gray := rimage.MakeGray(img)
	if gray.Bounds().Empty() {
		return nil, ErrNotFound
	}
	search := gray
	if d.cfg.Enhance {
		search = rimage.EnhanceForDetection(gray)
	}
	want := pattern.X * pattern.Y

	for _, strategy := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		corners, ok := strategy.Find(search, pattern)
		if !ok {
			d.logger.Debugw("chessboard strategy failed", "strategy", strategy.Name())
			continue
		}
		if len(corners) != want {
			d.logger.Warnw("chessboard strategy returned wrong corner count",
				"strategy", strategy.Name(), "want", want, "got", len(corners))
			continue
		}

		if !d.cfg.SkipRefine {
			corners = RefineCorners(rimage.GrayToFloat(gray), corners, d.cfg.Refine)
		}
		return &Detection{Corners: corners, Strategy: strategy.Name(), ImageSize: gray.Bounds().Size()}, nil
	}
	return nil, ErrNotFound
}
