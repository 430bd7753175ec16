package calibration

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage"
	"go.viam.com/camcal/rimage/detection/chessboard"
)

// RunConfig describes one offline calibration run over a directory of images.
type RunConfig struct {
	ImageDir   string
	Pattern    image.Point
	SquareSize float64
	// OutputPath is where the calibration archive is written. Empty skips saving.
	OutputPath string
	Detector   chessboard.Config
	// FastCheck uses the quick rejecting strategy set instead of the full fallback ladder.
	FastCheck bool
	Solver    SolverConfig
}

// Run detects the board in every image of cfg.ImageDir, solves for the camera and saves the
// result. Nothing is written unless every step succeeds.
func Run(ctx context.Context, cfg RunConfig, logger logging.Logger) (*Result, *Batch, error) {
	paths, err := rimage.ImagePathsInDir(cfg.ImageDir)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, errors.Wrapf(ErrNoDetections, "no images in %q", cfg.ImageDir)
	}

	strategies := chessboard.DefaultStrategies()
	if cfg.FastCheck {
		strategies = chessboard.FastCheckStrategies()
	}
	detector := chessboard.NewDetector(cfg.Detector, logger.Sublogger("detect"), strategies...)
	logger.Debugw("detecting", "images", len(paths), "strategies", detector.Strategies())

	batch, err := DetectAll(ctx, paths, cfg.Pattern, cfg.SquareSize, detector, logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := Solve(batch.Observations, batch.ImageSize, cfg.Solver, logger.Sublogger("solver"))
	if err != nil {
		return nil, batch, err
	}
	if cfg.OutputPath != "" {
		if err := SaveResult(cfg.OutputPath, res); err != nil {
			return nil, batch, err
		}
		logger.Infow("calibration saved", "path", cfg.OutputPath)
	}
	return res, batch, nil
}
