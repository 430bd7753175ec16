package cli

import (
	"image"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcal/rimage"
	"go.viam.com/camcal/rimage/calibration"
	"go.viam.com/camcal/rimage/detection/chessboard"
	"go.viam.com/camcal/rimage/transform"
)

// CalibrateAction is the corresponding Action for 'calibrate'.
func CalibrateAction(c *cli.Context) error {
	pattern, err := patternFromFlags(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, "calibrate")
	cfg := calibration.RunConfig{
		ImageDir:   c.String(imagesFlag),
		Pattern:    pattern,
		SquareSize: c.Float64(squareFlag),
		OutputPath: c.String(outFlag),
		Detector:   chessboard.Config{Enhance: c.Bool(equalizeFlag)},
		FastCheck:  c.Bool(fastCheckFlag),
		Solver: calibration.SolverConfig{
			MaxIterations: c.Int(maxIterationsFlag),
			Tolerance:     calibration.DefaultSolverConfig.Tolerance,
			FixK3:         c.Bool(fixK3Flag),
			ZeroTangent:   c.Bool(zeroTangentFlag),
		},
	}
	if !(cfg.SquareSize > 0) {
		return errors.Errorf("--%s must be positive, got %v", squareFlag, cfg.SquareSize)
	}

	res, batch, err := calibration.Run(c.Context, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "calibration failed")
	}

	printf(c.App.Writer, "found chessboard in %d of %d images", len(batch.Observations), batch.Total)
	for _, name := range sortedStrategies(batch.Strategies) {
		logger.Debugw("strategy wins", "strategy", name, "images", batch.Strategies[name])
	}
	printModel(c.App.Writer, res.Model, &res.MeanError)
	printf(c.App.Writer, "rms error: %.4f px, worst image: %.4f px", res.RMSError, res.MaxViewError)
	printf(c.App.Writer, "iterations: %d, converged: %t", res.Iterations, res.Converged)
	printf(c.App.Writer, "saved to %s", cfg.OutputPath)

	if plotPath := c.String(plotFlag); plotPath != "" {
		sources := lo.Map(batch.Observations, func(o calibration.Observation, _ int) string { return o.Source })
		if err := calibration.PlotViewErrors(res, sources, plotPath); err != nil {
			return err
		}
		printf(c.App.Writer, "error plot saved to %s", plotPath)
	}
	return nil
}

// DetectAction is the corresponding Action for 'detect'.
func DetectAction(c *cli.Context) error {
	pattern, err := patternFromFlags(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, "detect")
	img, err := rimage.ReadImageFromFile(c.String(imageFlag))
	if err != nil {
		return err
	}
	detector := chessboard.NewDetector(chessboard.Config{Enhance: c.Bool(equalizeFlag)}, logger)
	det, err := detector.Detect(c.Context, img, pattern)
	if err != nil {
		return errors.Wrapf(err, "strategies tried: %v", detector.Strategies())
	}
	printf(c.App.Writer, "found %dx%d corners with %s", pattern.X, pattern.Y, det.Strategy)
	for i, p := range det.Corners {
		printf(c.App.Writer, "%d\t%.3f\t%.3f", i, p.X, p.Y)
	}
	if overlayPath := c.String(overlayFlag); overlayPath != "" {
		if err := rimage.WriteImageToFile(overlayPath, chessboard.PlotCorners(img, det.Corners)); err != nil {
			return err
		}
	}
	return nil
}

// ShowAction is the corresponding Action for 'show'.
func ShowAction(c *cli.Context) error {
	model, meta, err := calibration.LoadWithMetadata(c.String(calibrationFlag))
	if err != nil {
		return err
	}
	if meta.Width > 0 && meta.Height > 0 {
		printf(c.App.Writer, "resolution: %v", image.Point{meta.Width, meta.Height})
	}
	printModel(c.App.Writer, model, meta.ReprojectionError)
	return nil
}

func printModel(w io.Writer, model *transform.PinholeCameraModel, meanErr *float64) {
	printf(w, "fx: %.4f fy: %.4f", model.Fx, model.Fy)
	printf(w, "cx: %.4f cy: %.4f", model.Ppx, model.Ppy)
	if bc, err := model.BrownConrady(); err == nil {
		printf(w, "k1: %.6f k2: %.6f p1: %.6f p2: %.6f k3: %.6f",
			bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3)
	}
	if meanErr != nil {
		printf(w, "mean reprojection error: %.4f px", *meanErr)
	}
}

func sortedStrategies(counts map[string]int) []string {
	names := lo.Keys(counts)
	sort.Strings(names)
	return names
}
