package cli

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcal/config"
)

// MapAction is the corresponding Action for 'map'.
func MapAction(c *cli.Context) error {
	if c.NArg() != 4 {
		return errors.Errorf("expected 4 arguments <x> <y> <z> <roi>, got %d", c.NArg())
	}
	var coords [3]float64
	for i := range coords {
		v, err := strconv.ParseFloat(c.Args().Get(i), 64)
		if err != nil {
			return errors.Wrapf(err, "argument %d is not a number", i+1)
		}
		coords[i] = v
	}
	roi, err := strconv.Atoi(c.Args().Get(3))
	if err != nil {
		return errors.Wrap(err, "roi must be an integer")
	}

	logger := newLogger(c, "map")
	cfg, err := config.Read(c.String(configFlag), logger)
	if err != nil {
		return err
	}
	if !c.Bool(debugFlag) {
		logger.SetLevel(cfg.LogLevel)
	}
	mapper, err := cfg.Build(logger)
	if err != nil {
		return err
	}
	if !mapper.Table().Has(roi) {
		logger.Debugw("region has no measured offset, using (0, 0)", "roi", roi)
	}
	p := mapper.PixelToRobot(coords[0], coords[1], coords[2], roi)
	if p.ConvergenceFailure {
		logger.Warnw("distortion inverse did not converge, result is approximate",
			"x", coords[0], "y", coords[1])
	}
	printf(c.App.Writer, "%.4f %.4f %.4f", p.X, p.Y, p.Z)
	return nil
}
