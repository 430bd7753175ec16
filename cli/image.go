package cli

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcal/rimage"
	"go.viam.com/camcal/rimage/calibration"
	"go.viam.com/camcal/rimage/detection/chessboard"
)

// UndistortAction is the corresponding Action for 'undistort'.
func UndistortAction(c *cli.Context) error {
	logger := newLogger(c, "undistort")
	model, err := calibration.Load(c.String(calibrationFlag))
	if err != nil {
		return err
	}
	img, err := rimage.ReadImageFromFile(c.String(inFlag))
	if err != nil {
		return err
	}

	size := img.Bounds().Size()
	if model.Width == 0 && model.Height == 0 {
		// archives written without metadata take the resolution of the image
		model.Width, model.Height = size.X, size.Y
	}
	newParams, roi, err := model.OptimalNewCameraMatrix(c.Float64(alphaFlag), size)
	if err != nil {
		return err
	}
	undistorted, err := model.UndistortImage(img, newParams)
	if err != nil {
		return err
	}

	var out image.Image = undistorted
	if c.Bool(cropFlag) {
		if roi.Empty() {
			return errors.New("undistorted image has no valid region to crop to")
		}
		out = imaging.Crop(undistorted, roi)
	}
	logger.Debugw("undistorted", "fx", newParams.Fx, "fy", newParams.Fy, "valid", roi)
	if err := rimage.WriteImageToFile(c.String(outFlag), out); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %v image to %s", out.Bounds().Size(), c.String(outFlag))
	return nil
}

// TargetAction is the corresponding Action for 'target'.
func TargetAction(c *cli.Context) error {
	pattern, err := patternFromFlags(c)
	if err != nil {
		return err
	}
	img, _, err := chessboard.RenderBoard(pattern, chessboard.BoardStyle{
		SquarePx: c.Int(squarePxFlag),
		MarginPx: c.Int(marginPxFlag),
	})
	if err != nil {
		return err
	}
	if err := rimage.WriteImageToFile(c.String(outFlag), img); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %dx%d target (%d by %d squares) to %s",
		img.Bounds().Dx(), img.Bounds().Dy(), pattern.X+1, pattern.Y+1, c.String(outFlag))
	return nil
}
