package cli

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/rimage"
	"go.viam.com/camcal/rimage/calibration"
	"go.viam.com/camcal/rimage/detection/chessboard"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	err := NewApp(out, errOut).Run(append([]string{"camcal"}, args...))
	return out.String(), err
}

func writeTestCalibration(t *testing.T, dir string, fx, cx, cy float64) string {
	t.Helper()
	path := filepath.Join(dir, "calibration.json")
	mtx := mat.NewDense(3, 3, []float64{fx, 0, cx, 0, fx, cy, 0, 0, 1})
	test.That(t, calibration.Save(path, mtx, []float64{0, 0, 0, 0, 0}), test.ShouldBeNil)
	return path
}

func TestTargetAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.png")
	out, err := runApp(t, "target", "--cols", "4", "--rows", "3", "--square-px", "10", "--margin-px", "5", "--out", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote 60x50 target (5 by 4 squares)")

	img, err := rimage.ReadImageFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{60, 50})

	_, err = runApp(t, "target", "--cols", "1", "--rows", "3", "--out", path)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "target", "--cols", "4", "--out", path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDetectAction(t *testing.T) {
	dir := t.TempDir()
	board, _, err := chessboard.RenderBoard(image.Point{5, 4}, chessboard.BoardStyle{SquarePx: 24, MarginPx: 40})
	test.That(t, err, test.ShouldBeNil)
	boardPath := filepath.Join(dir, "board.png")
	test.That(t, rimage.WriteImageToFile(boardPath, board), test.ShouldBeNil)

	overlayPath := filepath.Join(dir, "overlay.png")
	out, err := runApp(t, "detect", "--image", boardPath, "--cols", "5", "--rows", "4", "--overlay", overlayPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "found 5x4 corners with")
	_, err = os.Stat(overlayPath)
	test.That(t, err, test.ShouldBeNil)

	blank := image.NewGray(image.Rect(0, 0, 200, 160))
	blankPath := filepath.Join(dir, "blank.png")
	test.That(t, rimage.WriteImageToFile(blankPath, blank), test.ShouldBeNil)
	_, err = runApp(t, "detect", "--image", blankPath, "--cols", "5", "--rows", "4")
	test.That(t, errors.Is(err, chessboard.ErrNotFound), test.ShouldBeTrue)
}

func TestShowAction(t *testing.T) {
	path := writeTestCalibration(t, t.TempDir(), 417.532, 426.886, 238.556)
	out, err := runApp(t, "show", "--calibration", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "fx: 417.5320 fy: 417.5320")
	test.That(t, out, test.ShouldContainSubstring, "cx: 426.8860 cy: 238.5560")
	test.That(t, out, test.ShouldNotContainSubstring, "mean reprojection error")

	_, err = runApp(t, "show", "--calibration", filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMapAction(t *testing.T) {
	dir := t.TempDir()
	writeTestCalibration(t, dir, 417.532, 426.886, 238.556)
	configPath := filepath.Join(dir, "robot.json")
	test.That(t, os.WriteFile(configPath, []byte(`{
		"calibration_file": "calibration.json",
		"robot_frame": {"pixel_to_mm": 0.5, "x_offset": 10, "y_offset": -3},
		"roi": [{"index": 2, "diff_x": 0.75, "diff_y": 3}]
	}`), 0o600), test.ShouldBeNil)

	out, err := runApp(t, "map", "--config", configPath, "500", "200", "42.5", "2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "46.9320 -20.7780 42.5000\n")

	// the principal point maps to the offsets in an unmeasured region
	out, err = runApp(t, "map", "--config", configPath, "426.886", "238.556", "100", "7")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "10.0000 -3.0000 100.0000\n")

	_, err = runApp(t, "map", "--config", configPath, "500", "200", "42.5")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "map", "--config", configPath, "500", "abc", "42.5", "1")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "map", "--config", configPath, "500", "200", "42.5", "1.5")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUndistortAction(t *testing.T) {
	dir := t.TempDir()
	calibPath := writeTestCalibration(t, dir, 50, 31.5, 23.5)
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	inPath := filepath.Join(dir, "in.png")
	test.That(t, rimage.WriteImageToFile(inPath, src), test.ShouldBeNil)

	outPath := filepath.Join(dir, "out.png")
	out, err := runApp(t, "undistort", "--calibration", calibPath, "--in", inPath, "--out", outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote (64,48) image")
	img, err := rimage.ReadImageFromFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{64, 48})

	croppedPath := filepath.Join(dir, "cropped.png")
	_, err = runApp(t, "undistort", "--calibration", calibPath, "--in", inPath, "--out", croppedPath, "--crop")
	test.That(t, err, test.ShouldBeNil)
	cropped, err := rimage.ReadImageFromFile(croppedPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cropped.Bounds().Dx(), test.ShouldBeLessThanOrEqualTo, 64)
	test.That(t, cropped.Bounds().Dy(), test.ShouldBeLessThanOrEqualTo, 48)

	_, err = runApp(t, "undistort", "--calibration", calibPath, "--in", inPath, "--out", outPath, "--alpha", "2")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCalibrateActionNoImages(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "calibration.json")
	_, err := runApp(t, "calibrate", "--images", dir, "--cols", "9", "--rows", "6", "--square", "0.025", "--out", outPath)
	test.That(t, errors.Is(err, calibration.ErrNoDetections), test.ShouldBeTrue)
	_, err = os.Stat(outPath)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	_, err = runApp(t, "calibrate", "--images", dir, "--cols", "9", "--rows", "6", "--square", "-1", "--out", outPath)
	test.That(t, err, test.ShouldNotBeNil)
}
