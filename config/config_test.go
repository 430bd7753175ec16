package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage/calibration"
	"go.viam.com/camcal/robotframe"
)

const sampleConfig = `{
	"calibration_file": "calibration.json",
	"robot_frame": {"pixel_to_mm": 0.5, "x_offset": 10, "y_offset": -3},
	"roi": [
		{"index": 0, "diff_x": 1.5, "diff_y": -0.5},
		{"index": 2, "diff_x": 0.75, "diff_y": 3}
	]
}`

func writeCalibration(t *testing.T, dir string) {
	t.Helper()
	mtx := mat.NewDense(3, 3, []float64{
		417.532, 0, 426.886,
		0, 417.532, 238.556,
		0, 0, 1,
	})
	err := calibration.Save(filepath.Join(dir, "calibration.json"), mtx, []float64{0, 0, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
}

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "robot.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestReadAndBuild(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	writeCalibration(t, dir)

	cfg, err := Read(writeConfig(t, dir, sampleConfig), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.RobotFrame, test.ShouldResemble, robotframe.Transform{PixelToMM: 0.5, XOffset: 10, YOffset: -3})
	test.That(t, cfg.ROI, test.ShouldHaveLength, 2)
	test.That(t, cfg.CalibrationPath(), test.ShouldEqual, filepath.Join(dir, "calibration.json"))
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.INFO)

	table := cfg.ROITable()
	test.That(t, table.Indices(), test.ShouldResemble, []int{0, 2})
	test.That(t, table.Lookup(2), test.ShouldResemble, r2.Point{X: 0.75, Y: 3})

	mapper, err := cfg.Build(logger)
	test.That(t, err, test.ShouldBeNil)

	p := mapper.PixelToRobot(500, 200, 42.5, 2)
	test.That(t, p.X, test.ShouldAlmostEqual, (500-426.886+0.75)*0.5+10)
	test.That(t, p.Y, test.ShouldAlmostEqual, (200-238.556+3)*0.5-3)
	test.That(t, p.Z, test.ShouldEqual, 42.5)

	// unconfigured regions get no correction
	test.That(t, mapper.PixelToRobot(500, 200, 1, 9), test.ShouldResemble, mapper.PixelToRobot(500, 200, 1, -1))
}

func TestReadExpandsEnvironment(t *testing.T) {
	logger := logging.NewTestLogger(t)
	calibDir := t.TempDir()
	writeCalibration(t, calibDir)
	t.Setenv("CAMCAL_TEST_CALIB_DIR", calibDir)

	contents := strings.Replace(sampleConfig, `"calibration.json"`, `"${CAMCAL_TEST_CALIB_DIR}/calibration.json"`, 1)
	cfg, err := Read(writeConfig(t, t.TempDir(), contents), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CalibrationPath(), test.ShouldEqual, filepath.Join(calibDir, "calibration.json"))

	_, err = cfg.Build(logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestUnknownKeysWarn(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	contents := `{
		"calibration_file": "c.json",
		"robot_frame": {"pixel_to_mm": 1, "z_offset": 4},
		"colour": "blue",
		"log_level": "Warning"
	}`
	cfg, err := FromReader("", strings.NewReader(contents), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.RobotFrame.PixelToMM, test.ShouldEqual, 1)
	test.That(t, cfg.ROITable().Len(), test.ShouldEqual, 0)
	test.That(t, cfg.CalibrationPath(), test.ShouldEqual, "c.json")
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.WARN)
	test.That(t, logs.FilterMessage("ignoring unknown config keys").Len(), test.ShouldEqual, 1)
}

func TestConfigErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		contents string
		errMsg   string
	}{
		{"not json", `{"calibration_file":`, "failed to decode config from json"},
		{"missing calibration", `{"robot_frame": {"pixel_to_mm": 1}}`, "calibration_file"},
		{"zero scale", `{"calibration_file": "c.json", "robot_frame": {"pixel_to_mm": 0}}`, "pixel_to_mm"},
		{"negative scale", `{"calibration_file": "c.json", "robot_frame": {"pixel_to_mm": -2}}`, "pixel_to_mm"},
		{"fractional index", `{"calibration_file": "c.json", "robot_frame": {"pixel_to_mm": 1},
			"roi": [{"index": 1.5}]}`, "failed to decode config"},
		{"bad log level", `{"calibration_file": "c.json", "robot_frame": {"pixel_to_mm": 1},
			"log_level": "loud"}`, "unknown log level"},
		{"duplicate region", `{"calibration_file": "c.json", "robot_frame": {"pixel_to_mm": 1},
			"roi": [{"index": 3}, {"index": 3, "diff_x": 1}]}`, "duplicate region index 3"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("", strings.NewReader(tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}

	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	// a valid config pointing at a missing calibration fails to build
	cfg, err := Read(writeConfig(t, t.TempDir(), sampleConfig), logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = cfg.Build(logger)
	test.That(t, err, test.ShouldNotBeNil)
}
