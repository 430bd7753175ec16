// Package config reads the deployment file that ties a saved calibration to the robot frame.
//
// The file is JSON. Environment references such as ${CALIB_DIR} are expanded before decoding:
//
//	{
//	  "calibration_file": "${CALIB_DIR}/calibration.json",
//	  "robot_frame": {"pixel_to_mm": 0.5, "x_offset": 10, "y_offset": -3},
//	  "roi": [{"index": 0, "diff_x": 1.5, "diff_y": -0.5}],
//	  "log_level": "warn"
//	}
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage/calibration"
	"go.viam.com/camcal/robotframe"
)

// ROIEntry is the measured offset for one region of the field of view.
type ROIEntry struct {
	Index int     `json:"index"`
	DiffX float64 `json:"diff_x"`
	DiffY float64 `json:"diff_y"`
}

// Config is a deployment of the pixel to robot mapper.
type Config struct {
	CalibrationFile string               `json:"calibration_file"`
	RobotFrame      robotframe.Transform `json:"robot_frame"`
	ROI             []ROIEntry           `json:"roi"`
	// LogLevel is one of debug, info, warn or error. It defaults to info.
	LogLevel logging.Level `json:"log_level"`

	// ConfigFilePath is where the config was read from, if anywhere. Relative calibration
	// paths are resolved against its directory.
	ConfigFilePath string `json:"-"`
}

// Read expands environment references in the file at filePath and decodes it.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader decodes and validates a config. originalPath names the file the reader came from
// and may be empty. Keys the config does not know are logged and otherwise ignored.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var attributes map[string]interface{}
	if err := dec.Decode(&attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode config from json")
	}

	cfg := Config{ConfigFilePath: originalPath}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		Metadata:   &md,
		DecodeHook: levelHook,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if len(md.Unused) != 0 {
		sort.Strings(md.Unused)
		logger.Warnw("ignoring unknown config keys", "path", originalPath, "keys", md.Unused)
	}

	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config; path names it in error messages.
func (c *Config) Validate(path string) error {
	if c.CalibrationFile == "" {
		return newFieldRequiredError(path, "calibration_file")
	}
	if err := c.RobotFrame.CheckValid(); err != nil {
		return errors.Wrapf(err, "%s.robot_frame", path)
	}
	seen := make(map[int]bool, len(c.ROI))
	for i, entry := range c.ROI {
		if seen[entry.Index] {
			return errors.Errorf("%s.roi.%d: duplicate region index %d", path, i, entry.Index)
		}
		seen[entry.Index] = true
	}
	return nil
}

// CalibrationPath is the calibration file, resolved against the config file's directory when
// it is relative.
func (c *Config) CalibrationPath() string {
	if filepath.IsAbs(c.CalibrationFile) || c.ConfigFilePath == "" {
		return c.CalibrationFile
	}
	return filepath.Join(filepath.Dir(c.ConfigFilePath), c.CalibrationFile)
}

// ROITable builds the lookup table for the configured regions.
func (c *Config) ROITable() *robotframe.ROITable {
	return robotframe.NewROITable(lo.SliceToMap(c.ROI, func(e ROIEntry) (int, r2.Point) {
		return e.Index, r2.Point{X: e.DiffX, Y: e.DiffY}
	}))
}

// Build loads the calibration and returns a mapper ready for concurrent use.
func (c *Config) Build(logger logging.Logger) (*robotframe.Mapper, error) {
	calibPath := c.CalibrationPath()
	model, meta, err := calibration.LoadWithMetadata(calibPath)
	if err != nil {
		return nil, err
	}
	table := c.ROITable()
	logger.Infow("loaded calibration",
		"path", calibPath,
		"fx", model.Fx, "fy", model.Fy, "ppx", model.Ppx, "ppy", model.Ppy,
		"reprojection_error", meta.ReprojectionError,
		"regions", table.Len(),
	)
	return robotframe.NewMapper(model, table, c.RobotFrame)
}

var levelType = reflect.TypeOf(logging.INFO)

// levelHook lets log levels be written by name.
func levelHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != levelType || from.Kind() != reflect.String {
		return data, nil
	}
	return logging.LevelFromString(reflect.ValueOf(data).String())
}

func newFieldRequiredError(path, field string) error {
	return errors.Errorf("%s: %q is required", path, field)
}
