package calibration

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/logging"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib.json")
	mtx := mat.NewDense(3, 3, []float64{
		417.53199999999998, 0, 426.886,
		0, 417.532 + 1e-13, 238.556,
		0, 0, 1,
	})
	dist := []float64{-0.0557, 0.06582e-3, math.Nextafter(1e-4, 1), -2.5e-5, 1.0 / 3}

	test.That(t, Save(path, mtx, dist), test.ShouldBeNil)
	model, err := Load(path)
	test.That(t, err, test.ShouldBeNil)

	loaded := model.GetCameraMatrix()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, loaded.At(i, j), test.ShouldEqual, mtx.At(i, j))
		}
	}
	test.That(t, model.Distortion.Parameters(), test.ShouldResemble, dist)
	test.That(t, model.Width, test.ShouldEqual, 0)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 1)
}

func TestSaveResult(t *testing.T) {
	logger := logging.NewTestLogger(t)
	res, err := Solve(syntheticObservations(testCamera(nil), 0.05, 5), testImageSize, DefaultSolverConfig, logger)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "calib.json")
	test.That(t, SaveResult(path, res), test.ShouldBeNil)
	model, meta, err := LoadWithMetadata(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Width, test.ShouldEqual, 640)
	test.That(t, meta.Height, test.ShouldEqual, 480)
	test.That(t, meta.ReprojectionError, test.ShouldNotBeNil)
	test.That(t, *meta.ReprojectionError, test.ShouldEqual, res.MeanError)
	test.That(t, model.Fx, test.ShouldEqual, res.Model.Fx)
	test.That(t, model.Distortion.Parameters(), test.ShouldResemble, res.DistortionCoefficients())
}

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calib.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestLoadShapeMismatch(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{"2x2 matrix", `{"mtx":{"rows":2,"cols":2,"data":[1,0,0,1]},"dist":{"rows":1,"cols":5,"data":[0,0,0,0,0]}}`},
		{"data disagrees with shape", `{"mtx":{"rows":3,"cols":3,"data":[1,0,0,0,1,0,0,0]},"dist":{"rows":1,"cols":5,"data":[0,0,0,0,0]}}`},
		{"short dist", `{"mtx":{"rows":3,"cols":3,"data":[1,0,0,0,1,0,0,0,1]},"dist":{"rows":1,"cols":4,"data":[0,0,0,0]}}`},
		{"missing dist", `{"mtx":{"rows":3,"cols":3,"data":[1,0,0,0,1,0,0,0,1]}}`},
		{"missing mtx", `{"dist":{"rows":1,"cols":5,"data":[0,0,0,0,0]}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			model, err := Load(writeFile(t, tc.contents))
			test.That(t, err, test.ShouldWrap, ErrShapeMismatch)
			test.That(t, model, test.ShouldBeNil)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	model, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, model, test.ShouldBeNil)

	model, err = Load(writeFile(t, "not json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, model, test.ShouldBeNil)

	// skewed matrices are not representable
	model, err = Load(writeFile(t,
		`{"mtx":{"rows":3,"cols":3,"data":[500,2,320,0,500,240,0,0,1]},"dist":{"rows":1,"cols":5,"data":[0,0,0,0,0]}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrShapeMismatch), test.ShouldBeFalse)
	test.That(t, model, test.ShouldBeNil)
}

func TestLoadColumnDistortion(t *testing.T) {
	model, err := Load(writeFile(t,
		`{"mtx":{"rows":3,"cols":3,"data":[500,0,320,0,510,240,0,0,1]},"dist":{"rows":5,"cols":1,"data":[0.1,0.2,0.3,0.4,0.5]}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Fy, test.ShouldEqual, 510)
	test.That(t, model.Distortion.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
}

func TestSaveRejectsBadShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calib.json")
	err := Save(path, mat.NewDense(2, 2, nil), make([]float64, 5))
	test.That(t, err, test.ShouldWrap, ErrShapeMismatch)
	err = Save(path, mat.NewDense(3, 3, nil), make([]float64, 4))
	test.That(t, err, test.ShouldWrap, ErrShapeMismatch)
	_, err = os.Stat(path)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
