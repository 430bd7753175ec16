package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/rimage/transform"
)

// ErrShapeMismatch means a stored calibration does not hold a 3x3 camera matrix and five
// distortion coefficients.
var ErrShapeMismatch = errors.New("calibration archive has the wrong shape")

// storedMatrix is a row-major matrix with its shape spelled out.
type storedMatrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type archive struct {
	Matrix            *storedMatrix `json:"mtx"`
	Distortion        *storedMatrix `json:"dist"`
	Width             int           `json:"width,omitempty"`
	Height            int           `json:"height,omitempty"`
	ReprojectionError *float64      `json:"reprojection_error,omitempty"`
}

// Metadata is optional information stored next to the camera model.
type Metadata struct {
	Width             int
	Height            int
	ReprojectionError *float64
}

// Save writes the camera matrix and the (k1, k2, p1, p2, k3) distortion vector to path. The file
// is replaced atomically so a reader never sees a partial archive.
func Save(path string, mtx mat.Matrix, dist []float64) error {
	return save(path, mtx, dist, Metadata{})
}

// SaveResult writes a solved calibration, including its resolution and reprojection error.
func SaveResult(path string, res *Result) error {
	meanErr := res.MeanError
	return save(path, res.CameraMatrix(), res.DistortionCoefficients(), Metadata{
		Width:             res.Model.Width,
		Height:            res.Model.Height,
		ReprojectionError: &meanErr,
	})
}

func save(path string, mtx mat.Matrix, dist []float64, meta Metadata) error {
	if mtx == nil {
		return errors.Wrap(ErrShapeMismatch, "camera matrix is nil")
	}
	if r, c := mtx.Dims(); r != 3 || c != 3 {
		return errors.Wrapf(ErrShapeMismatch, "camera matrix is %dx%d", r, c)
	}
	if len(dist) != transform.BrownConradyParameterCount {
		return errors.Wrapf(ErrShapeMismatch, "distortion has %d coefficients", len(dist))
	}
	data := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			data = append(data, mtx.At(i, j))
		}
	}
	out := archive{
		Matrix:            &storedMatrix{Rows: 3, Cols: 3, Data: data},
		Distortion:        &storedMatrix{Rows: 1, Cols: len(dist), Data: append([]float64(nil), dist...)},
		Width:             meta.Width,
		Height:            meta.Height,
		ReprojectionError: meta.ReprojectionError,
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot encode calibration")
	}
	return writeFileAtomic(path, encoded)
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "cannot write calibration %q", path)
	}
	defer func() {
		if err != nil {
			utils.UncheckedError(os.Remove(tmp.Name()))
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		utils.UncheckedErrorFunc(tmp.Close)
		return errors.Wrapf(err, "cannot write calibration %q", path)
	}
	if err := tmp.Sync(); err != nil {
		utils.UncheckedErrorFunc(tmp.Close)
		return errors.Wrapf(err, "cannot write calibration %q", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot write calibration %q", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "cannot write calibration %q", path)
	}
	return nil
}

func (m *storedMatrix) check(name string, rows, cols int) error {
	if m == nil {
		return errors.Wrapf(ErrShapeMismatch, "missing %q", name)
	}
	if m.Rows != rows || m.Cols != cols {
		return errors.Wrapf(ErrShapeMismatch, "%q is %dx%d, want %dx%d", name, m.Rows, m.Cols, rows, cols)
	}
	if len(m.Data) != rows*cols {
		return errors.Wrapf(ErrShapeMismatch, "%q holds %d values for a %dx%d shape", name, len(m.Data), rows, cols)
	}
	return nil
}

// Load reads a calibration written by Save. On any failure the returned model is nil.
func Load(path string) (*transform.PinholeCameraModel, error) {
	model, _, err := LoadWithMetadata(path)
	return model, err
}

// LoadWithMetadata is Load, also returning the optional metadata.
func LoadWithMetadata(path string) (*transform.PinholeCameraModel, *Metadata, error) {
	//nolint:gosec
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot read calibration %q", path)
	}
	var stored archive
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, nil, errors.Wrapf(err, "cannot decode calibration %q", path)
	}
	if err := stored.Matrix.check("mtx", 3, 3); err != nil {
		return nil, nil, err
	}
	// OpenCV writes the coefficients as a row or a column
	dist := stored.Distortion
	if dist != nil && dist.Rows == transform.BrownConradyParameterCount && dist.Cols == 1 {
		dist = &storedMatrix{Rows: 1, Cols: dist.Rows, Data: dist.Data}
	}
	if err := dist.check("dist", 1, transform.BrownConradyParameterCount); err != nil {
		return nil, nil, err
	}

	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(
		mat.NewDense(3, 3, stored.Matrix.Data), stored.Width, stored.Height)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid camera matrix in %q", path)
	}
	distortion, err := transform.NewDistorter(transform.BrownConradyDistortionType, dist.Data)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid distortion in %q", path)
	}
	meta := &Metadata{Width: stored.Width, Height: stored.Height, ReprojectionError: stored.ReprojectionError}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}, meta, nil
}
