package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcal/utils"
)

// rectangleSamples is the grid density used to trace the undistorted image border.
const rectangleSamples = 9

type floatRect struct {
	x0, y0, x1, y1 float64
}

// undistortedRectangles samples the image on a grid, undistorts every sample onto the normalized
// plane and returns the largest axis aligned rectangle containing only valid pixels (inner) and the
// smallest one containing all of them (outer).
func (params *PinholeCameraModel) undistortedRectangles() (inner, outer floatRect) {
	inner = floatRect{-math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	outer = floatRect{math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
	w, h := float64(params.Width-1), float64(params.Height-1)
	for iy := 0; iy < rectangleSamples; iy++ {
		for ix := 0; ix < rectangleSamples; ix++ {
			raw := r2.Point{X: float64(ix) * w / (rectangleSamples - 1), Y: float64(iy) * h / (rectangleSamples - 1)}
			// a convergence failure still leaves the best estimate, good enough for bounds
			undistorted, _ := params.UndistortPoint(raw)
			p := params.PixelToNormalized(undistorted)

			outer.x0 = math.Min(outer.x0, p.X)
			outer.y0 = math.Min(outer.y0, p.Y)
			outer.x1 = math.Max(outer.x1, p.X)
			outer.y1 = math.Max(outer.y1, p.Y)
			if ix == 0 {
				inner.x0 = math.Max(inner.x0, p.X)
			}
			if ix == rectangleSamples-1 {
				inner.x1 = math.Min(inner.x1, p.X)
			}
			if iy == 0 {
				inner.y0 = math.Max(inner.y0, p.Y)
			}
			if iy == rectangleSamples-1 {
				inner.y1 = math.Min(inner.y1, p.Y)
			}
		}
	}
	return inner, outer
}

// OptimalNewCameraMatrix returns a camera matrix for undistorted output of size newSize. With
// alpha=0 every output pixel is valid (the frame is zoomed in). With alpha=1 every source pixel is
// kept (black borders appear). Values in between interpolate. The second return value is the
// rectangle of the output image that contains only valid pixels.
//
// This path is for offline full frame undistortion only.
func (params *PinholeCameraModel) OptimalNewCameraMatrix(alpha float64, newSize image.Point) (*PinholeCameraIntrinsics, image.Rectangle, error) {
	if err := params.CheckValid(); err != nil {
		return nil, image.Rectangle{}, err
	}
	if params.Width <= 1 || params.Height <= 1 {
		return nil, image.Rectangle{}, errors.Errorf("camera model has no usable resolution (%d, %d)", params.Width, params.Height)
	}
	if alpha < 0 || alpha > 1 {
		return nil, image.Rectangle{}, errors.Errorf("alpha must be within [0, 1], got %v", alpha)
	}
	if newSize.X <= 1 || newSize.Y <= 1 {
		newSize = image.Point{params.Width, params.Height}
	}

	inner, outer := params.undistortedRectangles()
	nw, nh := float64(newSize.X-1), float64(newSize.Y-1)

	fx0 := nw / (inner.x1 - inner.x0)
	fy0 := nh / (inner.y1 - inner.y0)
	cx0 := -fx0 * inner.x0
	cy0 := -fy0 * inner.y0

	fx1 := nw / (outer.x1 - outer.x0)
	fy1 := nh / (outer.y1 - outer.y0)
	cx1 := -fx1 * outer.x0
	cy1 := -fy1 * outer.y0

	newParams := &PinholeCameraIntrinsics{
		Width:  newSize.X,
		Height: newSize.Y,
		Fx:     fx0*(1-alpha) + fx1*alpha,
		Fy:     fy0*(1-alpha) + fy1*alpha,
		Ppx:    cx0*(1-alpha) + cx1*alpha,
		Ppy:    cy0*(1-alpha) + cy1*alpha,
	}

	// express the inner rectangle in the new pixel frame
	roi := image.Rect(
		int(math.Round(inner.x0*newParams.Fx+newParams.Ppx)),
		int(math.Round(inner.y0*newParams.Fy+newParams.Ppy)),
		int(math.Round(inner.x1*newParams.Fx+newParams.Ppx)),
		int(math.Round(inner.y1*newParams.Fy+newParams.Ppy)),
	).Intersect(image.Rect(0, 0, newSize.X, newSize.Y))

	return newParams, roi, nil
}

// UndistortImage resamples img, which must match the model's resolution, into an image with
// camera matrix newParams and no distortion. Nearest neighbor sampling is used; output pixels
// that come from outside the source are left black.
//
// This path is for offline full frame undistortion only.
func (params *PinholeCameraModel) UndistortImage(img image.Image, newParams *PinholeCameraIntrinsics) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	bounds := img.Bounds()
	if params.Width != bounds.Dx() || params.Height != bounds.Dy() {
		return nil, errors.Errorf("img dimension and intrinsics don't match Image(%d,%d) != Intrinsics(%d,%d)",
			bounds.Dx(), bounds.Dy(), params.Width, params.Height)
	}
	if newParams == nil {
		newParams = params.PinholeCameraIntrinsics
	}
	if err := newParams.CheckValid(); err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, newParams.Width, newParams.Height))
	utils.ParallelForEachPixel(image.Point{newParams.Width, newParams.Height}, func(u, v int) {
		normalized := newParams.PixelToNormalized(r2.Point{X: float64(u), Y: float64(v)})
		x, y := normalized.X, normalized.Y
		if params.Distortion != nil {
			x, y = params.Distortion.Transform(x, y)
		}
		src := params.NormalizedToPixel(r2.Point{X: x, Y: y})
		sx, sy := int(math.Round(src.X)), int(math.Round(src.Y))
		if sx < 0 || sy < 0 || sx >= params.Width || sy >= params.Height {
			return
		}
		out.Set(u, v, img.At(bounds.Min.X+sx, bounds.Min.Y+sy))
	})
	return out, nil
}
