package chessboard

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/rimage"
)

// RefineParams controls iterative sub-pixel corner refinement.
type RefineParams struct {
	// WindowHalfSize is the half side of the search window; 5 gives an 11x11 window.
	WindowHalfSize int `json:"window_half_size"`
	// Epsilon stops iterating once a corner moves less than this many pixels.
	Epsilon float64 `json:"epsilon"`
	// MaxIterations caps the refinement of each corner.
	MaxIterations int `json:"max_iterations"`
}

// DefaultRefineParams is an 11x11 window, stopping at 0.001 px or 30 iterations.
var DefaultRefineParams = RefineParams{WindowHalfSize: 5, Epsilon: 0.001, MaxIterations: 30}

// RefineCorners moves each corner to the point where the image gradients in its window are
// orthogonal to the vector pointing from the corner, which is the saddle point of a checkerboard
// X junction. A corner that would leave its window, or whose window has no usable gradient,
// keeps its last stable position. The input slice is not modified.
func RefineCorners(img *mat.Dense, corners []r2.Point, params RefineParams) []r2.Point {
	out := make([]r2.Point, len(corners))
	for i, c := range corners {
		out[i] = refineCorner(img, c, params)
	}
	return out
}

func refineCorner(img *mat.Dense, start r2.Point, params RefineParams) r2.Point {
	half := params.WindowHalfSize
	sigma := float64(half) / 1.5
	current := start

	for iter := 0; iter < params.MaxIterations; iter++ {
		var a, b, c, bx, by float64
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				q := r2.Point{X: current.X + float64(dx), Y: current.Y + float64(dy)}
				gx, gy, ok := centralGradient(img, q)
				if !ok {
					continue
				}
				w := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
				gxx, gxy, gyy := w*gx*gx, w*gx*gy, w*gy*gy
				a += gxx
				b += gxy
				c += gyy
				bx += gxx*q.X + gxy*q.Y
				by += gxy*q.X + gyy*q.Y
			}
		}

		det := a*c - b*b
		if math.Abs(det) <= 1e-9*(a*c+1) {
			break
		}
		next := r2.Point{
			X: (c*bx - b*by) / det,
			Y: (a*by - b*bx) / det,
		}
		if math.Abs(next.X-start.X) > float64(half) || math.Abs(next.Y-start.Y) > float64(half) {
			break
		}
		shift := next.Sub(current).Norm()
		current = next
		if shift < params.Epsilon {
			break
		}
	}
	return current
}

func centralGradient(img *mat.Dense, q r2.Point) (float64, float64, bool) {
	right, ok1 := rimage.BilinearInterpolation(img, r2.Point{X: q.X + 1, Y: q.Y})
	left, ok2 := rimage.BilinearInterpolation(img, r2.Point{X: q.X - 1, Y: q.Y})
	down, ok3 := rimage.BilinearInterpolation(img, r2.Point{X: q.X, Y: q.Y + 1})
	up, ok4 := rimage.BilinearInterpolation(img, r2.Point{X: q.X, Y: q.Y - 1})
	if !(ok1 && ok2 && ok3 && ok4) {
		return 0, 0, false
	}
	return (right - left) / 2, (down - up) / 2, true
}
