// Package rimage holds the grayscale image helpers the calibration pipeline runs on.
package rimage

import (
	"image"
	"image/draw"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// MakeGray converts any image to an *image.Gray whose bounds start at (0, 0). A gray input
// that already starts at the origin is returned as is.
func MakeGray(pic image.Image) *image.Gray {
	if gray, ok := pic.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	result := image.NewGray(image.Rectangle{Max: pic.Bounds().Size()})
	draw.Draw(result, result.Bounds(), pic, pic.Bounds().Min, draw.Src)

	return result
}

// GrayToFloat converts a gray image into a row-major matrix of luminance values in [0, 255].
// Rows index y and columns index x.
func GrayToFloat(gray *image.Gray) *mat.Dense {
	size := gray.Bounds().Size()
	out := mat.NewDense(size.Y, size.X, nil)
	minPt := gray.Bounds().Min
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			out.Set(y, x, float64(gray.GrayAt(minPt.X+x, minPt.Y+y).Y))
		}
	}
	return out
}

// BilinearInterpolation samples m at the sub-pixel position pt (x is the column). The second
// return value is false when pt falls outside the matrix.
func BilinearInterpolation(m *mat.Dense, pt r2.Point) (float64, bool) {
	rows, cols := m.Dims()
	if pt.X < 0 || pt.Y < 0 || pt.X > float64(cols-1) || pt.Y > float64(rows-1) {
		return 0, false
	}
	x0, y0 := int(pt.X), int(pt.Y)
	x1, y1 := x0+1, y0+1
	if x1 > cols-1 {
		x1 = cols - 1
	}
	if y1 > rows-1 {
		y1 = rows - 1
	}
	ax, ay := pt.X-float64(x0), pt.Y-float64(y0)

	top := (1-ax)*m.At(y0, x0) + ax*m.At(y0, x1)
	bottom := (1-ax)*m.At(y1, x0) + ax*m.At(y1, x1)
	return (1-ay)*top + ay*bottom, true
}
