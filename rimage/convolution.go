package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/utils"
)

// Kernel is a small convolution filter. Content is indexed [row][col].
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// Size returns the kernel dimensions as an image.Point.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel coefficient at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{
		[][]float64{
			{-1, 0, 1},
			{-2, 0, 2},
			{-1, 0, 1},
		},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{
		[][]float64{
			{-1, -2, -1},
			{0, 0, 0},
			{1, 2, 1},
		},
		3,
		3,
	}
}

// GetBlur3 returns a normalized 3x3 binomial blur kernel.
func GetBlur3() Kernel {
	return Kernel{
		[][]float64{
			{1. / 16, 2. / 16, 1. / 16},
			{2. / 16, 4. / 16, 2. / 16},
			{1. / 16, 2. / 16, 1. / 16},
		},
		3,
		3,
	}
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter, centered on
// each pixel. Borders are handled by replicating the edge pixels. There is no clamping.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	if filter.Width%2 == 0 || filter.Height%2 == 0 {
		return nil, errors.Errorf("kernel must have odd dimensions, got %dx%d", filter.Width, filter.Height)
	}
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	anchorX, anchorY := filter.Width/2, filter.Height/2

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < filter.Height; ky++ {
			py := clampInt(y+ky-anchorY, 0, h-1)
			for kx := 0; kx < filter.Width; kx++ {
				px := clampInt(x+kx-anchorX, 0, w-1)
				sum += m.At(py, px) * filter.At(kx, ky)
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
