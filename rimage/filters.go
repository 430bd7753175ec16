package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// gaussian5x5Sigma is the sigma OpenCV derives for a 5x5 Gaussian kernel when none is given.
const gaussian5x5Sigma = 1.1

// EqualizeHist spreads the gray levels of img over the full [0, 255] range using its cumulative
// histogram. A constant image is returned unchanged.
func EqualizeHist(img *image.Gray) *image.Gray {
	var hist [256]int
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	total := bounds.Dx() * bounds.Dy()
	var cdf [256]int
	running := 0
	cdfMin := 0
	for i, count := range hist {
		running += count
		cdf[i] = running
		if cdfMin == 0 && running > 0 {
			cdfMin = running
		}
	}

	out := image.NewGray(bounds)
	if total == cdfMin {
		copy(out.Pix, img.Pix)
		return out
	}

	var lut [256]uint8
	for i := range lut {
		if cdf[i] < cdfMin {
			continue
		}
		lut[i] = uint8(float64(cdf[i]-cdfMin)*255/float64(total-cdfMin) + 0.5)
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = lut[img.GrayAt(x, y).Y]
		}
	}
	return out
}

// EnhanceForDetection equalizes the histogram and then applies a 5x5 Gaussian blur. Low contrast
// calibration shots find corners more reliably after this pass.
func EnhanceForDetection(img *image.Gray) *image.Gray {
	equalized := EqualizeHist(img)
	return MakeGray(imaging.Blur(equalized, gaussian5x5Sigma))
}

// localContrastFloor stops flat regions from being stretched into noise.
const localContrastFloor = 4.0

// NormalizeLocalContrast rescales every pixel by the mean and mean absolute deviation of its
// Gaussian neighborhood, so a junction reads the same in a shadow as in full light. Output is
// centered on 128 with one deviation spanning 64 gray levels.
func NormalizeLocalContrast(img *image.Gray, sigma float64) *image.Gray {
	gray := MakeGray(img)
	bounds := gray.Bounds()
	mean := MakeGray(imaging.Blur(gray, sigma))

	dev := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			d := int(gray.GrayAt(x, y).Y) - int(mean.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			dev.Pix[dev.PixOffset(x, y)] = uint8(d)
		}
	}
	spread := MakeGray(imaging.Blur(dev, sigma))

	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			diff := float64(gray.GrayAt(x, y).Y) - float64(mean.GrayAt(x, y).Y)
			z := diff / math.Max(float64(spread.GrayAt(x, y).Y), localContrastFloor)
			out.Pix[out.PixOffset(x, y)] = uint8(math.Max(0, math.Min(255, 128+64*z)) + 0.5)
		}
	}
	return out
}
