package chessboard

import (
	"image"

	"github.com/golang/geo/r2"

	"go.viam.com/camcal/rimage"
)

// normalizeSigma is the neighborhood used by the local contrast rung, in pixels.
const normalizeSigma = 8

// PreprocessedStrategy runs another strategy on a transformed copy of the image. The transform
// must keep the image size so corners stay in source pixel coordinates.
type PreprocessedStrategy struct {
	name       string
	preprocess func(*image.Gray) *image.Gray
	inner      Strategy
}

// NewPreprocessedStrategy wraps inner. A nil preprocess passes the image through unchanged.
func NewPreprocessedStrategy(name string, preprocess func(*image.Gray) *image.Gray, inner Strategy) *PreprocessedStrategy {
	return &PreprocessedStrategy{name: name, preprocess: preprocess, inner: inner}
}

// Name implements Strategy.
func (s *PreprocessedStrategy) Name() string {
	return s.name
}

// Find implements Strategy.
func (s *PreprocessedStrategy) Find(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	if s.preprocess != nil && !img.Bounds().Empty() {
		img = s.preprocess(img)
	}
	return s.inner.Find(img, pattern)
}

func normalizeLocal(img *image.Gray) *image.Gray {
	return rimage.NormalizeLocalContrast(img, normalizeSigma)
}

// PureGoStrategies is the saddle point ladder, strictest first:
//   - saddle on the image as given
//   - saddle after local contrast normalization, for uneven lighting
//   - saddle after histogram equalization and blur, for globally dim shots
//   - saddle with RelaxedSaddleConf on the image as given
func PureGoStrategies() []Strategy {
	return []Strategy{
		NewSaddleStrategy(DefaultSaddleConf),
		NewPreprocessedStrategy("saddle-normalized", normalizeLocal, NewSaddleStrategy(DefaultSaddleConf)),
		NewPreprocessedStrategy("saddle-equalized", rimage.EnhanceForDetection, NewSaddleStrategy(DefaultSaddleConf)),
		NewPreprocessedStrategy("saddle-relaxed", nil, NewSaddleStrategy(RelaxedSaddleConf)),
	}
}
