//go:build withcv

package chessboard

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// OpenCVStrategy runs OpenCV's findChessboardCorners with a fixed set of flags.
type OpenCVStrategy struct {
	flags gocv.CalibCBFlag
	name  string
}

// NewOpenCVStrategy returns an OpenCV strategy using flags.
func NewOpenCVStrategy(name string, flags gocv.CalibCBFlag) *OpenCVStrategy {
	return &OpenCVStrategy{flags: flags, name: name}
}

// Name implements Strategy.
func (s *OpenCVStrategy) Name() string {
	return s.name
}

// Find implements Strategy.
func (s *OpenCVStrategy) Find(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, false
	}
	defer src.Close()
	corners := gocv.NewMat()
	defer corners.Close()

	if !gocv.FindChessboardCorners(src, pattern, &corners, s.flags) {
		return nil, false
	}
	out := make([]r2.Point, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		if len(v) < 2 {
			return nil, false
		}
		out = append(out, r2.Point{X: float64(v[0]), Y: float64(v[1])})
	}
	return out, true
}

func opencvLadder() []Strategy {
	ladder := []gocv.CalibCBFlag{
		gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage | gocv.CalibCBFilterQuads,
		gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage,
		gocv.CalibCBAdaptiveThresh,
		0,
	}
	strategies := make([]Strategy, 0, len(ladder))
	for _, flags := range ladder {
		strategies = append(strategies, NewOpenCVStrategy(fmt.Sprintf("opencv(flags=%d)", flags), flags))
	}
	return strategies
}

// DefaultStrategies is the OpenCV flag ladder from strictest to most permissive, then the pure-Go
// saddle ladder as fallback.
func DefaultStrategies() []Strategy {
	return append(opencvLadder(), PureGoStrategies()...)
}

// FastCheckStrategies is a single quick OpenCV pass that rejects images without a board early.
func FastCheckStrategies() []Strategy {
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBFastCheck | gocv.CalibCBNormalizeImage
	return []Strategy{NewOpenCVStrategy("opencv-fast", flags)}
}
