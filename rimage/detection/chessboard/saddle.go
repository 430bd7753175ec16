package chessboard

import (
	"image"
	"image/color"
	"sort"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/rimage"
)

// SaddleConfiguration stores the parameters used to turn the Hessian determinant image into a set
// of saddle points.
type SaddleConfiguration struct {
	// RelativeThreshold keeps maxima whose score is at least this fraction of the strongest one.
	// Outer board corners are L junctions scoring about a quarter of an X junction.
	RelativeThreshold float64 `json:"relative-threshold"`
	NMSWindowSize     int     `json:"win-size"`
	// LatticeTolerance is how far, in squares, a point may sit from its grid node.
	LatticeTolerance float64 `json:"lattice-tolerance"`
}

// DefaultSaddleConf stores the default parameters for saddle detection.
var DefaultSaddleConf = SaddleConfiguration{
	RelativeThreshold: 0.5,
	NMSWindowSize:     4,
	LatticeTolerance:  0.3,
}

// RelaxedSaddleConf keeps weaker junctions and accepts a looser lattice fit. It is the last
// pure-Go rung.
var RelaxedSaddleConf = SaddleConfiguration{
	RelativeThreshold: 0.2,
	NMSWindowSize:     4,
	LatticeTolerance:  0.4,
}

// SaddleStrategy finds checkerboard X junctions as saddle points of the image intensity and orders
// them into the pattern grid. It needs no native libraries.
type SaddleStrategy struct {
	conf SaddleConfiguration
}

// NewSaddleStrategy returns a saddle point strategy.
func NewSaddleStrategy(conf SaddleConfiguration) *SaddleStrategy {
	return &SaddleStrategy{conf: conf}
}

// Name implements Strategy.
func (s *SaddleStrategy) Name() string {
	return "saddle"
}

// Find implements Strategy.
func (s *SaddleStrategy) Find(img *image.Gray, pattern image.Point) ([]r2.Point, bool) {
	if img.Bounds().Empty() {
		return nil, false
	}
	saddleMap, err := SaddleMap(rimage.GrayToFloat(img))
	if err != nil {
		return nil, false
	}
	candidates := SaddlePoints(saddleMap, &s.conf)
	want := pattern.X * pattern.Y
	if len(candidates) < want {
		return nil, false
	}
	// L junctions and noise score lower than the real X junctions
	points := make([]r2.Point, want)
	for i := range points {
		points[i] = candidates[i].Point
	}
	return orderGrid(points, pattern, s.conf.LatticeTolerance)
}

// computePixelWiseHessianDeterminant returns the determinant of the Hessian at each pixel. It is
// negative at saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	blur := rimage.GetBlur3()
	smoothed, err := rimage.ConvolveGrayFloat64(img, &blur)
	if err != nil {
		return nil, err
	}
	gX, err := rimage.ConvolveGrayFloat64(smoothed, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(smoothed, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// SaddleMap returns the negated Hessian determinant with all non saddle pixels set to zero.
func SaddleMap(img *mat.Dense) (*mat.Dense, error) {
	hessian, err := computePixelWiseHessianDeterminant(img)
	if err != nil {
		return nil, err
	}
	hessian.Scale(-1.0, hessian)
	hessian.Apply(func(r, c int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, hessian)
	return hessian, nil
}

// SaddlePoint is a local maximum of the saddle map.
type SaddlePoint struct {
	Point r2.Point
	Score float64
}

// SaddlePoints runs non-maximum suppression over the saddle map and returns the surviving points
// sorted by decreasing score.
func SaddlePoints(saddleMap *mat.Dense, conf *SaddleConfiguration) []SaddlePoint {
	maxScore := mat.Max(saddleMap)
	if maxScore <= 0 {
		return nil
	}
	thresh := conf.RelativeThreshold * maxScore
	h, w := saddleMap.Dims()
	win := conf.NMSWindowSize

	var points []SaddlePoint
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			v := saddleMap.At(i, j)
			if v <= 0 || v < thresh {
				continue
			}
			if isLocalMax(saddleMap, i, j, win) {
				points = append(points, SaddlePoint{Point: r2.Point{X: float64(j), Y: float64(i)}, Score: v})
			}
		}
	}
	sort.SliceStable(points, func(a, b int) bool {
		return points[a].Score > points[b].Score
	})
	return points
}

// isLocalMax reports whether (i, j) is the maximum of its window. Ties go to the first pixel in
// raster order so a flat peak yields a single point.
func isLocalMax(m *mat.Dense, i, j, win int) bool {
	h, w := m.Dims()
	v := m.At(i, j)
	for y := max(0, i-win); y < min(h, i+win+1); y++ {
		for x := max(0, j-win); x < min(w, j+win+1); x++ {
			if y == i && x == j {
				continue
			}
			n := m.At(y, x)
			if n > v || (n == v && (y < i || (y == i && x < j))) {
				return false
			}
		}
	}
	return true
}

// PlotSaddleMap draws the saddle points on top of img, for debugging.
func PlotSaddleMap(img image.Image, points []SaddlePoint) image.Image {
	bounds := img.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(img, 0, 0)
	dc.SetColor(color.RGBA{255, 0, 0, 255})
	for _, p := range points {
		dc.DrawCircle(p.Point.X+0.5, p.Point.Y+0.5, 2)
		dc.Fill()
	}
	return dc.Image()
}
