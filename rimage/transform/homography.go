package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EstimateHomography computes the 3x3 homography H with dst ~ H * src from at least 4
// correspondences, using the normalized direct linear transform. H is scaled so H[2][2] = 1.
func EstimateHomography(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}

	srcNorm, tSrc := normalizePoints(src)
	dstNorm, tDst := normalizePoints(dst)

	// Pad to at least 9 rows so the full SVD always yields a 9x9 V.
	nRows := 2 * len(src)
	if nRows < 9 {
		nRows = 9
	}
	a := mat.NewDense(nRows, 9, nil)
	for i := range srcNorm {
		s, d := srcNorm[i], dstNorm[i]
		a.SetRow(2*i, []float64{
			-s.X, -s.Y, -1,
			0, 0, 0,
			d.X * s.X, d.X * s.Y, d.X,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0,
			-s.X, -s.Y, -1,
			d.Y * s.X, d.Y * s.Y, d.Y,
		})
	}

	mats := performSVD(a)
	if mats == nil {
		return nil, errors.New("svd failed while estimating homography")
	}
	h := mat.NewDense(3, 3, mat.Col(nil, 8, mats.V))

	// denormalize: H = T_dst^-1 * Hn * T_src
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, errors.Wrap(err, "degenerate point set")
	}
	var out mat.Dense
	out.Mul(&tDstInv, h)
	out.Mul(&out, tSrc)

	scale := out.At(2, 2)
	if math.Abs(scale) < 1e-15 {
		return nil, errors.New("homography is degenerate")
	}
	out.Scale(1/scale, &out)
	return &out, nil
}

// ApplyHomography maps pt through h using homogeneous coordinates.
func ApplyHomography(h mat.Matrix, pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	w := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at
// the origin, mean distance sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := 1.0
	if d > 0 {
		scale = math.Sqrt(2) / d
	}
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)

	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U *mat.Dense
	V *mat.Dense
	S []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, V and the singular values.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	return &matsSVD{u, v, svd.Values(nil)}
}

// NearestRotation returns the rotation matrix closest, in Frobenius norm, to m.
func NearestRotation(m mat.Matrix) *mat.Dense {
	mats := performSVD(m)
	if mats == nil {
		return nil
	}
	var rot mat.Dense
	rot.Mul(mats.U, mats.V.T())
	if mat.Det(&rot) < 0 {
		// flip the axis of the smallest singular value to stay in SO(3)
		fix := mat.NewDiagDense(3, []float64{1, 1, -1})
		var tmp mat.Dense
		tmp.Mul(mats.U, fix)
		rot.Mul(&tmp, mats.V.T())
	}
	return &rot
}
