package chessboard

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"

	"go.viam.com/camcal/rimage/transform"
)

// maxHullVertices bounds the brute force quadrilateral search; a board hull has few vertices.
const maxHullVertices = 48

// orderGrid sorts unordered corner candidates into row-major pattern order. The four outer corners
// of the candidate set are taken as the board corners, a homography maps every candidate onto the
// integer lattice, and the result is accepted only if each lattice node gets exactly one point.
func orderGrid(points []r2.Point, pattern image.Point, tol float64) ([]r2.Point, bool) {
	cols, rows := pattern.X, pattern.Y
	if len(points) != cols*rows {
		return nil, false
	}
	hull := convexHull(points)
	if len(hull) < 4 || len(hull) > maxHullVertices {
		return nil, false
	}
	quad, ok := maxAreaQuad(hull)
	if !ok {
		return nil, false
	}

	// the board origin is the outer corner closest to the image origin
	origin := 0
	for i := 1; i < 4; i++ {
		if quad[i].X+quad[i].Y < quad[origin].X+quad[origin].Y {
			origin = i
		}
	}
	o := quad[origin]
	next := quad[(origin+1)%4]
	far := quad[(origin+2)%4]
	prev := quad[(origin+3)%4]

	var best []r2.Point
	bestHorizontal := -1.0
	for _, colEnd := range []r2.Point{next, prev} {
		rowEnd := prev
		if colEnd == prev {
			rowEnd = next
		}
		ordered, ok := assignLattice(points, [4]r2.Point{o, colEnd, far, rowEnd}, cols, rows, tol)
		if !ok {
			continue
		}
		// for square patterns both assignments fit; prefer columns running across the image
		axis := colEnd.Sub(o)
		horizontal := math.Abs(axis.X) - math.Abs(axis.Y)
		if best == nil || horizontal > bestHorizontal {
			best, bestHorizontal = ordered, horizontal
		}
	}
	return best, best != nil
}

func assignLattice(points []r2.Point, corners [4]r2.Point, cols, rows int, tol float64) ([]r2.Point, bool) {
	dst := []r2.Point{
		{X: 0, Y: 0},
		{X: float64(cols - 1), Y: 0},
		{X: float64(cols - 1), Y: float64(rows - 1)},
		{X: 0, Y: float64(rows - 1)},
	}
	h, err := transform.EstimateHomography(corners[:], dst)
	if err != nil {
		return nil, false
	}
	ordered := make([]r2.Point, cols*rows)
	filled := make([]bool, cols*rows)
	for _, p := range points {
		g := transform.ApplyHomography(h, p)
		c, r := math.Round(g.X), math.Round(g.Y)
		if math.IsNaN(c) || math.IsNaN(r) || math.Abs(g.X-c) > tol || math.Abs(g.Y-r) > tol {
			return nil, false
		}
		ci, ri := int(c), int(r)
		if ci < 0 || ci >= cols || ri < 0 || ri >= rows {
			return nil, false
		}
		idx := ri*cols + ci
		if filled[idx] {
			return nil, false
		}
		filled[idx] = true
		ordered[idx] = p
	}
	return ordered, true
}

func cross(o, a, b r2.Point) float64 {
	return a.Sub(o).Cross(b.Sub(o))
}

// convexHull returns the strict convex hull of points with Andrew's monotone chain; collinear
// points on an edge are dropped.
func convexHull(points []r2.Point) []r2.Point {
	pts := make([]r2.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	if len(pts) < 3 {
		return pts
	}
	hull := make([]r2.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// maxAreaQuad picks the four hull vertices spanning the largest area, kept in hull order.
func maxAreaQuad(hull []r2.Point) ([4]r2.Point, bool) {
	n := len(hull)
	var best [4]r2.Point
	bestArea := 0.0
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			for c := b + 1; c < n; c++ {
				for d := c + 1; d < n; d++ {
					q := [4]r2.Point{hull[a], hull[b], hull[c], hull[d]}
					if area := quadArea(q); area > bestArea {
						best, bestArea = q, area
					}
				}
			}
		}
	}
	return best, bestArea > 0
}

func quadArea(q [4]r2.Point) float64 {
	sum := 0.0
	for i := range q {
		sum += q[i].Cross(q[(i+1)%4])
	}
	return math.Abs(sum) / 2
}
