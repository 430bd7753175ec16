package chessboard

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcal/rimage"
)

// BoardStyle describes how a checkerboard target is drawn.
type BoardStyle struct {
	SquarePx int `json:"square_px"`
	MarginPx int `json:"margin_px"`
	// Angle rotates the board clockwise about the image center, in radians.
	Angle float64 `json:"angle"`
}

// RenderBoard draws a black and white checkerboard with pattern.X by pattern.Y inner corners and
// returns it together with the exact inner corner positions, row-major, in pixel coordinates.
func RenderBoard(pattern image.Point, style BoardStyle) (*image.Gray, []r2.Point, error) {
	if pattern.X < 2 || pattern.Y < 2 {
		return nil, nil, errors.Errorf("pattern must have at least 2x2 inner corners, got %dx%d", pattern.X, pattern.Y)
	}
	if style.SquarePx <= 0 || style.MarginPx < 0 {
		return nil, nil, errors.Errorf("invalid board style %+v", style)
	}
	sq, margin := float64(style.SquarePx), float64(style.MarginPx)
	width := (pattern.X+1)*style.SquarePx + 2*style.MarginPx
	height := (pattern.Y+1)*style.SquarePx + 2*style.MarginPx

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.RotateAbout(style.Angle, float64(width)/2, float64(height)/2)
	dc.SetRGB(0, 0, 0)
	for r := 0; r <= pattern.Y; r++ {
		for c := 0; c <= pattern.X; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			dc.DrawRectangle(margin+float64(c)*sq, margin+float64(r)*sq, sq, sq)
			dc.Fill()
		}
	}

	corners := make([]r2.Point, 0, pattern.X*pattern.Y)
	for r := 1; r <= pattern.Y; r++ {
		for c := 1; c <= pattern.X; c++ {
			x, y := dc.TransformPoint(margin+float64(c)*sq, margin+float64(r)*sq)
			// drawing coordinates put pixel centers at +0.5
			corners = append(corners, r2.Point{X: x - 0.5, Y: y - 0.5})
		}
	}
	return rimage.MakeGray(dc.Image()), corners, nil
}

// PlotCorners draws detected corners over img, joining them in row-major order the way a
// correct detection is walked.
func PlotCorners(img image.Image, corners []r2.Point) image.Image {
	bounds := img.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(img, 0, 0)
	dc.SetColor(color.RGBA{0, 200, 0, 255})
	dc.SetLineWidth(1.5)
	for i, p := range corners {
		x, y := p.X+0.5-float64(bounds.Min.X), p.Y+0.5-float64(bounds.Min.Y)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()
	dc.SetColor(color.RGBA{255, 0, 0, 255})
	for _, p := range corners {
		dc.DrawCircle(p.X+0.5-float64(bounds.Min.X), p.Y+0.5-float64(bounds.Min.Y), 3)
		dc.Fill()
	}
	return dc.Image()
}
