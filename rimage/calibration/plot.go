package calibration

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotViewErrors saves a bar chart of each view's mean reprojection error to path. The image
// format follows the file extension. sources labels the bars and may be nil.
func PlotViewErrors(res *Result, sources []string, path string) error {
	if len(res.ViewErrors) == 0 {
		return errors.New("result has no per view errors to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("reprojection error per view (mean %.3f px)", res.MeanError)
	p.Y.Label.Text = "mean error (px)"
	p.Add(plotter.NewGrid())

	bars, err := plotter.NewBarChart(plotter.Values(res.ViewErrors), vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "cannot build bar chart")
	}
	p.Add(bars)

	mean := plotter.NewFunction(func(float64) float64 { return res.MeanError })
	mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(mean)

	names := make([]string, len(res.ViewErrors))
	for i := range names {
		if i < len(sources) && sources[i] != "" {
			names[i] = filepath.Base(sources[i])
		} else {
			names[i] = fmt.Sprint(i)
		}
	}
	p.NominalX(names...)

	width := vg.Length(len(names)) * vg.Points(24)
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}
	if err := p.Save(width, 3*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save plot %q", path)
	}
	return nil
}
