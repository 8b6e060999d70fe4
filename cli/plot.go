package cli

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 20

// plotResiduals saves a histogram of the inlier reprojection errors to path. The image format follows
// the file extension.
func plotResiduals(path string, residuals []float64, outliers []bool) error {
	values := make(plotter.Values, 0, len(residuals))
	for i, r := range residuals {
		if !outliers[i] {
			values = append(values, r)
		}
	}
	if len(values) == 0 {
		return errors.New("no inlier residuals to plot")
	}

	p := plot.New()
	p.Title.Text = "Inlier reprojection error"
	p.X.Label.Text = "error (px)"
	p.Y.Label.Text = "correspondences"
	hist, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return errors.Wrap(err, "error building residual histogram")
	}
	p.Add(hist)
	return errors.Wrapf(p.Save(6*vg.Inch, 4*vg.Inch, path), "error saving plot to %q", path)
}
