package output

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"depthrig-go/internal/segmentation"
)

// PlotHistogram renders the band's intensity histogram, bin 0 excluded, as a bar chart.
func PlotHistogram(path string, band segmentation.Band, hist [256]int) error {
	values := make(plotter.Values, 0, 255)
	for _, n := range hist[1:] {
		values = append(values, float64(n))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Band %s (%d pixels)", band, segmentation.NonZeroCount(hist))
	p.X.Label.Text = "intensity"
	p.Y.Label.Text = "pixels"

	bars, err := plotter.NewBarChart(values, vg.Points(1.5))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	return p.Save(6*vg.Inch, 3*vg.Inch, path)
}
