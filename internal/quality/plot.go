package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// trend describes one rendered metric.
type trend struct {
	file  string
	title string
	value func(Record) float64
}

var trends = []trend{
	{file: "rms.pdf", title: "RMS", value: func(r Record) float64 { return r.RMS }},
	{file: "maxmin.pdf", title: "I_max/|I_min|", value: func(r Record) float64 { return r.MaxMin }},
	{file: "snr.pdf", title: "Signal to noise (max/rms)", value: func(r Record) float64 { return r.SNR }},
}

// plotTrend renders values against stage labels in execution order.
// Non-finite values are left out of the line.
func plotTrend(path, title string, records []Record, value func(Record) float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "stage"

	labels := make([]string, len(records))
	pts := make(plotter.XYs, 0, len(records))
	for i, r := range records {
		labels[i] = r.Stage
		v := value(r)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	p.NominalX(labels...)
	p.X.Min, p.X.Max = 0, float64(len(records)-1)

	if len(pts) > 0 {
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", title, err)
		}
		p.Add(line, points)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
