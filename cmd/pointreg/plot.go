package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotConvergence writes a line plot of per-iteration cost to a PNG.
func plotConvergence(path string, history []float64) error {
	if len(history) == 0 {
		return fmt.Errorf("no cost history to plot")
	}

	p := plot.New()
	p.Title.Text = "Registration Convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Cost"

	pts := make(plotter.XYs, len(history))
	for i, c := range history {
		pts[i] = plotter.XY{X: float64(i), Y: c}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("cost", line)
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
