// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// PlotRun draws filtered grip force, commanded magnitude and the feedback
// threshold against time, with the scheduled perturbation windows shaded,
// and saves it to path. The image format follows the file extension.
func PlotRun(path string, records []sample.Record, schedule trial.Schedule, threshold float64) error {
	if len(records) == 0 {
		return fmt.Errorf("report: no samples to plot")
	}

	p := plot.New()
	p.Title.Text = "Grip force and perturbation magnitude"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Force (V) / magnitude"

	force := make(plotter.XYs, 0, len(records))
	mag := make(plotter.XYs, 0, len(records))
	for _, r := range records {
		force = append(force, plotter.XY{X: r.Elapsed, Y: r.Filtered})
		mag = append(mag, plotter.XY{X: r.Elapsed, Y: r.Magnitude})
	}

	for _, t := range schedule {
		win, err := plotter.NewPolygon(plotter.XYs{
			{X: t.Start, Y: 0}, {X: t.End, Y: 0}, {X: t.End, Y: t.Level}, {X: t.Start, Y: t.Level},
		})
		if err != nil {
			return err
		}
		win.Color = color.RGBA{R: 255, G: 220, B: 160, A: 255}
		win.LineStyle.Width = 0
		p.Add(win)
	}

	forceLine, err := plotter.NewLine(force)
	if err != nil {
		return err
	}
	forceLine.Color = color.RGBA{B: 200, A: 255}
	forceLine.Width = vg.Points(1)
	p.Add(forceLine)
	p.Legend.Add("filtered force", forceLine)

	magLine, err := plotter.NewLine(mag)
	if err != nil {
		return err
	}
	magLine.Color = color.RGBA{R: 200, A: 255}
	magLine.Width = vg.Points(1)
	p.Add(magLine)
	p.Legend.Add("magnitude", magLine)

	thr := plotter.NewFunction(func(float64) float64 { return threshold })
	thr.Color = color.Gray{Y: 100}
	thr.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(thr)
	p.Legend.Add("threshold", thr)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save plot: %w", err)
	}
	return nil
}
