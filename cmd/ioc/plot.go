package main

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const plotFile = "ioc_trajectories.png"

// maxPlotted caps the number of agents drawn.
const maxPlotted = 12

// toXYs converts one agent's [dim][step] trajectory to plot points using the
// first two dims.
func toXYs(traj [][]float32) plotter.XYs {
	if len(traj) < 2 {
		return nil
	}
	xys := make(plotter.XYs, len(traj[0]))
	for t := range xys {
		xys[t].X = float64(traj[0][t])
		xys[t].Y = float64(traj[1][t])
	}
	return xys
}

// plotTrajectories writes a PNG with the reconstructed absolute trajectories
// (grey) and the delta-refined ones (blue).
func plotTrajectories(outDir string, abs, refined [][][]float32) error {
	p := plot.New()
	p.Title.Text = "IOC trajectories: reconstructed (grey), refined (blue)"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	var all plotter.XYs
	for i := range min(len(abs), maxPlotted) {
		base := toXYs(abs[i])
		ref := toXYs(refined[i])
		if len(base) == 0 {
			continue
		}
		line, err := plotter.NewLine(base)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 200}
		line.Width = vg.Points(1)
		p.Add(line)

		rl, err := plotter.NewLine(ref)
		if err != nil {
			return err
		}
		rl.Color = color.RGBA{R: 20, G: 80, B: 200, A: uint8(140 + (i%3)*30)}
		rl.Width = vg.Points(0.8)
		p.Add(rl)

		starts, err := plotter.NewScatter(base[:1])
		if err != nil {
			return err
		}
		starts.GlyphStyle.Radius = vg.Points(2)
		p.Add(starts)

		if i == 0 {
			p.Legend.Add("reconstructed", line)
			p.Legend.Add("refined", rl)
		}
		all = append(all, base...)
		all = append(all, ref...)
	}

	p.Add(plotter.NewGrid())
	xmin, xmax, ymin, ymax := autoRange(all)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, plotFile))
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}
