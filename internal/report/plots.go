package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	intervalColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	imuColor      = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	accelColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// WriteTimingPNG plots the frame interval against frame index.
func (c *Collector) WriteTimingPNG(w io.Writer) error {
	samples := c.Samples()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Frame Interval", c.title)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Interval (ms)"

	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		pts = append(pts, plotter.XY{X: float64(s.FrameIndex), Y: s.IntervalMs})
	}
	if err := addLine(p, pts, "interval", intervalColor); err != nil {
		return err
	}
	return save(p, w)
}

// WriteImuPNG plots IMU samples per window and mean acceleration magnitude.
func (c *Collector) WriteImuPNG(w io.Writer) error {
	samples := c.Samples()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - IMU Windows", c.title)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Samples / |a| (m/s²)"

	counts := make(plotter.XYs, 0, len(samples))
	accel := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		counts = append(counts, plotter.XY{X: float64(s.FrameIndex), Y: float64(s.ImuSamples)})
		if s.ImuSamples > 0 {
			accel = append(accel, plotter.XY{X: float64(s.FrameIndex), Y: s.AccelNorm})
		}
	}
	if err := addLine(p, counts, "samples per window", imuColor); err != nil {
		return err
	}
	if err := addLine(p, accel, "mean |a|", accelColor); err != nil {
		return err
	}
	return save(p, w)
}

func addLine(p *plot.Plot, pts plotter.XYs, label string, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return nil
}

func save(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}
