package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteHTML renders an interactive page with the frame timing and IMU
// window charts.
func (c *Collector) WriteHTML(w io.Writer) error {
	samples := c.Samples()
	st := c.Stats()

	frames := make([]int, len(samples))
	intervals := make([]opts.LineData, len(samples))
	counts := make([]opts.BarData, len(samples))
	for i, s := range samples {
		frames[i] = s.FrameIndex
		intervals[i] = opts.LineData{Value: s.IntervalMs}
		counts[i] = opts.BarData{Value: s.ImuSamples}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.title, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame Interval",
			Subtitle: fmt.Sprintf("packets=%d mean=%.2fms sd=%.2fms", st.Packets, st.IntervalMeanMs, st.IntervalStdDevMs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(frames).AddSeries("interval", intervals)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "IMU Samples per Window",
			Subtitle: fmt.Sprintf("samples=%d empty=%d rate=%.1fHz", st.ImuSamples, st.EmptyWindows, st.ImuRateHz),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(frames).AddSeries("imu", counts)

	page := components.NewPage()
	page.SetPageTitle(c.title).AddCharts(line, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
