// Package report summarises a replay run: per-frame timing and IMU coverage
// statistics, PNG plots and an interactive HTML page.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/kitti"
)

// FrameSample is what the collector keeps of one packet.
type FrameSample struct {
	FrameIndex  int     `json:"frame"`
	TimestampNs int64   `json:"timestamp_ns"`
	IntervalMs  float64 `json:"interval_ms"`
	ImuSamples  int     `json:"imu_samples"`
	GyroNorm    float64 `json:"gyro_norm"`  // mean |w| over the window, rad/s
	AccelNorm   float64 `json:"accel_norm"` // mean |a| over the window, m/s^2
}

// Stats is the numeric summary of a run.
type Stats struct {
	Packets          int     `json:"packets"`
	ImuSamples       int     `json:"imu_samples"`
	EmptyWindows     int     `json:"empty_windows"`
	IntervalMeanMs   float64 `json:"interval_mean_ms"`
	IntervalStdDevMs float64 `json:"interval_stddev_ms"`
	IntervalMinMs    float64 `json:"interval_min_ms"`
	IntervalMaxMs    float64 `json:"interval_max_ms"`
	WindowMean       float64 `json:"window_mean"`
	WindowStdDev     float64 `json:"window_stddev"`
	ImuRateHz        float64 `json:"imu_rate_hz"`
	AccelNormMean    float64 `json:"accel_norm_mean"`
}

// Collector gathers per-frame samples during replay.
type Collector struct {
	mu      sync.Mutex
	title   string
	samples []FrameSample
}

// NewCollector returns an empty collector; title heads the plots.
func NewCollector(title string) *Collector {
	return &Collector{title: title}
}

// Observe records one packet.
func (c *Collector) Observe(pkt *kitti.SynchronizedPacket) {
	s := FrameSample{
		FrameIndex:  pkt.FrameIndex,
		TimestampNs: pkt.Timestamp,
		IntervalMs:  float64(pkt.Timestamp-pkt.PrevTimestamp) / 1e6,
		ImuSamples:  len(pkt.ImuWindow),
	}
	if n := len(pkt.ImuWindow); n > 0 {
		for _, m := range pkt.ImuWindow {
			s.GyroNorm += floats.Norm(m.Gyro[:], 2)
			s.AccelNorm += floats.Norm(m.Accel[:], 2)
		}
		s.GyroNorm /= float64(n)
		s.AccelNorm /= float64(n)
	}

	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

// Tee returns a callback that observes each packet before handing it on.
func (c *Collector) Tee(next kitti.PacketCallback) kitti.PacketCallback {
	return func(pkt *kitti.SynchronizedPacket) error {
		c.Observe(pkt)
		if next == nil {
			return nil
		}
		return next(pkt)
	}
}

// Samples returns a copy of the collected samples.
func (c *Collector) Samples() []FrameSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FrameSample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Stats summarises the collected samples. An empty collector yields zeros.
func (c *Collector) Stats() Stats {
	samples := c.Samples()
	st := Stats{Packets: len(samples)}
	if len(samples) == 0 {
		return st
	}

	intervals := make([]float64, len(samples))
	windows := make([]float64, len(samples))
	var accel []float64
	var spanMs float64
	for i, s := range samples {
		intervals[i] = s.IntervalMs
		windows[i] = float64(s.ImuSamples)
		st.ImuSamples += s.ImuSamples
		spanMs += s.IntervalMs
		if s.ImuSamples == 0 {
			st.EmptyWindows++
			continue
		}
		accel = append(accel, s.AccelNorm)
	}

	st.IntervalMeanMs, st.IntervalStdDevMs = meanStdDev(intervals)
	st.IntervalMinMs = floats.Min(intervals)
	st.IntervalMaxMs = floats.Max(intervals)
	st.WindowMean, st.WindowStdDev = meanStdDev(windows)
	if spanMs > 0 {
		st.ImuRateHz = float64(st.ImuSamples) / (spanMs / 1e3)
	}
	if len(accel) > 0 {
		st.AccelNormMean = stat.Mean(accel, nil)
	}
	return st
}

// meanStdDev is stat.MeanStdDev with a zero deviation for a single value.
func meanStdDev(x []float64) (mean, std float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	mean, std = stat.MeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// Output file names written by Write.
const (
	StatsFile    = "stats.json"
	TimingPlot   = "frame_timing.png"
	ImuPlot      = "imu_windows.png"
	HTMLDocument = "report.html"
)

// Write renders every report artefact into dir.
func (c *Collector) Write(fsys fsutil.FileSystem, dir string) error {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	data, err := json.MarshalIndent(struct {
		Title  string        `json:"title"`
		Stats  Stats         `json:"stats"`
		Frames []FrameSample `json:"frames"`
	}{c.title, c.Stats(), c.Samples()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := fsys.WriteFile(filepath.Join(dir, StatsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	var buf bytes.Buffer
	if err := c.WriteTimingPNG(&buf); err != nil {
		return err
	}
	if err := fsys.WriteFile(filepath.Join(dir, TimingPlot), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write timing plot: %w", err)
	}

	buf.Reset()
	if err := c.WriteImuPNG(&buf); err != nil {
		return err
	}
	if err := fsys.WriteFile(filepath.Join(dir, ImuPlot), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write imu plot: %w", err)
	}

	buf.Reset()
	if err := c.WriteHTML(&buf); err != nil {
		return err
	}
	if err := fsys.WriteFile(filepath.Join(dir, HTMLDocument), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write html report: %w", err)
	}
	return nil
}
