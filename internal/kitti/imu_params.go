package kitti

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/kitti-replay/internal/config"
)

// ImuParamsFromConfig builds the IMU noise model from cfg. When the config
// leaves the rate at 0 it is estimated from the sample stream.
func ImuParamsFromConfig(cfg *config.ReplayConfig, samples []ImuSample) ImuParams {
	p := ImuParams{
		GyroNoiseDensity:    cfg.GetGyroNoiseDensity(),
		AccelNoiseDensity:   cfg.GetAccelNoiseDensity(),
		GyroRandomWalk:      cfg.GetGyroRandomWalk(),
		AccelRandomWalk:     cfg.GetAccelRandomWalk(),
		ImuIntegrationSigma: cfg.GetImuIntegrationSigma(),
		GravityMagnitude:    cfg.GetGravityMagnitude(),
		RateHz:              cfg.GetImuRateHz(),
	}
	if p.RateHz == 0 {
		ts := make([]int64, len(samples))
		for i, s := range samples {
			ts[i] = s.Timestamp
		}
		p.RateHz = EstimateRateHz(ts)
	}
	return p
}

// EstimateRateHz returns the rate implied by the median interval between
// consecutive timestamps, or 0 if fewer than two distinct timestamps exist.
func EstimateRateHz(ts []int64) float64 {
	median := MedianInterval(ts)
	if median <= 0 {
		return 0
	}
	return 1e9 / median
}

// MedianInterval returns the median of consecutive timestamp differences in
// nanoseconds, or 0 when there are fewer than two timestamps.
func MedianInterval(ts []int64) float64 {
	if len(ts) < 2 {
		return 0
	}
	dts := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		dts = append(dts, float64(ts[i]-ts[i-1]))
	}
	sort.Float64s(dts)
	return stat.Quantile(0.5, stat.Empirical, dts, nil)
}
