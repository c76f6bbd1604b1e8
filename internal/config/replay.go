package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/kitti-replay/internal/units"
)

// DefaultConfigPath is the path to the canonical replay defaults file.
const DefaultConfigPath = "config/replay.defaults.json"

// ReplayConfig describes where a sequence keeps its files, how many leading
// frames to skip, and the IMU noise model handed to downstream consumers.
// Every field is optional; the Get* accessors supply defaults.
type ReplayConfig struct {
	// Dataset layout
	LeftCamera      *string  `json:"left_camera,omitempty"`
	RightCamera     *string  `json:"right_camera,omitempty"`
	CalibrationFile *string  `json:"calibration_file,omitempty"`
	ImuLogFile      *string  `json:"imu_log_file,omitempty"`
	TimestampFiles  []string `json:"timestamp_files,omitempty"`
	ImageSubdir     *string  `json:"image_subdir,omitempty"`
	TimestampUnit   *string  `json:"timestamp_unit,omitempty"` // unit of purely numeric timestamp logs

	// Frame range
	InitialFrameSkip *int `json:"initial_frame_skip,omitempty"`
	FinalFrame       *int `json:"final_frame,omitempty"` // inclusive cap, -1 or unset for the last frame

	// IMU noise model
	GyroNoiseDensity    *float64 `json:"gyro_noise_density,omitempty"`
	AccelNoiseDensity   *float64 `json:"accel_noise_density,omitempty"`
	GyroRandomWalk      *float64 `json:"gyro_random_walk,omitempty"`
	AccelRandomWalk     *float64 `json:"accel_random_walk,omitempty"`
	ImuIntegrationSigma *float64 `json:"imu_integration_sigma,omitempty"`
	GravityMagnitude    *float64 `json:"gravity_magnitude,omitempty"`
	ImuRateHz           *float64 `json:"imu_rate_hz,omitempty"` // 0 estimates the rate from the log

	// Replay
	ReplayRate *float64 `json:"replay_rate,omitempty"` // 0 replays as fast as the consumer allows
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyReplayConfig returns a ReplayConfig with all fields unset.
func EmptyReplayConfig() *ReplayConfig {
	return &ReplayConfig{}
}

// DefaultReplayConfig returns a config with every field populated from the
// accessor defaults. Useful for writing out a template.
func DefaultReplayConfig() *ReplayConfig {
	c := EmptyReplayConfig()
	return &ReplayConfig{
		LeftCamera:          ptrString(c.GetLeftCamera()),
		RightCamera:         ptrString(c.GetRightCamera()),
		CalibrationFile:     ptrString(c.GetCalibrationFile()),
		ImuLogFile:          ptrString(c.GetImuLogFile()),
		TimestampFiles:      c.GetTimestampFiles(),
		ImageSubdir:         ptrString(c.GetImageSubdir()),
		TimestampUnit:       ptrString(c.GetTimestampUnit()),
		InitialFrameSkip:    ptrInt(c.GetInitialFrameSkip()),
		FinalFrame:          ptrInt(c.GetFinalFrame()),
		GyroNoiseDensity:    ptrFloat64(c.GetGyroNoiseDensity()),
		AccelNoiseDensity:   ptrFloat64(c.GetAccelNoiseDensity()),
		GyroRandomWalk:      ptrFloat64(c.GetGyroRandomWalk()),
		AccelRandomWalk:     ptrFloat64(c.GetAccelRandomWalk()),
		ImuIntegrationSigma: ptrFloat64(c.GetImuIntegrationSigma()),
		GravityMagnitude:    ptrFloat64(c.GetGravityMagnitude()),
		ImuRateHz:           ptrFloat64(c.GetImuRateHz()),
		ReplayRate:          ptrFloat64(c.GetReplayRate()),
	}
}

// LoadReplayConfig loads a ReplayConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to accessor defaults, so
// partial configs are safe.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReplayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ReplayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/kitti-replay/
	}
	for _, path := range candidates {
		if cfg, err := LoadReplayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ReplayConfig) Validate() error {
	if c.LeftCamera != nil && *c.LeftCamera == "" {
		return fmt.Errorf("left_camera must not be empty")
	}
	if c.RightCamera != nil && *c.RightCamera == "" {
		return fmt.Errorf("right_camera must not be empty")
	}
	if c.GetLeftCamera() == c.GetRightCamera() {
		return fmt.Errorf("left_camera and right_camera must differ, both are %q", c.GetLeftCamera())
	}
	for _, name := range c.TimestampFiles {
		if name == "" || filepath.IsAbs(name) {
			return fmt.Errorf("timestamp_files entries must be relative file names, got %q", name)
		}
	}
	if c.TimestampUnit != nil && !units.IsValid(*c.TimestampUnit) {
		return fmt.Errorf("timestamp_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.TimestampUnit)
	}
	if c.InitialFrameSkip != nil && *c.InitialFrameSkip < 1 {
		// The first replayed frame needs a predecessor for its IMU window bound.
		return fmt.Errorf("initial_frame_skip must be at least 1, got %d", *c.InitialFrameSkip)
	}
	if c.FinalFrame != nil && *c.FinalFrame < -1 {
		return fmt.Errorf("final_frame must be -1 or a frame index, got %d", *c.FinalFrame)
	}

	positive := map[string]*float64{
		"gyro_noise_density":  c.GyroNoiseDensity,
		"accel_noise_density": c.AccelNoiseDensity,
		"gyro_random_walk":    c.GyroRandomWalk,
		"accel_random_walk":   c.AccelRandomWalk,
		"gravity_magnitude":   c.GravityMagnitude,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}
	nonNegative := map[string]*float64{
		"imu_integration_sigma": c.ImuIntegrationSigma,
		"imu_rate_hz":           c.ImuRateHz,
		"replay_rate":           c.ReplayRate,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, *v)
		}
	}

	return nil
}

// GetLeftCamera returns the left device directory name or the default.
func (c *ReplayConfig) GetLeftCamera() string {
	if c.LeftCamera == nil {
		return "image_00"
	}
	return *c.LeftCamera
}

// GetRightCamera returns the right device directory name or the default.
func (c *ReplayConfig) GetRightCamera() string {
	if c.RightCamera == nil {
		return "image_01"
	}
	return *c.RightCamera
}

// GetCalibrationFile returns the calibration file path relative to the dataset root.
func (c *ReplayConfig) GetCalibrationFile() string {
	if c.CalibrationFile == nil {
		return "calib_cam_to_cam.txt"
	}
	return *c.CalibrationFile
}

// GetImuLogFile returns the IMU log path relative to the dataset root.
func (c *ReplayConfig) GetImuLogFile() string {
	if c.ImuLogFile == nil {
		return "oxts/imu.log"
	}
	return *c.ImuLogFile
}

// GetTimestampFiles returns the candidate per-device timestamp file names,
// in lookup order.
func (c *ReplayConfig) GetTimestampFiles() []string {
	if len(c.TimestampFiles) == 0 {
		return []string{"timestamps.log", "timestamps.txt"}
	}
	out := make([]string, len(c.TimestampFiles))
	copy(out, c.TimestampFiles)
	return out
}

// GetImageSubdir returns the per-device image directory name.
func (c *ReplayConfig) GetImageSubdir() string {
	if c.ImageSubdir == nil {
		return "data"
	}
	return *c.ImageSubdir
}

// GetTimestampUnit returns the unit of purely numeric timestamps.
func (c *ReplayConfig) GetTimestampUnit() string {
	if c.TimestampUnit == nil {
		return units.NS
	}
	return *c.TimestampUnit
}

// GetInitialFrameSkip returns the number of leading frames skipped before replay.
func (c *ReplayConfig) GetInitialFrameSkip() int {
	if c.InitialFrameSkip == nil {
		return 10
	}
	return *c.InitialFrameSkip
}

// GetFinalFrame returns the inclusive final frame cap, or -1 for none.
func (c *ReplayConfig) GetFinalFrame() int {
	if c.FinalFrame == nil {
		return -1
	}
	return *c.FinalFrame
}

// GetGyroNoiseDensity returns the gyroscope noise density (rad/s/sqrt(Hz)).
func (c *ReplayConfig) GetGyroNoiseDensity() float64 {
	if c.GyroNoiseDensity == nil {
		return 1.6968e-04
	}
	return *c.GyroNoiseDensity
}

// GetAccelNoiseDensity returns the accelerometer noise density (m/s^2/sqrt(Hz)).
func (c *ReplayConfig) GetAccelNoiseDensity() float64 {
	if c.AccelNoiseDensity == nil {
		return 2.0e-03
	}
	return *c.AccelNoiseDensity
}

// GetGyroRandomWalk returns the gyroscope bias random walk (rad/s^2/sqrt(Hz)).
func (c *ReplayConfig) GetGyroRandomWalk() float64 {
	if c.GyroRandomWalk == nil {
		return 1.9393e-05
	}
	return *c.GyroRandomWalk
}

// GetAccelRandomWalk returns the accelerometer bias random walk (m/s^3/sqrt(Hz)).
func (c *ReplayConfig) GetAccelRandomWalk() float64 {
	if c.AccelRandomWalk == nil {
		return 3.0e-03
	}
	return *c.AccelRandomWalk
}

// GetImuIntegrationSigma returns the preintegration covariance sigma.
func (c *ReplayConfig) GetImuIntegrationSigma() float64 {
	if c.ImuIntegrationSigma == nil {
		return 1.0e-08
	}
	return *c.ImuIntegrationSigma
}

// GetGravityMagnitude returns the local gravity magnitude (m/s^2).
func (c *ReplayConfig) GetGravityMagnitude() float64 {
	if c.GravityMagnitude == nil {
		return 9.81
	}
	return *c.GravityMagnitude
}

// GetImuRateHz returns the nominal IMU rate, 0 meaning estimate from the log.
func (c *ReplayConfig) GetImuRateHz() float64 {
	if c.ImuRateHz == nil {
		return 0
	}
	return *c.ImuRateHz
}

// GetReplayRate returns the replay pacing factor, 0 meaning unpaced.
func (c *ReplayConfig) GetReplayRate() float64 {
	if c.ReplayRate == nil {
		return 0
	}
	return *c.ReplayRate
}
