package kitti

import (
	"image"
	"time"
)

// ImuSample is one IMU record. Timestamps share the nanosecond time base of
// the frame timestamps.
type ImuSample struct {
	Timestamp int64      // nanoseconds
	Gyro      [3]float64 // angular velocity, rad/s
	Accel     [3]float64 // linear acceleration, m/s^2
}

// ImuParams is the IMU noise and bias model handed to downstream estimators.
type ImuParams struct {
	GyroNoiseDensity    float64 `json:"gyro_noise_density" yaml:"gyro_noise_density"`   // rad/s/sqrt(Hz)
	AccelNoiseDensity   float64 `json:"accel_noise_density" yaml:"accel_noise_density"` // m/s^2/sqrt(Hz)
	GyroRandomWalk      float64 `json:"gyro_random_walk" yaml:"gyro_random_walk"`       // rad/s^2/sqrt(Hz)
	AccelRandomWalk     float64 `json:"accel_random_walk" yaml:"accel_random_walk"`     // m/s^3/sqrt(Hz)
	ImuIntegrationSigma float64 `json:"imu_integration_sigma" yaml:"imu_integration_sigma"`
	GravityMagnitude    float64 `json:"gravity_magnitude" yaml:"gravity_magnitude"` // m/s^2
	RateHz              float64 `json:"rate_hz" yaml:"rate_hz"`                     // nominal sample rate
}

// DistortionRadTan is the radial-tangential model KITTI's D_xx entries use
// (k1, k2, p1, p2, k3).
const DistortionRadTan = "radial-tangential"

// CameraParams holds one camera's intrinsic, distortion and extrinsic model
// as read from the calibration file.
type CameraParams struct {
	Name            string
	Width, Height   int
	Intrinsics      [4]float64 // fx, fy, cu, cv
	K               [9]float64 // row-major camera matrix
	DistortionModel string
	Distortion      []float64

	// Rectification, present only if the calibration file carries it.
	HasRectification bool
	RectRotation     [9]float64  // R_rect_xx, row-major
	RectProjection   [12]float64 // P_rect_xx, row-major 3x4

	// BodyPose is the camera's pose in the reference camera frame.
	BodyPose Pose

	// FrameRateHz is estimated from the device's timestamp log.
	FrameRateHz float64
}

// SynchronizedPacket is what replay hands to the consumer for one frame. It
// is built per step and owns nothing beyond its own buffers.
type SynchronizedPacket struct {
	FrameIndex     int
	Timestamp      int64 // current frame capture time, ns
	PrevTimestamp  int64 // lower (exclusive) bound of ImuWindow, ns
	LeftImagePath  string
	RightImagePath string
	LeftImage      *image.Gray
	RightImage     *image.Gray
	ImuWindow      []ImuSample // samples with PrevTimestamp < t <= Timestamp
}

// Time returns the frame timestamp as a time.Time.
func (p *SynchronizedPacket) Time() time.Time {
	return time.Unix(0, p.Timestamp).UTC()
}

// Interval returns the span the IMU window covers.
func (p *SynchronizedPacket) Interval() time.Duration {
	return time.Duration(p.Timestamp - p.PrevTimestamp)
}
