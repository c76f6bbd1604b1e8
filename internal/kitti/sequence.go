package kitti

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/kitti-replay/internal/config"
	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/monitoring"
)

// SequenceIndex is the committed, read-only view of one recorded sequence.
// Image lists and frame timestamps are index-aligned; every frame in
// [InitialFrame, FinalFrame] has a predecessor whose timestamp bounds its
// IMU window from below.
type SequenceIndex struct {
	root         string
	initialFrame int
	finalFrame   int
	leftDevice   string
	rightDevice  string
	cameras      map[string]CameraParams
	baseline     Pose
	leftImages   []string
	rightImages  []string
	timestamps   []int64
	imuParams    ImuParams
	imu          []ImuSample
}

// BuildSequenceIndex parses every file of the sequence under root and
// commits an index only once all of them agree. It never returns a partial
// index: on failure the index is nil and the error is a *Error.
func BuildSequenceIndex(fsys fsutil.FileSystem, root string, cfg *config.ReplayConfig) (*SequenceIndex, error) {
	if cfg == nil {
		cfg = config.EmptyReplayConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, configErr("validate config", "", err)
	}
	if !fsutil.IsDir(fsys, root) {
		return nil, configErr("open dataset", root, fmt.Errorf("dataset root is not a directory"))
	}

	left, right := cfg.GetLeftCamera(), cfg.GetRightCamera()
	for _, dev := range []string{left, right} {
		if !fsutil.IsDir(fsys, filepath.Join(root, dev)) {
			return nil, configErr("resolve device", filepath.Join(root, dev), fmt.Errorf("device directory %q not found", dev))
		}
	}

	cameras, baseline, err := ReadCameraCalibration(fsys, root, cfg.GetCalibrationFile(), left, right)
	if err != nil {
		return nil, err
	}

	leftImages, err := ListImages(fsys, ImageDir(fsys, root, left, cfg.GetImageSubdir()))
	if err != nil {
		return nil, err
	}
	rightImages, err := ListImages(fsys, ImageDir(fsys, root, right, cfg.GetImageSubdir()))
	if err != nil {
		return nil, err
	}

	unit := cfg.GetTimestampUnit()
	leftTs, err := readDeviceTimestamps(fsys, root, left, cfg.GetTimestampFiles(), unit)
	if err != nil {
		return nil, err
	}
	rightTs, err := readDeviceTimestamps(fsys, root, right, cfg.GetTimestampFiles(), unit)
	if err != nil {
		return nil, err
	}

	imu, err := ReadImuLog(fsys, filepath.Join(root, cfg.GetImuLogFile()), unit)
	if err != nil {
		return nil, err
	}

	if err := reconcile(leftImages, rightImages, leftTs, rightTs); err != nil {
		return nil, err
	}

	initial, final, err := frameRange(leftTs, imu, cfg.GetInitialFrameSkip(), cfg.GetFinalFrame())
	if err != nil {
		return nil, err
	}

	leftCam, rightCam := cameras[left], cameras[right]
	leftCam.FrameRateHz = EstimateRateHz(leftTs)
	rightCam.FrameRateHz = EstimateRateHz(rightTs)
	cameras[left], cameras[right] = leftCam, rightCam

	idx := &SequenceIndex{
		root:         root,
		initialFrame: initial,
		finalFrame:   final,
		leftDevice:   left,
		rightDevice:  right,
		cameras:      cameras,
		baseline:     baseline,
		leftImages:   leftImages,
		rightImages:  rightImages,
		timestamps:   leftTs,
		imuParams:    ImuParamsFromConfig(cfg, imu),
		imu:          imu,
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// readDeviceTimestamps loads the first timestamp file candidate that exists
// in the device directory.
func readDeviceTimestamps(fsys fsutil.FileSystem, root, device string, candidates []string, unit string) ([]int64, error) {
	for _, name := range candidates {
		path := filepath.Join(root, device, name)
		if fsys.Exists(path) {
			return ReadTimestampFile(fsys, path, unit)
		}
	}
	return nil, configErr("find timestamps", filepath.Join(root, device), fmt.Errorf("none of %v present", candidates))
}

// reconcile checks the cross-file contract: equal, non-empty image lists, one
// timestamp per image, non-decreasing frame times, and right-camera stamps
// that agree with the left ones to within half a frame interval.
func reconcile(leftImages, rightImages []string, leftTs, rightTs []int64) error {
	const op = "reconcile sequence"

	if len(leftImages) == 0 || len(rightImages) == 0 {
		return consistencyErr(op, "no images found (left=%d right=%d)", len(leftImages), len(rightImages))
	}
	if len(leftImages) != len(rightImages) {
		return consistencyErr(op, "left camera has %d images, right has %d", len(leftImages), len(rightImages))
	}
	if len(leftTs) != len(leftImages) {
		return consistencyErr(op, "left camera has %d images but %d timestamps", len(leftImages), len(leftTs))
	}
	if len(rightTs) != len(rightImages) {
		return consistencyErr(op, "right camera has %d images but %d timestamps", len(rightImages), len(rightTs))
	}
	for i := 1; i < len(leftTs); i++ {
		if leftTs[i] < leftTs[i-1] {
			return consistencyErr(op, "left timestamps decrease at frame %d (%d < %d)", i, leftTs[i], leftTs[i-1])
		}
		if rightTs[i] < rightTs[i-1] {
			return consistencyErr(op, "right timestamps decrease at frame %d (%d < %d)", i, rightTs[i], rightTs[i-1])
		}
	}

	// Repeated frame times would drive a plain median to zero, so the
	// tolerance comes from the intervals where time actually advanced.
	median := medianPositiveInterval(leftTs)
	if median == 0 {
		monitoring.Warnf("[kitti] all frame timestamps are equal, skipping left/right timestamp check")
		return nil
	}
	tolerance := int64(median / 2)
	for i := range leftTs {
		d := leftTs[i] - rightTs[i]
		if d < 0 {
			d = -d
		}
		if d > tolerance {
			return consistencyErr(op, "frame %d: left/right timestamps differ by %v (tolerance %v)",
				i, time.Duration(d), time.Duration(tolerance))
		}
	}
	return nil
}

// medianPositiveInterval is the median of the non-zero gaps between
// consecutive timestamps, or 0 if time never advances.
func medianPositiveInterval(ts []int64) float64 {
	var dts []float64
	for i := 1; i < len(ts); i++ {
		if d := ts[i] - ts[i-1]; d > 0 {
			dts = append(dts, float64(d))
		}
	}
	if len(dts) == 0 {
		return 0
	}
	sort.Float64s(dts)
	return stat.Quantile(0.5, stat.Empirical, dts, nil)
}

// frameRange picks the usable inclusive frame range. At least skip leading
// frames are dropped (skip >= 1 so the first frame has a predecessor), and
// more if the IMU log starts after them: the first usable frame must have at
// least one IMU sample strictly before its timestamp.
func frameRange(ts []int64, imu []ImuSample, skip, finalCap int) (int, int, error) {
	const op = "select frame range"

	if len(imu) == 0 {
		return 0, 0, consistencyErr(op, "IMU log has no samples")
	}
	if skip < 1 {
		skip = 1
	}

	initial := skip
	for initial < len(ts) && imu[0].Timestamp >= ts[initial] {
		initial++
	}
	if initial != skip && initial < len(ts) {
		monitoring.Warnf("[kitti] IMU log starts at %d, skipping %d frames instead of %d", imu[0].Timestamp, initial, skip)
	}

	final := len(ts) - 1
	if finalCap >= 0 && finalCap < final {
		final = finalCap
	}
	if initial > final {
		return 0, 0, consistencyErr(op, "no usable frames: first usable frame %d is after final frame %d (of %d)", initial, final, len(ts))
	}
	if last := imu[len(imu)-1].Timestamp; last < ts[final] {
		monitoring.Warnf("[kitti] IMU log ends at %d before final frame time %d; trailing windows will be short", last, ts[final])
	}
	return initial, final, nil
}

// Validate re-checks every index invariant and explains the first violation.
func (s *SequenceIndex) Validate() error {
	const op = "validate index"

	if s == nil {
		return consistencyErr(op, "index is nil")
	}
	if err := reconcileAligned(s.leftImages, s.rightImages, s.timestamps); err != nil {
		return err
	}
	for i := 1; i < len(s.imu); i++ {
		if s.imu[i].Timestamp <= s.imu[i-1].Timestamp {
			return consistencyErr(op, "IMU timestamps not strictly increasing at sample %d", i)
		}
	}
	if s.initialFrame < 1 || s.initialFrame > s.finalFrame || s.finalFrame >= len(s.timestamps) {
		return consistencyErr(op, "invalid frame range [%d, %d] for %d frames", s.initialFrame, s.finalFrame, len(s.timestamps))
	}
	for _, dev := range []string{s.leftDevice, s.rightDevice} {
		if _, ok := s.cameras[dev]; !ok {
			return consistencyErr(op, "no camera parameters for %q", dev)
		}
	}
	return nil
}

func reconcileAligned(left, right []string, ts []int64) error {
	const op = "validate index"
	if len(left) == 0 || len(right) == 0 {
		return consistencyErr(op, "no images")
	}
	if len(left) != len(right) || len(ts) != len(left) {
		return consistencyErr(op, "misaligned lists: left=%d right=%d timestamps=%d", len(left), len(right), len(ts))
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] < ts[i-1] {
			return consistencyErr(op, "frame timestamps decrease at frame %d", i)
		}
	}
	return nil
}

// IsValid reports whether every index invariant holds.
func (s *SequenceIndex) IsValid() bool {
	return s.Validate() == nil
}

// Root returns the dataset root the index was built from.
func (s *SequenceIndex) Root() string { return s.root }

// InitialFrame returns the first replayed frame index.
func (s *SequenceIndex) InitialFrame() int { return s.initialFrame }

// FinalFrame returns the last replayed frame index (inclusive).
func (s *SequenceIndex) FinalFrame() int { return s.finalFrame }

// LeftDevice returns the left camera's device identifier.
func (s *SequenceIndex) LeftDevice() string { return s.leftDevice }

// RightDevice returns the right camera's device identifier.
func (s *SequenceIndex) RightDevice() string { return s.rightDevice }

// NumFrames returns the total number of frames, including skipped ones.
func (s *SequenceIndex) NumFrames() int { return len(s.timestamps) }

// NumImuSamples returns the size of the IMU stream.
func (s *SequenceIndex) NumImuSamples() int { return len(s.imu) }

// Camera returns the parameters of a device.
func (s *SequenceIndex) Camera(device string) (CameraParams, bool) {
	c, ok := s.cameras[device]
	if ok {
		c.Distortion = slices.Clone(c.Distortion)
	}
	return c, ok
}

// StereoBaselinePose returns camL_Pose_camR.
func (s *SequenceIndex) StereoBaselinePose() Pose { return s.baseline }

// ImuParams returns the IMU noise model.
func (s *SequenceIndex) ImuParams() ImuParams { return s.imuParams }

// LeftImagePath returns the left image of frame i.
func (s *SequenceIndex) LeftImagePath(i int) string { return s.leftImages[i] }

// RightImagePath returns the right image of frame i.
func (s *SequenceIndex) RightImagePath(i int) string { return s.rightImages[i] }

// FrameTimestamp returns the capture time of frame i in nanoseconds.
func (s *SequenceIndex) FrameTimestamp(i int) int64 { return s.timestamps[i] }

// FrameTimestamps returns a copy of all frame timestamps.
func (s *SequenceIndex) FrameTimestamps() []int64 { return slices.Clone(s.timestamps) }

// ImuSamples returns a copy of the IMU stream.
func (s *SequenceIndex) ImuSamples() []ImuSample { return slices.Clone(s.imu) }

// ImuWindow returns the IMU samples with timestamps in
// (FrameTimestamp(i-1), FrameTimestamp(i)]. It is empty, never an error, when
// no sample falls in the interval or i has no predecessor.
func (s *SequenceIndex) ImuWindow(i int) []ImuSample {
	if i < 1 || i >= len(s.timestamps) {
		return nil
	}
	return s.imuBetween(s.timestamps[i-1], s.timestamps[i])
}

// imuBetween returns a copy of the samples with lo < t <= hi.
func (s *SequenceIndex) imuBetween(lo, hi int64) []ImuSample {
	start := sort.Search(len(s.imu), func(k int) bool { return s.imu[k].Timestamp > lo })
	end := sort.Search(len(s.imu), func(k int) bool { return s.imu[k].Timestamp > hi })
	if start >= end {
		return []ImuSample{}
	}
	return slices.Clone(s.imu[start:end])
}

// Summary condenses the index for logging and cataloguing.
type Summary struct {
	Root           string  `json:"root" yaml:"root"`
	LeftDevice     string  `json:"left_device" yaml:"left_device"`
	RightDevice    string  `json:"right_device" yaml:"right_device"`
	NumFrames      int     `json:"num_frames" yaml:"num_frames"`
	InitialFrame   int     `json:"initial_frame" yaml:"initial_frame"`
	FinalFrame     int     `json:"final_frame" yaml:"final_frame"`
	NumImuSamples  int     `json:"num_imu_samples" yaml:"num_imu_samples"`
	FirstTimestamp int64   `json:"first_timestamp_ns" yaml:"first_timestamp_ns"`
	LastTimestamp  int64   `json:"last_timestamp_ns" yaml:"last_timestamp_ns"`
	BaselineMeters float64 `json:"baseline_m" yaml:"baseline_m"`
	FrameRateHz    float64 `json:"frame_rate_hz" yaml:"frame_rate_hz"`
	ImuRateHz      float64 `json:"imu_rate_hz" yaml:"imu_rate_hz"`
}

// Summary returns the headline numbers of the index.
func (s *SequenceIndex) Summary() Summary {
	sum := Summary{
		Root:           s.root,
		LeftDevice:     s.leftDevice,
		RightDevice:    s.rightDevice,
		NumFrames:      len(s.timestamps),
		InitialFrame:   s.initialFrame,
		FinalFrame:     s.finalFrame,
		NumImuSamples:  len(s.imu),
		BaselineMeters: s.baseline.TranslationNorm(),
		FrameRateHz:    s.cameras[s.leftDevice].FrameRateHz,
		ImuRateHz:      s.imuParams.RateHz,
	}
	if len(s.timestamps) > 0 {
		sum.FirstTimestamp = s.timestamps[0]
		sum.LastTimestamp = s.timestamps[len(s.timestamps)-1]
	}
	return sum
}

// Duration returns the time covered by all frames.
func (s Summary) Duration() time.Duration {
	return time.Duration(s.LastTimestamp - s.FirstTimestamp)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d frames (replay %d..%d), %d IMU samples @ %.1f Hz, camera %.1f Hz, baseline %.3f m, duration %v",
		s.Root, s.NumFrames, s.InitialFrame, s.FinalFrame, s.NumImuSamples, s.ImuRateHz, s.FrameRateHz, s.BaselineMeters, s.Duration())
}
