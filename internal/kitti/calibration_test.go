package kitti

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/testutil"
)

func readCalibration(t *testing.T, body string) (map[string]CameraParams, Pose, error) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/seq/calib_cam_to_cam.txt", []byte(body), 0644))
	return ReadCameraCalibration(fs, "/seq", "calib_cam_to_cam.txt", "image_00", "image_01")
}

func TestReadCameraCalibration(t *testing.T) {
	cams, baseline, err := readCalibration(t, testutil.Calibration([3]float64{-0.537, 0, 0}))
	require.NoError(t, err)
	require.Len(t, cams, 2)

	left := cams["image_00"]
	assert.Equal(t, "image_00", left.Name)
	assert.Equal(t, 1392, left.Width)
	assert.Equal(t, 512, left.Height)
	assert.InDeltaSlice(t, []float64{984.2439, 980.8141, 690.0, 233.1966}, left.Intrinsics[:], 1e-9)
	assert.Equal(t, DistortionRadTan, left.DistortionModel)
	assert.Len(t, left.Distortion, 5)
	assert.True(t, left.HasRectification)
	assert.InDelta(t, 721.5377, left.RectProjection[0], 1e-9)
	assert.True(t, left.BodyPose.ApproxEqual(IdentityPose(), 1e-12))

	right := cams["image_01"]
	assert.InDeltaSlice(t, []float64{0.537, 0, 0}, sliceOf(right.BodyPose.Translation()), 1e-9)

	assert.True(t, baseline.IsRigid())
	assert.InDeltaSlice(t, []float64{0.537, 0, 0}, sliceOf(baseline.Translation()), 1e-9)
	assert.InDelta(t, 0.537, baseline.TranslationNorm(), 1e-9)
}

func sliceOf(v [3]float64) []float64 { return v[:] }

func TestReadCameraCalibration_WithoutRectification(t *testing.T) {
	body := testutil.Calibration(testutil.DefaultBaseline)
	body = testutil.WithoutEntry(body, "P_rect_01")

	cams, _, err := readCalibration(t, body)
	require.NoError(t, err)
	assert.True(t, cams["image_00"].HasRectification)
	assert.False(t, cams["image_01"].HasRectification)
}

func TestReadCameraCalibration_Errors(t *testing.T) {
	base := testutil.Calibration(testutil.DefaultBaseline)

	tests := []struct {
		name string
		body string
	}{
		{"missing T_01", testutil.WithoutEntry(base, "T_01")},
		{"missing K_00", testutil.WithoutEntry(base, "K_00")},
		{"short D_01", testutil.WithoutEntry(base, "D_01") + "D_01: 0.1 0.2 0.3\n"},
		{"non-numeric S_00", testutil.WithoutEntry(base, "S_00") + "S_00: wide tall\n"},
		{"NaN in K_01", testutil.WithoutEntry(base, "K_01") + "K_01: NaN 0 690 0 980 233 0 0 1\n"},
		{"infinite T_01", testutil.WithoutEntry(base, "T_01") + "T_01: +Inf 0 0\n"},
		{"zero size", testutil.WithoutEntry(base, "S_01") + "S_01: 0 512\n"},
		{"scaled rotation", testutil.WithoutEntry(base, "R_01") + "R_01: 2 0 0 0 1 0 0 0 1\n"},
		{"reflection", testutil.WithoutEntry(base, "R_01") + "R_01: -1 0 0 0 1 0 0 0 1\n"},
		{"duplicate key", base + "T_00: 0 0 0\n"},
		{"line without colon", base + "this is not calibration\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cams, _, err := readCalibration(t, tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
			assert.Nil(t, cams)
			assert.Contains(t, err.Error(), "calib_cam_to_cam.txt")
		})
	}
}

func TestReadCameraCalibration_MissingFile(t *testing.T) {
	_, _, err := ReadCameraCalibration(fsutil.NewMemoryFileSystem(), "/seq", "calib_cam_to_cam.txt", "image_00", "image_01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestReadCameraCalibration_UnresolvableDevice(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/seq/calib_cam_to_cam.txt", []byte(testutil.Calibration(testutil.DefaultBaseline)), 0644))

	_, _, err := ReadCameraCalibration(fs, "/seq", "calib_cam_to_cam.txt", "left", "image_01")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = ReadCameraCalibration(fs, "/seq", "calib_cam_to_cam.txt", "image_00", "image_03")
	assert.ErrorIs(t, err, ErrParse, "camera 03 has no entries")
}

func TestParseCalibration_IgnoresUnusedEntries(t *testing.T) {
	c, err := ParseCalibration(strings.NewReader("calib_time: 09-Jan-2012 13:57:47\n# comment\n\nT_00: 1 2 3\n"))
	require.NoError(t, err)
	assert.True(t, c.Has("calib_time"))
	assert.False(t, c.Has("T_01"))

	v, err := c.Values("T_00", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)

	_, err = c.Values("calib_time", 2)
	assert.ErrorIs(t, err, ErrParse)
}

func TestDeviceSuffix(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"image_00", "00"},
		{"image_02", "02"},
		{"cam1", "1"},
	}
	for _, tt := range tests {
		got, err := DeviceSuffix(tt.device)
		require.NoError(t, err, tt.device)
		assert.Equal(t, tt.want, got)
	}

	_, err := DeviceSuffix("left")
	assert.ErrorIs(t, err, ErrConfiguration)
}
