// Package testutil provides shared test helpers and synthetic sequence
// fixtures laid out like a KITTI raw recording.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Calibration returns a calib_cam_to_cam.txt body for cameras 00 and 01 with
// identity rotations, camera 00 at the origin and camera 01 translated by t01.
func Calibration(t01 [3]float64) string {
	var b strings.Builder
	b.WriteString("calib_time: 09-Jan-2012 13:57:47\n")
	b.WriteString("corner_dist: 9.950000e-02\n")
	for _, cam := range []struct {
		id string
		t  [3]float64
	}{{"00", [3]float64{}}, {"01", t01}} {
		fmt.Fprintf(&b, "S_%s: 1.392000e+03 5.120000e+02\n", cam.id)
		fmt.Fprintf(&b, "K_%s: 9.842439e+02 0.000000e+00 6.900000e+02 0.000000e+00 9.808141e+02 2.331966e+02 0.000000e+00 0.000000e+00 1.000000e+00\n", cam.id)
		fmt.Fprintf(&b, "D_%s: -3.728755e-01 2.037299e-01 2.219027e-03 1.383707e-03 -7.233722e-02\n", cam.id)
		fmt.Fprintf(&b, "R_%s: 1.000000e+00 0.000000e+00 0.000000e+00 0.000000e+00 1.000000e+00 0.000000e+00 0.000000e+00 0.000000e+00 1.000000e+00\n", cam.id)
		fmt.Fprintf(&b, "T_%s: %e %e %e\n", cam.id, cam.t[0], cam.t[1], cam.t[2])
		fmt.Fprintf(&b, "S_rect_%s: 1.242000e+03 3.750000e+02\n", cam.id)
		fmt.Fprintf(&b, "R_rect_%s: 1.000000e+00 0.000000e+00 0.000000e+00 0.000000e+00 1.000000e+00 0.000000e+00 0.000000e+00 0.000000e+00 1.000000e+00\n", cam.id)
		fmt.Fprintf(&b, "P_rect_%s: 7.215377e+02 0.000000e+00 6.095593e+02 0.000000e+00 0.000000e+00 7.215377e+02 1.728540e+02 0.000000e+00 0.000000e+00 0.000000e+00 1.000000e+00 0.000000e+00\n", cam.id)
	}
	return b.String()
}

// DefaultBaseline is the camera 01 translation used by Sequence fixtures.
var DefaultBaseline = [3]float64{-0.537, 0, 0}

// WithoutEntry drops every line of a calibration body whose key is key.
func WithoutEntry(calib, key string) string {
	var out []string
	for _, line := range strings.Split(calib, "\n") {
		if strings.HasPrefix(line, key+":") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// PNG encodes a w x h grayscale image filled with v.
func PNG(w, h int, v uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ColorPNG encodes a w x h RGBA image filled with c.
func ColorPNG(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Sequence describes a synthetic recording. Zero-valued fields take the
// defaults noted on each.
type Sequence struct {
	LeftDevice  string // "image_00"
	RightDevice string // "image_01"

	FrameTimestamps []int64 // left camera, one per image, nanoseconds
	RightTimestamps []int64 // nil copies FrameTimestamps
	RightImages     int     // 0 matches len(FrameTimestamps)
	ImuTimestamps   []int64

	Calibration   string // "" uses Calibration(DefaultBaseline)
	NoCalibration bool

	TimestampFile string // "timestamps.txt"
	ImuLogFile    string // "oxts/imu.log"
	ImageSubdir   string // "data"; "-" writes images directly under the device dir

	// Image returns the encoded bytes for frame i of a camera. nil writes
	// a 4x3 PNG whose gray level is the frame index.
	Image func(device string, i int) []byte
}

// FrameName is the KITTI image file name of frame i.
func FrameName(i int) string {
	return fmt.Sprintf("%010d.png", i)
}

// ImuLine formats one IMU record at ts.
func ImuLine(ts int64) string {
	return strconv.FormatInt(ts, 10) + " 0.010 -0.020 0.030 0.100 0.200 9.810"
}

// Write lays the sequence out under root on fsys.
func (s Sequence) Write(t testing.TB, fsys fsutil.FileSystem, root string) {
	t.Helper()

	left, right := s.LeftDevice, s.RightDevice
	if left == "" {
		left = "image_00"
	}
	if right == "" {
		right = "image_01"
	}
	tsFile := s.TimestampFile
	if tsFile == "" {
		tsFile = "timestamps.txt"
	}
	imuFile := s.ImuLogFile
	if imuFile == "" {
		imuFile = "oxts/imu.log"
	}
	subdir := s.ImageSubdir
	if subdir == "" {
		subdir = "data"
	}
	if subdir == "-" {
		subdir = ""
	}
	rightTs := s.RightTimestamps
	if rightTs == nil {
		rightTs = s.FrameTimestamps
	}
	rightImages := s.RightImages
	if rightImages == 0 {
		rightImages = len(s.FrameTimestamps)
	}
	imageFn := s.Image
	if imageFn == nil {
		imageFn = func(_ string, i int) []byte { return PNG(4, 3, uint8(i)) }
	}

	write := func(path string, data []byte) {
		t.Helper()
		if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := fsys.WriteFile(path, data, 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	if !s.NoCalibration {
		calib := s.Calibration
		if calib == "" {
			calib = Calibration(DefaultBaseline)
		}
		write(filepath.Join(root, "calib_cam_to_cam.txt"), []byte(calib))
	}

	for _, dev := range []struct {
		name   string
		ts     []int64
		images int
	}{{left, s.FrameTimestamps, len(s.FrameTimestamps)}, {right, rightTs, rightImages}} {
		var lines []string
		for _, ts := range dev.ts {
			lines = append(lines, strconv.FormatInt(ts, 10))
		}
		write(filepath.Join(root, dev.name, tsFile), []byte(strings.Join(lines, "\n")+"\n"))
		for i := 0; i < dev.images; i++ {
			write(filepath.Join(root, dev.name, subdir, FrameName(i)), imageFn(dev.name, i))
		}
	}

	var imu []string
	imu = append(imu, "# timestamp wx wy wz ax ay az")
	for _, ts := range s.ImuTimestamps {
		imu = append(imu, ImuLine(ts))
	}
	write(filepath.Join(root, imuFile), []byte(strings.Join(imu, "\n")+"\n"))
}

// Range returns n timestamps start, start+step, ...
func Range(start, step int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = start + int64(i)*step
	}
	return out
}
