package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// fatalRecorder is a testing.TB that records Fatal calls instead of
// stopping the test.
type fatalRecorder struct {
	testing.TB
	fatals []string
}

func (r *fatalRecorder) Helper() {}

func (r *fatalRecorder) Fatal(args ...any) {
	r.fatals = append(r.fatals, fmt.Sprint(args...))
}

func (r *fatalRecorder) Fatalf(format string, args ...any) {
	r.fatals = append(r.fatals, fmt.Sprintf(format, args...))
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	rec := &fatalRecorder{TB: t}
	AssertNoError(rec, nil)
	if len(rec.fatals) != 0 {
		t.Errorf("nil error reported: %v", rec.fatals)
	}

	AssertNoError(rec, errors.New("boom"))
	if len(rec.fatals) != 1 || !strings.Contains(rec.fatals[0], "boom") {
		t.Errorf("expected one failure mentioning boom, got %v", rec.fatals)
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	rec := &fatalRecorder{TB: t}
	AssertError(rec, errors.New("boom"))
	if len(rec.fatals) != 0 {
		t.Errorf("non-nil error reported: %v", rec.fatals)
	}

	AssertError(rec, nil)
	if len(rec.fatals) != 1 {
		t.Errorf("expected one failure for nil error, got %v", rec.fatals)
	}
}

func TestCalibration_HasBothCameras(t *testing.T) {
	t.Parallel()

	calib := Calibration([3]float64{-0.5, 0, 0})
	for _, key := range []string{"S_00:", "K_00:", "D_00:", "R_00:", "T_00:", "T_01:", "P_rect_01:"} {
		if !strings.Contains(calib, key) {
			t.Errorf("calibration missing %s", key)
		}
	}
	if !strings.Contains(calib, "T_01: -5.000000e-01") {
		t.Errorf("T_01 not encoded as expected:\n%s", calib)
	}

	without := WithoutEntry(calib, "T_01")
	if strings.Contains(without, "T_01:") {
		t.Error("WithoutEntry left T_01 in place")
	}
	if !strings.Contains(without, "T_00:") {
		t.Error("WithoutEntry removed an unrelated key")
	}
}

func TestPNG_Decodes(t *testing.T) {
	t.Parallel()

	img, err := png.Decode(bytes.NewReader(PNG(4, 3, 7)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("bounds = %v", b)
	}
}

func TestSequence_Write(t *testing.T) {
	t.Parallel()

	fs := fsutil.NewMemoryFileSystem()
	Sequence{
		FrameTimestamps: Range(100, 100, 3),
		ImuTimestamps:   []int64{150, 250},
		RightImages:     2,
	}.Write(t, fs, "/seq")

	for _, p := range []string{
		"calib_cam_to_cam.txt",
		"image_00/timestamps.txt",
		"image_00/data/0000000002.png",
		"image_01/data/0000000001.png",
		"oxts/imu.log",
	} {
		if !fs.Exists(filepath.Join("/seq", p)) {
			t.Errorf("missing %s", p)
		}
	}
	if fs.Exists("/seq/image_01/data/0000000002.png") {
		t.Error("right camera should have only two images")
	}

	ts, err := fs.ReadFile("/seq/image_00/timestamps.txt")
	AssertNoError(t, err)
	if string(ts) != "100\n200\n300\n" {
		t.Errorf("timestamps = %q", ts)
	}
	imu, err := fs.ReadFile("/seq/oxts/imu.log")
	AssertNoError(t, err)
	if !strings.Contains(string(imu), ImuLine(250)) {
		t.Errorf("imu log = %q", imu)
	}
}

func TestRange(t *testing.T) {
	t.Parallel()

	got := Range(5, 10, 3)
	if len(got) != 3 || got[0] != 5 || got[2] != 25 {
		t.Errorf("Range = %v", got)
	}
}
