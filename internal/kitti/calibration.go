package kitti

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// calibEntry is one "KEY: v v v" line, kept as text until a consumer asks
// for it so unrelated entries (calib_time, corner_dist) never fail a parse.
type calibEntry struct {
	line   int
	fields []string
}

// Calibration is a parsed calib_cam_to_cam.txt.
type Calibration struct {
	path    string
	entries map[string]calibEntry
}

// ParseCalibration splits a calibration file into named entries.
func ParseCalibration(r io.Reader) (*Calibration, error) {
	c := &Calibration{entries: make(map[string]calibEntry)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, parseErr("parse calibration", "", lineNo, fmt.Errorf("expected \"KEY: values\", got %q", line))
		}
		key = strings.TrimSpace(key)
		if _, dup := c.entries[key]; dup {
			return nil, parseErr("parse calibration", "", lineNo, fmt.Errorf("duplicate entry %s", key))
		}
		c.entries[key] = calibEntry{line: lineNo, fields: strings.Fields(value)}
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErr("parse calibration", "", lineNo, err)
	}
	return c, nil
}

// Has reports whether the calibration carries key.
func (c *Calibration) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Values returns the numeric values of key, which must hold exactly n of them.
func (c *Calibration) Values(key string, n int) ([]float64, error) {
	e, ok := c.entries[key]
	if !ok {
		return nil, parseErr("read calibration", c.path, 0, fmt.Errorf("missing entry %s", key))
	}
	if len(e.fields) != n {
		return nil, parseErr("read calibration", c.path, e.line, fmt.Errorf("%s: expected %d values, got %d", key, n, len(e.fields)))
	}
	out := make([]float64, n)
	for i, f := range e.fields {
		v, err := parseFinite(f)
		if err != nil {
			return nil, parseErr("read calibration", c.path, e.line, fmt.Errorf("%s[%d]: %w", key, i, err))
		}
		out[i] = v
	}
	return out, nil
}

// Extrinsics returns the R_xx|T_xx transform of a camera, which maps points
// from the reference camera frame into this camera's frame.
func (c *Calibration) Extrinsics(suffix string) (Pose, error) {
	rv, err := c.Values("R_"+suffix, 9)
	if err != nil {
		return Pose{}, err
	}
	tv, err := c.Values("T_"+suffix, 3)
	if err != nil {
		return Pose{}, err
	}
	var r [9]float64
	var t [3]float64
	copy(r[:], rv)
	copy(t[:], tv)
	p := NewPose(r, t)
	if !p.IsRigid() {
		return Pose{}, parseErr("read calibration", c.path, c.entries["R_"+suffix].line,
			fmt.Errorf("R_%s is not a proper rotation", suffix))
	}
	return p, nil
}

// Camera reads the parameters of the camera with the given suffix ("00").
func (c *Calibration) Camera(name, suffix string) (CameraParams, error) {
	cam := CameraParams{Name: name, DistortionModel: DistortionRadTan}

	size, err := c.Values("S_"+suffix, 2)
	if err != nil {
		return cam, err
	}
	cam.Width, cam.Height = int(size[0]), int(size[1])
	if cam.Width <= 0 || cam.Height <= 0 {
		return cam, parseErr("read calibration", c.path, c.entries["S_"+suffix].line,
			fmt.Errorf("S_%s: invalid image size %vx%v", suffix, size[0], size[1]))
	}

	k, err := c.Values("K_"+suffix, 9)
	if err != nil {
		return cam, err
	}
	copy(cam.K[:], k)
	cam.Intrinsics = [4]float64{k[0], k[4], k[2], k[5]}

	if cam.Distortion, err = c.Values("D_"+suffix, 5); err != nil {
		return cam, err
	}

	extr, err := c.Extrinsics(suffix)
	if err != nil {
		return cam, err
	}
	if cam.BodyPose, err = extr.Inverse(); err != nil {
		return cam, parseErr("read calibration", c.path, c.entries["R_"+suffix].line, err)
	}

	if c.Has("R_rect_"+suffix) && c.Has("P_rect_"+suffix) {
		rr, err := c.Values("R_rect_"+suffix, 9)
		if err != nil {
			return cam, err
		}
		pr, err := c.Values("P_rect_"+suffix, 12)
		if err != nil {
			return cam, err
		}
		copy(cam.RectRotation[:], rr)
		copy(cam.RectProjection[:], pr)
		cam.HasRectification = true
	}
	return cam, nil
}

// StereoBaselinePose returns camL_Pose_camR, the transform taking points in
// the right camera frame into the left camera frame.
func (c *Calibration) StereoBaselinePose(leftSuffix, rightSuffix string) (Pose, error) {
	left, err := c.Extrinsics(leftSuffix)
	if err != nil {
		return Pose{}, err
	}
	right, err := c.Extrinsics(rightSuffix)
	if err != nil {
		return Pose{}, err
	}
	rightInv, err := right.Inverse()
	if err != nil {
		return Pose{}, parseErr("read calibration", c.path, 0, err)
	}
	return left.Compose(rightInv), nil
}

// DeviceSuffix maps a device directory name to its calibration key suffix:
// "image_02" -> "02". Names without trailing digits cannot be resolved.
func DeviceSuffix(device string) (string, error) {
	i := len(device)
	for i > 0 && device[i-1] >= '0' && device[i-1] <= '9' {
		i--
	}
	if i == len(device) {
		return "", configErr("resolve device", device, errors.New("device name has no numeric camera id"))
	}
	return device[i:], nil
}

// ReadCameraCalibration loads the calibration file under root and returns
// both cameras' parameters and the stereo baseline pose.
func ReadCameraCalibration(fsys fsutil.FileSystem, root, calibFile, leftDevice, rightDevice string) (map[string]CameraParams, Pose, error) {
	path := filepath.Join(root, calibFile)

	leftSuffix, err := DeviceSuffix(leftDevice)
	if err != nil {
		return nil, Pose{}, err
	}
	rightSuffix, err := DeviceSuffix(rightDevice)
	if err != nil {
		return nil, Pose{}, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Pose{}, configErr("open calibration", path, err)
		}
		return nil, Pose{}, parseErr("open calibration", path, 0, err)
	}
	defer f.Close()

	calib, err := ParseCalibration(f)
	if err != nil {
		return nil, Pose{}, withPath(err, path)
	}
	calib.path = path

	cameras := make(map[string]CameraParams, 2)
	for _, dev := range []struct{ name, suffix string }{{leftDevice, leftSuffix}, {rightDevice, rightSuffix}} {
		cam, err := calib.Camera(dev.name, dev.suffix)
		if err != nil {
			return nil, Pose{}, err
		}
		cameras[dev.name] = cam
	}

	baseline, err := calib.StereoBaselinePose(leftSuffix, rightSuffix)
	if err != nil {
		return nil, Pose{}, err
	}
	return cameras, baseline, nil
}
