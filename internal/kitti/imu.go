package kitti

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// imuFieldCount is timestamp + 3 gyro + 3 accel.
const imuFieldCount = 7

// ParseImuLog reads one IMU sample per line: timestamp, angular velocity
// (x, y, z) and linear acceleration (x, y, z), separated by whitespace or
// commas. Lines starting with '#' and blank lines are skipped.
//
// Timestamps must be strictly increasing. The log is never re-sorted: an
// out-of-order record points at a corrupt log and fails the parse.
func ParseImuLog(r io.Reader, unit string) ([]ImuSample, error) {
	const op = "parse imu log"

	var out []ImuSample
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		// KITTI date-time stamps carry a space between date and time.
		if len(fields) == imuFieldCount+1 && strings.Contains(fields[1], ":") {
			fields = append([]string{fields[0] + " " + fields[1]}, fields[2:]...)
		}
		if len(fields) != imuFieldCount {
			return nil, parseErr(op, "", lineNo, fmt.Errorf("expected %d fields, got %d", imuFieldCount, len(fields)))
		}

		var s ImuSample
		var err error
		if s.Timestamp, err = ParseTimestamp(fields[0], unit); err != nil {
			return nil, parseErr(op, "", lineNo, err)
		}
		for i := 0; i < 3; i++ {
			if s.Gyro[i], err = parseFinite(fields[1+i]); err != nil {
				return nil, parseErr(op, "", lineNo, fmt.Errorf("angular velocity[%d]: %w", i, err))
			}
			if s.Accel[i], err = parseFinite(fields[4+i]); err != nil {
				return nil, parseErr(op, "", lineNo, fmt.Errorf("linear acceleration[%d]: %w", i, err))
			}
		}

		if n := len(out); n > 0 && s.Timestamp <= out[n-1].Timestamp {
			return nil, parseErr(op, "", lineNo, fmt.Errorf("timestamp %d not after previous %d", s.Timestamp, out[n-1].Timestamp))
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErr(op, "", lineNo, err)
	}
	return out, nil
}

// ReadImuLog parses the sequence's IMU log from fsys.
func ReadImuLog(fsys fsutil.FileSystem, path, unit string) ([]ImuSample, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configErr("open imu log", path, err)
		}
		return nil, parseErr("open imu log", path, 0, err)
	}
	defer f.Close()

	samples, err := ParseImuLog(f, unit)
	if err != nil {
		return nil, withPath(err, path)
	}
	return samples, nil
}

// parseFinite parses a float field, rejecting NaN and infinities.
func parseFinite(field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	return v, nil
}
