package kitti

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/units"
)

// kittiTimeLayout is the date-time format of KITTI raw timestamps.txt files,
// e.g. "2011-09-26 13:02:25.964389445". Times are UTC.
const kittiTimeLayout = "2006-01-02 15:04:05.999999999"

// ParseTimestamp converts one textual timestamp to nanoseconds. Accepted forms:
//   - KITTI date-time ("2011-09-26 13:02:25.964389445") or RFC 3339
//   - decimal seconds ("1317042145.964389445"), exact to the nanosecond
//   - seconds in exponent notation ("1.317042145e9")
//   - a plain integer, interpreted in unit (ns, us, ms or s)
func ParseTimestamp(field, unit string) (int64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, errors.New("empty timestamp")
	}

	switch {
	case strings.ContainsAny(s, " :"):
		t, err := time.Parse(kittiTimeLayout, s)
		if err != nil {
			if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
				return t2.UnixNano(), nil
			}
			return 0, fmt.Errorf("invalid date-time timestamp %q: %w", s, err)
		}
		return t.UnixNano(), nil
	case strings.ContainsAny(s, "eE"):
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return units.SecondsToNanos(secs)
	case strings.Contains(s, "."):
		return parseDecimalSeconds(s)
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return units.ToNanos(v, unit)
	}
}

// parseDecimalSeconds parses "SSSS.fffffffff" without going through float64,
// which would lose sub-microsecond precision at epoch magnitudes.
func parseDecimalSeconds(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if intPart == "" {
		intPart = "0"
	}
	if strings.Trim(intPart, "0123456789") != "" {
		return 0, fmt.Errorf("invalid timestamp %q: bad integer seconds", s)
	}
	if fracPart == "" || strings.Trim(fracPart, "0123456789") != "" {
		return 0, fmt.Errorf("invalid timestamp %q: bad fractional seconds", s)
	}
	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}
	secs, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	fracPart += strings.Repeat("0", 9-len(fracPart))
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ns, err := units.ToNanos(secs, units.S)
	if err != nil {
		return 0, err
	}
	ns += frac
	if neg {
		ns = -ns
	}
	return ns, nil
}

// ParseTimestamps reads one timestamp per line. Trailing blank lines are
// ignored; a blank line followed by more data would shift the alignment with
// the image list and is rejected, as is any line that fails to parse.
func ParseTimestamps(r io.Reader, unit string) ([]int64, error) {
	const op = "parse timestamps"

	var out []int64
	scanner := bufio.NewScanner(r)
	lineNo, blankLine := 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if blankLine == 0 {
				blankLine = lineNo
			}
			continue
		}
		if blankLine != 0 {
			return nil, parseErr(op, "", blankLine, errors.New("blank line before end of log"))
		}
		ts, err := ParseTimestamp(line, unit)
		if err != nil {
			return nil, parseErr(op, "", lineNo, err)
		}
		out = append(out, ts)
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErr(op, "", lineNo, err)
	}
	return out, nil
}

// ReadTimestampFile parses a device timestamp log from fsys.
func ReadTimestampFile(fsys fsutil.FileSystem, path, unit string) ([]int64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configErr("open timestamps", path, err)
		}
		return nil, parseErr("open timestamps", path, 0, err)
	}
	defer f.Close()

	ts, err := ParseTimestamps(f, unit)
	if err != nil {
		return nil, withPath(err, path)
	}
	return ts, nil
}
