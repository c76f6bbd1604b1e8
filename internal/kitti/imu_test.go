package kitti

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

func TestParseImuLog(t *testing.T) {
	log := strings.Join([]string{
		"# timestamp wx wy wz ax ay az",
		"100 0.1 0.2 0.3 1.0 2.0 9.81",
		"",
		"200,-0.1,-0.2,-0.3,-1.0,-2.0,9.80",
		"300\t0\t0\t0\t0\t0\t9.79",
	}, "\n")

	got, err := ParseImuLog(strings.NewReader(log), "ns")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, ImuSample{Timestamp: 100, Gyro: [3]float64{0.1, 0.2, 0.3}, Accel: [3]float64{1, 2, 9.81}}, got[0])
	assert.Equal(t, int64(200), got[1].Timestamp)
	assert.Equal(t, [3]float64{-0.1, -0.2, -0.3}, got[1].Gyro)
	assert.Equal(t, 9.79, got[2].Accel[2])
}

func TestParseImuLog_DateTimeStamps(t *testing.T) {
	log := "2011-09-26 13:02:25.964389445 0.1 0.2 0.3 1 2 3\n" +
		"2011-09-26 13:02:25.974389445 0.1 0.2 0.3 1 2 3\n"

	got, err := ParseImuLog(strings.NewReader(log), "ns")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10*time.Millisecond), got[1].Timestamp-got[0].Timestamp)
}

func TestParseImuLog_Errors(t *testing.T) {
	tests := []struct {
		name string
		log  string
		line int
	}{
		{"too few fields", "100 0.1 0.2 0.3 1 2\n", 1},
		{"too many fields", "100 0.1 0.2 0.3 1 2 3 4\n", 1},
		{"bad gyro", "100 0.1 x 0.3 1 2 3\n", 1},
		{"bad accel", "100 0.1 0.2 0.3 1 2 z\n", 1},
		{"NaN gyro", "100 NaN 0 0 0 0 0\n", 1},
		{"infinite accel", "100 0 0 0 0 0 Inf\n", 1},
		{"negative infinity", "# header\n100 0 0 0 0 0 0\n200 0 -inf 0 0 0 0\n", 3},
		{"bad timestamp", "abc 0.1 0.2 0.3 1 2 3\n", 1},
		{"repeated timestamp", "100 0 0 0 0 0 0\n100 0 0 0 0 0 0\n", 2},
		{"decreasing timestamp", "# header\n200 0 0 0 0 0 0\n150 0 0 0 0 0 0\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImuLog(strings.NewReader(tt.log), "ns")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.line, e.Line)
		})
	}
}

func TestReadImuLog(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/seq/oxts/imu.log", []byte("1 0 0 0 0 0 9.8\n2 0 0 0 0 0 9.8\n"), 0644))

	got, err := ReadImuLog(fs, "/seq/oxts/imu.log", "ms")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2_000_000), got[1].Timestamp)

	_, err = ReadImuLog(fs, "/seq/oxts/missing.log", "ns")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestReadImuLog_ParseErrorCarriesPath(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/seq/oxts/imu.log", []byte("1 0 0 0 0 0\n"), 0644))

	_, err := ReadImuLog(fs, "/seq/oxts/imu.log", "ns")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "/seq/oxts/imu.log", e.Path)
	assert.Equal(t, ErrParse, e.Kind)
}
