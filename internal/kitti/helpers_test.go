package kitti

import (
	"image"
	"testing"

	"github.com/banshee-data/kitti-replay/internal/config"
	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/monitoring"
	"github.com/banshee-data/kitti-replay/internal/testutil"
)

const seqRoot = "/data/2011_09_26_drive_0001_sync"

func quiet(t *testing.T) {
	t.Helper()
	t.Cleanup(monitoring.Mute())
}

func intPtr(v int) *int { return &v }

// skipConfig returns the default config with a custom leading frame skip.
func skipConfig(skip int) *config.ReplayConfig {
	return &config.ReplayConfig{InitialFrameSkip: intPtr(skip)}
}

// scenarioSequence is five frames 100ns apart with IMU samples straddling
// every interval except the first.
func scenarioSequence() testutil.Sequence {
	return testutil.Sequence{
		FrameTimestamps: []int64{100, 200, 300, 400, 500},
		ImuTimestamps:   []int64{150, 250, 260, 350, 450},
	}
}

func writeSequence(t *testing.T, seq testutil.Sequence) *fsutil.MemoryFileSystem {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	seq.Write(t, fs, seqRoot)
	return fs
}

// blankLoader returns a 1x1 image for every path.
var blankLoader = ImageLoaderFunc(func(string) (*image.Gray, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
})
