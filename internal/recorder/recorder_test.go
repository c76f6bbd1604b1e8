package recorder

import (
	"encoding/json"
	"image"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/kitti"
	"github.com/banshee-data/kitti-replay/internal/version"
)

func testPacket(i int) *kitti.SynchronizedPacket {
	ts := int64(i) * 100_000_000
	return &kitti.SynchronizedPacket{
		FrameIndex:     i,
		Timestamp:      ts,
		PrevTimestamp:  ts - 100_000_000,
		LeftImagePath:  "/seq/image_00/data/left.png",
		RightImagePath: "/seq/image_01/data/right.png",
		LeftImage:      image.NewGray(image.Rect(0, 0, 8, 6)),
		RightImage:     image.NewGray(image.Rect(0, 0, 8, 6)),
		ImuWindow: []kitti.ImuSample{
			{Timestamp: ts - 50_000_000, Gyro: [3]float64{0.1, 0.2, 0.3}, Accel: [3]float64{0, 0, 9.81}},
			{Timestamp: ts, Gyro: [3]float64{-0.1, 0, 0}, Accel: [3]float64{1, 0, 9.8}},
		},
	}
}

func record(t *testing.T, fs fsutil.FileSystem, n int) *Recorder {
	t.Helper()
	rec, err := NewRecorder(fs, "/out/run"+FileExtension, "/seq")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, rec.Record(testPacket(i)))
	}
	require.NoError(t, rec.Close())
	return rec
}

func TestFromPacket(t *testing.T) {
	p := FromPacket(testPacket(3))
	assert.Equal(t, 3, p.FrameIndex)
	assert.Equal(t, int64(300_000_000), p.TimestampNs)
	assert.Equal(t, int64(200_000_000), p.PrevTimestampNs)
	assert.Equal(t, 8, p.Width)
	assert.Equal(t, 6, p.Height)
	require.Len(t, p.Imu, 2)
	assert.Equal(t, int64(250_000_000), p.Imu[0].TimestampNs)
	assert.Equal(t, [3]float64{0, 0, 9.81}, p.Imu[0].Accel)
}

func TestRecorderReplayer_RoundTrip(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, 5)
	assert.Equal(t, uint64(5), rec.PacketCount())

	rp, err := NewReplayer(fs, rec.Path())
	require.NoError(t, err)

	h := rp.Header()
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, version.Version, h.RecorderVersion)
	assert.Equal(t, "/seq", h.Sequence)
	assert.Equal(t, uint64(5), h.TotalPackets)
	assert.Equal(t, uint64(10), h.TotalImu)
	assert.Equal(t, int64(100_000_000), h.StartNs)
	assert.Equal(t, int64(500_000_000), h.EndNs)
	assert.Len(t, h.RunID, 36)
	assert.Equal(t, 5, rp.TotalPackets())

	for i := 1; i <= 5; i++ {
		got, err := rp.ReadPacket()
		require.NoError(t, err)
		want := FromPacket(testPacket(i))
		if diff := cmp.Diff(want, *got, cmpopts.IgnoreUnexported(ImuRecord{})); diff != "" {
			t.Fatalf("packet %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	_, err = rp.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecorder_HeaderIsJSON(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, 2)

	data, err := fs.ReadFile(rec.Path() + "/header.json")
	require.NoError(t, err)

	var h map[string]any
	require.NoError(t, json.Unmarshal(data, &h))
	assert.Equal(t, "1.0", h["version"])
	assert.EqualValues(t, 2, h["total_packets"])
}

func TestRecorder_ChunkRotation(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, ChunkSize+3)

	assert.True(t, fs.Exists(rec.Path()+"/packets/chunk_0000.cbor"))
	assert.True(t, fs.Exists(rec.Path()+"/packets/chunk_0001.cbor"))

	rp, err := NewReplayer(fs, rec.Path())
	require.NoError(t, err)
	require.NoError(t, rp.Seek(ChunkSize+1))
	got, err := rp.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, ChunkSize+2, got.FrameIndex)

	require.NoError(t, rp.Seek(0))
	got, err = rp.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, 1, got.FrameIndex)
}

func TestReplayer_SeekToTimestamp(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, 10)
	rp, err := NewReplayer(fs, rec.Path())
	require.NoError(t, err)

	tests := []struct {
		ts   int64
		want int
	}{
		{0, 0},
		{100_000_000, 0},
		{150_000_000, 1},
		{500_000_000, 4},
		{99_000_000_000, 9},
	}
	for _, tt := range tests {
		require.NoError(t, rp.SeekToTimestamp(tt.ts))
		assert.Equal(t, tt.want, rp.Position(), "ts=%d", tt.ts)
	}

	assert.Error(t, rp.Seek(10))
	assert.Error(t, rp.Seek(-1))
}

func TestRecorder_RejectsOutOfOrderAndClosed(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec, err := NewRecorder(fs, "/out/log", "/seq")
	require.NoError(t, err)

	require.NoError(t, rec.Record(testPacket(3)))
	assert.Error(t, rec.Record(testPacket(2)))

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Error(t, rec.Record(testPacket(4)))
}

func TestRecorder_Tee(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec, err := NewRecorder(fs, "/out/log", "/seq")
	require.NoError(t, err)

	var seen []int
	cb := rec.Tee(func(pkt *kitti.SynchronizedPacket) error {
		seen = append(seen, pkt.FrameIndex)
		return nil
	})
	require.NoError(t, cb(testPacket(1)))
	require.NoError(t, cb(testPacket(2)))
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, uint64(2), rec.PacketCount())

	require.NoError(t, rec.Tee(nil)(testPacket(3)))
	rec.SetBaseline(0.54)
	h := rec.Header()
	assert.Equal(t, uint64(3), h.TotalPackets)
	assert.Equal(t, 0.54, h.BaselineMeters)
}

func TestRecorder_EmptyLog(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, 0)

	rp, err := NewReplayer(fs, rec.Path())
	require.NoError(t, err)
	assert.Equal(t, 0, rp.TotalPackets())
	assert.Error(t, rp.SeekToTimestamp(0))
	_, err = rp.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewReplayer_Errors(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_, err := NewReplayer(fs, "/missing")
	assert.Error(t, err)

	rec := record(t, fs, 3)
	require.NoError(t, fs.WriteFile(rec.Path()+"/index.bin", []byte{1, 2, 3}, 0644))
	_, err = NewReplayer(fs, rec.Path())
	assert.Error(t, err)

	require.NoError(t, fs.WriteFile(rec.Path()+"/header.json", []byte(`{"version":"9.9"}`), 0644))
	_, err = NewReplayer(fs, rec.Path())
	assert.ErrorContains(t, err, "unsupported log version")
}

func TestReplayer_CorruptChunk(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := record(t, fs, 2)
	require.NoError(t, fs.WriteFile(rec.Path()+"/packets/chunk_0000.cbor", []byte{0xff, 0, 0, 0}, 0644))

	rp, err := NewReplayer(fs, rec.Path())
	require.NoError(t, err)
	_, err = rp.ReadPacket()
	assert.Error(t, err)
}
