package kitti

import (
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kitti-replay/internal/testutil"
	"github.com/banshee-data/kitti-replay/internal/timeutil"
)

func collect(packets *[]*SynchronizedPacket) PacketCallback {
	return func(pkt *SynchronizedPacket) error {
		*packets = append(*packets, pkt)
		return nil
	}
}

func TestProvider_RunScenario(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())

	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)))
	require.NoError(t, err)

	var packets []*SynchronizedPacket
	require.NoError(t, p.Run(collect(&packets)))
	require.Len(t, packets, 4)

	wantWindows := [][]int64{{150}, {250, 260}, {350}, {450}}
	for k, pkt := range packets {
		i := k + 1
		assert.Equal(t, i, pkt.FrameIndex)
		assert.Equal(t, int64(100*(i+1)), pkt.Timestamp)
		assert.Equal(t, int64(100*i), pkt.PrevTimestamp)
		assert.Equal(t, 100*time.Nanosecond, pkt.Interval())
		assert.Equal(t, wantWindows[k], imuTimestamps(pkt.ImuWindow))

		require.NotNil(t, pkt.LeftImage)
		require.NotNil(t, pkt.RightImage)
		assert.Equal(t, image.Rect(0, 0, 4, 3), pkt.LeftImage.Bounds())
		// Fixture images are filled with their frame index.
		assert.Equal(t, uint8(i), pkt.LeftImage.Pix[0])
		assert.Equal(t, uint8(i), pkt.RightImage.Pix[0])
		assert.True(t, strings.HasSuffix(pkt.LeftImagePath, testutil.FrameName(i)))
	}
}

func TestProvider_RunIsRepeatable(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)))
	require.NoError(t, err)

	var first, second []*SynchronizedPacket
	require.NoError(t, p.Run(collect(&first)))
	require.NoError(t, p.Run(collect(&second)))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second replay differs (-first +second):\n%s", diff)
	}
}

func TestProvider_PacketsAreIndependent(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	require.NoError(t, p.Run(func(pkt *SynchronizedPacket) error {
		for k := range pkt.ImuWindow {
			pkt.ImuWindow[k].Timestamp = -1
		}
		return nil
	}))
	assert.Equal(t, []int64{250, 260}, imuTimestamps(p.Index().ImuWindow(2)))
}

func TestProvider_DecodeErrorAborts(t *testing.T) {
	quiet(t)
	seq := scenarioSequence()
	seq.Image = func(device string, i int) []byte {
		if device == "image_01" && i == 3 {
			return []byte("corrupt")
		}
		return testutil.PNG(4, 3, uint8(i))
	}
	fs := writeSequence(t, seq)

	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)))
	require.NoError(t, err, "decode problems surface during replay, not indexing")

	var packets []*SynchronizedPacket
	err = p.Run(collect(&packets))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "image_01/data/0000000003.png")
	assert.Len(t, packets, 2)

	assert.False(t, p.Spin(collect(&packets)))
}

func TestProvider_StopReplay(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	calls := 0
	err = p.Run(func(pkt *SynchronizedPacket) error {
		calls++
		if pkt.FrameIndex == 2 {
			return ErrStopReplay
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStopReplay)
	assert.Equal(t, 2, calls)
}

func TestProvider_ConsumerErrorIsWrapped(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	sinkFull := errors.New("sink full")
	err = p.Run(func(*SynchronizedPacket) error { return sinkFull })
	assert.ErrorIs(t, err, sinkFull)
	assert.Contains(t, err.Error(), "frame 1")
}

func TestProvider_Spin(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	n := 0
	assert.True(t, p.Spin(func(*SynchronizedPacket) error { n++; return nil }))
	assert.Equal(t, 4, n)
	assert.False(t, p.Spin(func(*SynchronizedPacket) error { return ErrStopReplay }))
}

func TestProvider_NilCallback(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, scenarioSequence())
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Run(nil), ErrConfiguration)
}

func TestNewProvider_Failure(t *testing.T) {
	quiet(t)
	seq := scenarioSequence()
	seq.RightImages = 3
	fs := writeSequence(t, seq)

	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)))
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrConsistency)
}

func TestProvider_ImuParams(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, testutil.Sequence{
		FrameTimestamps: testutil.Range(0, 100_000_000, 5),
		ImuTimestamps:   testutil.Range(5_000_000, 10_000_000, 40),
	})
	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(skipConfig(1)), WithImageLoader(blankLoader))
	require.NoError(t, err)

	ip := p.ImuParams()
	assert.InDelta(t, 100.0, ip.RateHz, 1e-9)
	assert.Equal(t, 9.81, ip.GravityMagnitude)
	assert.Equal(t, p.Index().ImuParams(), ip)
}

func pacedProvider(t *testing.T, rate float64, clock timeutil.Clock) *Provider {
	t.Helper()
	fs := writeSequence(t, testutil.Sequence{
		FrameTimestamps: testutil.Range(0, 100_000_000, 5),
		ImuTimestamps:   testutil.Range(5_000_000, 10_000_000, 40),
	})
	p, err := NewProvider(seqRoot,
		WithFileSystem(fs),
		WithConfig(skipConfig(1)),
		WithImageLoader(blankLoader),
		WithClock(clock),
		WithReplayRate(rate),
	)
	require.NoError(t, err)
	return p
}

func TestProvider_PacedReplay(t *testing.T) {
	quiet(t)
	tests := []struct {
		rate float64
		want []time.Duration
	}{
		{1.0, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}},
		{2.0, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}},
		{0, []time.Duration{}},
	}
	for _, tt := range tests {
		clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		p := pacedProvider(t, tt.rate, clock)
		require.NoError(t, p.Run(func(*SynchronizedPacket) error { return nil }))
		assert.Equal(t, tt.want, clock.Sleeps(), "rate %v", tt.rate)
	}
}

func TestProvider_PacingAccountsForSlowConsumer(t *testing.T) {
	quiet(t)
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p := pacedProvider(t, 1.0, clock)

	require.NoError(t, p.Run(func(pkt *SynchronizedPacket) error {
		if pkt.FrameIndex == 1 {
			clock.Advance(150 * time.Millisecond)
		}
		return nil
	}))
	// Frame 2 is already late, frame 3 waits out the remainder of its slot.
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, clock.Sleeps())
}

func TestProvider_RateFromConfig(t *testing.T) {
	quiet(t)
	fs := writeSequence(t, testutil.Sequence{
		FrameTimestamps: testutil.Range(0, 100_000_000, 3),
		ImuTimestamps:   testutil.Range(5_000_000, 10_000_000, 20),
	})
	rate := 4.0
	cfg := skipConfig(1)
	cfg.ReplayRate = &rate
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	p, err := NewProvider(seqRoot, WithFileSystem(fs), WithConfig(cfg), WithImageLoader(blankLoader), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, p.Run(func(*SynchronizedPacket) error { return nil }))
	assert.Equal(t, []time.Duration{25 * time.Millisecond}, clock.Sleeps())
}
