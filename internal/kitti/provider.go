package kitti

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/kitti-replay/internal/config"
	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/monitoring"
	"github.com/banshee-data/kitti-replay/internal/timeutil"
)

// PacketCallback receives each synchronized packet. It runs on the replay
// goroutine and the next frame is not loaded until it returns. Returning a
// non-nil error (for instance ErrStopReplay) aborts replay.
type PacketCallback func(pkt *SynchronizedPacket) error

// Provider replays one sequence. It holds only the immutable index and its
// collaborators, so Run may be called repeatedly.
type Provider struct {
	fsys   fsutil.FileSystem
	cfg    *config.ReplayConfig
	loader ImageLoader
	clock  timeutil.Clock
	rate   float64
	index  *SequenceIndex
}

// Option customises a Provider.
type Option func(*Provider)

// WithFileSystem reads the dataset from fsys instead of the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(p *Provider) { p.fsys = fsys }
}

// WithConfig sets the dataset layout, frame skip and IMU model.
func WithConfig(cfg *config.ReplayConfig) Option {
	return func(p *Provider) { p.cfg = cfg }
}

// WithImageLoader replaces the default file decoder.
func WithImageLoader(l ImageLoader) Option {
	return func(p *Provider) { p.loader = l }
}

// WithClock sets the clock used for paced replay.
func WithClock(c timeutil.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithReplayRate overrides the config's replay_rate. 1.0 replays in real
// time, 2.0 twice as fast, 0 as fast as the consumer accepts packets.
func WithReplayRate(rate float64) Option {
	return func(p *Provider) { p.rate = rate }
}

// NewProvider indexes the sequence under root. It fails, returning no
// provider, if any file is missing, malformed or inconsistent with the rest.
func NewProvider(root string, opts ...Option) (*Provider, error) {
	p := &Provider{rate: -1}
	for _, opt := range opts {
		opt(p)
	}
	if p.fsys == nil {
		p.fsys = fsutil.OSFileSystem{}
	}
	if p.cfg == nil {
		p.cfg = config.EmptyReplayConfig()
	}
	if p.loader == nil {
		p.loader = FileImageLoader{FS: p.fsys}
	}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	if p.rate < 0 {
		p.rate = p.cfg.GetReplayRate()
	}

	idx, err := BuildSequenceIndex(p.fsys, root, p.cfg)
	if err != nil {
		return nil, err
	}
	p.index = idx
	p.Print()
	return p, nil
}

// ImuParams returns the IMU noise model of the sequence.
func (p *Provider) ImuParams() ImuParams {
	return p.index.ImuParams()
}

// Index returns the committed sequence index.
func (p *Provider) Index() *SequenceIndex {
	return p.index
}

// Print logs a one-shot summary of the sequence.
func (p *Provider) Print() {
	s := p.index.Summary()
	monitoring.Logf("[kitti] %s", s)
	monitoring.Logf("[kitti] stereo baseline camL_Pose_camR %v", p.index.StereoBaselinePose())
	ip := p.index.ImuParams()
	monitoring.Logf("[kitti] imu params: gyro_nd=%g accel_nd=%g gyro_rw=%g accel_rw=%g g=%g rate=%.1fHz",
		ip.GyroNoiseDensity, ip.AccelNoiseDensity, ip.GyroRandomWalk, ip.AccelRandomWalk, ip.GravityMagnitude, ip.RateHz)
}

// Run replays frames InitialFrame..FinalFrame in order, delivering one packet
// per frame to cb. It returns nil only if every frame was delivered. A frame
// whose image cannot be decoded aborts replay with an ErrDecode error; an
// error from cb aborts replay and is returned wrapped.
func (p *Provider) Run(cb PacketCallback) error {
	if cb == nil {
		return configErr("replay", "", errors.New("nil packet callback"))
	}
	idx := p.index
	first, last := idx.InitialFrame(), idx.FinalFrame()
	monitoring.Logf("[replay] starting: frames %d..%d (%d packets)", first, last, last-first+1)

	pacer := newPacer(p.clock, p.rate, idx.FrameTimestamp(first))
	start := p.clock.Now()
	for i := first; i <= last; i++ {
		pacer.wait(idx.FrameTimestamp(i))

		pkt, err := p.packet(i)
		if err != nil {
			monitoring.Logf("[replay] aborted at frame %d: %v", i, err)
			return err
		}
		monitoring.Debugf("[replay] frame %d t=%d imu=%d", i, pkt.Timestamp, len(pkt.ImuWindow))

		if err := cb(pkt); err != nil {
			monitoring.Logf("[replay] consumer stopped replay at frame %d: %v", i, err)
			return fmt.Errorf("replay aborted at frame %d: %w", i, err)
		}
	}
	monitoring.Logf("[replay] complete: %d packets in %v", last-first+1, p.clock.Since(start))
	return nil
}

// Spin is Run reporting only success; the failure cause is logged.
func (p *Provider) Spin(cb PacketCallback) bool {
	if err := p.Run(cb); err != nil {
		monitoring.Warnf("[replay] failed: %v", err)
		return false
	}
	return true
}

// packet loads frame i and assembles its packet.
func (p *Provider) packet(i int) (*SynchronizedPacket, error) {
	idx := p.index
	leftPath, rightPath := idx.LeftImagePath(i), idx.RightImagePath(i)

	left, err := p.loader.Load(leftPath)
	if err != nil {
		return nil, decodeErr(leftPath, err)
	}
	right, err := p.loader.Load(rightPath)
	if err != nil {
		return nil, decodeErr(rightPath, err)
	}

	return &SynchronizedPacket{
		FrameIndex:     i,
		Timestamp:      idx.FrameTimestamp(i),
		PrevTimestamp:  idx.FrameTimestamp(i - 1),
		LeftImagePath:  leftPath,
		RightImagePath: rightPath,
		LeftImage:      left,
		RightImage:     right,
		ImuWindow:      idx.ImuWindow(i),
	}, nil
}

// pacer sleeps so that frames are released no faster than rate times the
// recorded frame timing. Time spent in the consumer counts towards the
// interval, so a slow consumer is never slept on top of.
type pacer struct {
	clock     timeutil.Clock
	rate      float64
	originTs  int64
	wallStart time.Time
	started   bool
}

func newPacer(clock timeutil.Clock, rate float64, originTs int64) *pacer {
	return &pacer{clock: clock, rate: rate, originTs: originTs}
}

func (pc *pacer) wait(ts int64) {
	if pc.rate <= 0 {
		return
	}
	if !pc.started {
		pc.started = true
		pc.wallStart = pc.clock.Now()
		return
	}
	target := time.Duration(float64(ts-pc.originTs) / pc.rate)
	if elapsed := pc.clock.Since(pc.wallStart); target > elapsed {
		pc.clock.Sleep(target - elapsed)
	}
}
