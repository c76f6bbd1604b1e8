// Package recorder persists replayed packets as a seekable log so a run can
// be inspected or diffed later without the source images.
package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/kitti"
	"github.com/banshee-data/kitti-replay/internal/version"
)

// FileExtension is the extension of a packet log directory.
const FileExtension = ".krlog"

// ChunkSize is the number of packets per chunk file.
const ChunkSize = 1000

// FormatVersion is written to every header.
const FormatVersion = "1.0"

const (
	headerFile = "header.json"
	indexFile  = "index.bin"
	chunkDir   = "packets"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version         string  `json:"version"`
	RecorderVersion string  `json:"recorder_version"`
	RunID           string  `json:"run_id"`
	CreatedNs       int64   `json:"created_ns"`
	Sequence        string  `json:"sequence"`
	TotalPackets    uint64  `json:"total_packets"`
	TotalImu        uint64  `json:"total_imu_samples"`
	StartNs         int64   `json:"start_ns"`
	EndNs           int64   `json:"end_ns"`
	BaselineMeters  float64 `json:"baseline_m,omitempty"`
}

// ImuRecord is one IMU sample as stored in the log.
type ImuRecord struct {
	_           struct{} `cbor:",toarray"`
	TimestampNs int64
	Gyro        [3]float64
	Accel       [3]float64
}

// Packet is the stored form of a SynchronizedPacket. Image pixels are not
// kept, only their paths and dimensions.
type Packet struct {
	FrameIndex      int         `cbor:"1,keyasint"`
	TimestampNs     int64       `cbor:"2,keyasint"`
	PrevTimestampNs int64       `cbor:"3,keyasint"`
	LeftImage       string      `cbor:"4,keyasint"`
	RightImage      string      `cbor:"5,keyasint"`
	Width           int         `cbor:"6,keyasint,omitempty"`
	Height          int         `cbor:"7,keyasint,omitempty"`
	Imu             []ImuRecord `cbor:"8,keyasint"`
}

// FromPacket converts a replayed packet to its stored form.
func FromPacket(pkt *kitti.SynchronizedPacket) Packet {
	p := Packet{
		FrameIndex:      pkt.FrameIndex,
		TimestampNs:     pkt.Timestamp,
		PrevTimestampNs: pkt.PrevTimestamp,
		LeftImage:       pkt.LeftImagePath,
		RightImage:      pkt.RightImagePath,
		Imu:             make([]ImuRecord, len(pkt.ImuWindow)),
	}
	if pkt.LeftImage != nil {
		p.Width, p.Height = pkt.LeftImage.Bounds().Dx(), pkt.LeftImage.Bounds().Dy()
	}
	for i, s := range pkt.ImuWindow {
		p.Imu[i] = ImuRecord{TimestampNs: s.Timestamp, Gyro: s.Gyro, Accel: s.Accel}
	}
	return p
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	FrameIndex  uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// Recorder writes packets to a log directory.
type Recorder struct {
	fsys     fsutil.FileSystem
	basePath string

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    io.WriteCloser
	chunkOffset  uint32

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing under basePath. If basePath is
// empty, a timestamped directory is created in the OS temp dir.
func NewRecorder(fsys fsutil.FileSystem, basePath, sequence string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("krlog_%d%s", time.Now().Unix(), FileExtension))
	}

	if err := fsys.MkdirAll(filepath.Join(basePath, chunkDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Recorder{
		fsys:         fsys,
		basePath:     basePath,
		currentChunk: -1,
		index:        make([]IndexEntry, 0),
		header: LogHeader{
			Version:         FormatVersion,
			RecorderVersion: version.Version,
			RunID:           uuid.New().String(),
			CreatedNs:       time.Now().UnixNano(),
			Sequence:        sequence,
		},
	}, nil
}

// SetBaseline stores the stereo baseline in the header.
func (r *Recorder) SetBaseline(meters float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header.BaselineMeters = meters
}

// Record appends a packet to the log.
func (r *Recorder) Record(pkt *kitti.SynchronizedPacket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("recorder is closed")
	}

	stored := FromPacket(pkt)
	if n := len(r.index); n > 0 && stored.TimestampNs < r.index[n-1].TimestampNs {
		return fmt.Errorf("packet %d at %d is older than the previous packet", stored.FrameIndex, stored.TimestampNs)
	}

	count := uint64(len(r.index))
	if count == 0 {
		r.header.StartNs = stored.TimestampNs
	}
	r.header.EndNs = stored.TimestampNs

	chunkIdx := int(count / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := encMode.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	// Length-prefixed record
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write packet length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write packet data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		FrameIndex:  uint64(stored.FrameIndex),
		TimestampNs: stored.TimestampNs,
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})
	r.chunkOffset += uint32(4 + len(data))
	r.header.TotalImu += uint64(len(stored.Imu))

	return nil
}

// Tee returns a callback that records each packet before handing it to next.
// A nil next only records.
func (r *Recorder) Tee(next kitti.PacketCallback) kitti.PacketCallback {
	return func(pkt *kitti.SynchronizedPacket) error {
		if err := r.Record(pkt); err != nil {
			return fmt.Errorf("record frame %d: %w", pkt.FrameIndex, err)
		}
		if next == nil {
			return nil
		}
		return next(pkt)
	}
}

func chunkPath(basePath string, chunkIdx int) string {
	return filepath.Join(basePath, chunkDir, fmt.Sprintf("chunk_%04d.cbor", chunkIdx))
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	f, err := r.fsys.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	return nil
}

// Close finalises the log and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return fmt.Errorf("failed to close chunk: %w", err)
		}
	}

	r.header.TotalPackets = uint64(len(r.index))
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := r.fsys.WriteFile(filepath.Join(r.basePath, headerFile), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var buf bytes.Buffer
	for _, entry := range r.index {
		if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
			return err
		}
	}
	if err := r.fsys.WriteFile(filepath.Join(r.basePath, indexFile), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// Header returns the header as it stands; totals are final after Close.
func (r *Recorder) Header() LogHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.header
	h.TotalPackets = uint64(len(r.index))
	return h
}

// PacketCount returns the number of packets recorded.
func (r *Recorder) PacketCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.index))
}

// Replayer reads packets back from a log directory.
type Replayer struct {
	fsys     fsutil.FileSystem
	basePath string
	header   LogHeader
	index    []IndexEntry

	current      int
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log for reading.
func NewReplayer(fsys fsutil.FileSystem, basePath string) (*Replayer, error) {
	r := &Replayer{
		fsys:         fsys,
		basePath:     basePath,
		currentChunk: -1,
	}

	headerData, err := fsys.ReadFile(filepath.Join(basePath, headerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if r.header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported log version %q", r.header.Version)
	}

	indexData, err := fsys.ReadFile(filepath.Join(basePath, indexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	rd := bytes.NewReader(indexData)
	r.index = make([]IndexEntry, 0, r.header.TotalPackets)
	for {
		var entry IndexEntry
		if err := binary.Read(rd, binary.LittleEndian, &entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to parse index: %w", err)
		}
		r.index = append(r.index, entry)
	}
	if uint64(len(r.index)) != r.header.TotalPackets {
		return nil, fmt.Errorf("index has %d entries, header says %d", len(r.index), r.header.TotalPackets)
	}

	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalPackets returns the number of packets in the log.
func (r *Replayer) TotalPackets() int {
	return len(r.index)
}

// Position returns the index of the next packet ReadPacket returns.
func (r *Replayer) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Seek positions the replayer at the i-th packet of the log.
func (r *Replayer) Seek(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.index) {
		return fmt.Errorf("packet index out of range: %d not in [0, %d)", i, len(r.index))
	}
	r.current = i
	return nil
}

// SeekToTimestamp positions the replayer at the first packet whose timestamp
// is at or after timestampNs, or at the last packet if none is.
func (r *Replayer) SeekToTimestamp(timestampNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return errors.New("log is empty")
	}
	i := sort.Search(len(r.index), func(k int) bool { return r.index[k].TimestampNs >= timestampNs })
	if i == len(r.index) {
		i = len(r.index) - 1
	}
	r.current = i
	return nil
}

// ReadPacket returns the current packet and advances. It returns io.EOF
// after the last packet.
func (r *Replayer) ReadPacket() (*Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= len(r.index) {
		return nil, io.EOF
	}
	entry := r.index[r.current]

	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, err
		}
	}

	offset := uint64(entry.Offset)
	if offset+4 > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid packet offset %d in chunk %d", offset, entry.ChunkID)
	}
	n := uint64(binary.LittleEndian.Uint32(r.chunkData[offset:]))
	offset += 4
	if offset+n > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid packet length %d in chunk %d", n, entry.ChunkID)
	}

	var pkt Packet
	if err := cbor.Unmarshal(r.chunkData[offset:offset+n], &pkt); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}

	r.current++
	return &pkt, nil
}

func (r *Replayer) loadChunk(chunkIdx int) error {
	data, err := r.fsys.ReadFile(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}
	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}
