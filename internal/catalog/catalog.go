// Package catalog keeps a SQLite record of indexed sequences and the replay
// runs made against them.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/kitti-replay/internal/kitti"
	"github.com/banshee-data/kitti-replay/internal/monitoring"
	"github.com/banshee-data/kitti-replay/internal/timeutil"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrNotFound is returned when a sequence or run does not exist.
var ErrNotFound = errors.New("not found")

// Catalog wraps the SQLite connection.
type Catalog struct {
	*sql.DB
	clock timeutil.Clock
}

// Sequence is a catalogued sequence.
type Sequence struct {
	ID        string
	Summary   kitti.Summary
	IndexedAt time.Time
}

// Run is one replay of a sequence.
type Run struct {
	ID         string
	SequenceID string
	ReplayRate float64
	LogPath    string
	Status     string
	Packets    int
	ImuSamples int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Open opens (creating if needed) the catalog at path and migrates it to
// the latest schema.
func Open(path string) (*Catalog, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	c := &Catalog{DB: db, clock: timeutil.RealClock{}}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Debugf("[catalog] opened %s", path)
	return c, nil
}

// SetClock replaces the clock used for row timestamps.
func (c *Catalog) SetClock(clock timeutil.Clock) {
	c.clock = clock
}

// UpsertSequence records the summary of an indexed sequence, keyed by its
// root. Re-indexing a root updates the row and keeps its id.
func (c *Catalog) UpsertSequence(s kitti.Summary) (string, error) {
	now := c.clock.Now().UnixNano()
	_, err := c.Exec(`
		INSERT INTO sequences (
			sequence_id, root, left_device, right_device, num_frames, initial_frame,
			final_frame, num_imu_samples, first_ts_ns, last_ts_ns, baseline_m,
			frame_rate_hz, imu_rate_hz, indexed_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET
			left_device = excluded.left_device,
			right_device = excluded.right_device,
			num_frames = excluded.num_frames,
			initial_frame = excluded.initial_frame,
			final_frame = excluded.final_frame,
			num_imu_samples = excluded.num_imu_samples,
			first_ts_ns = excluded.first_ts_ns,
			last_ts_ns = excluded.last_ts_ns,
			baseline_m = excluded.baseline_m,
			frame_rate_hz = excluded.frame_rate_hz,
			imu_rate_hz = excluded.imu_rate_hz,
			indexed_ns = excluded.indexed_ns`,
		uuid.New().String(), s.Root, s.LeftDevice, s.RightDevice, s.NumFrames, s.InitialFrame,
		s.FinalFrame, s.NumImuSamples, s.FirstTimestamp, s.LastTimestamp, s.BaselineMeters,
		s.FrameRateHz, s.ImuRateHz, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert sequence %s: %w", s.Root, err)
	}

	var id string
	if err := c.QueryRow(`SELECT sequence_id FROM sequences WHERE root = ?`, s.Root).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read sequence id: %w", err)
	}
	return id, nil
}

const sequenceColumns = `sequence_id, root, left_device, right_device, num_frames, initial_frame,
	final_frame, num_imu_samples, first_ts_ns, last_ts_ns, baseline_m, frame_rate_hz,
	imu_rate_hz, indexed_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanSequence(row scanner) (*Sequence, error) {
	var seq Sequence
	var indexedNs int64
	s := &seq.Summary
	if err := row.Scan(&seq.ID, &s.Root, &s.LeftDevice, &s.RightDevice, &s.NumFrames, &s.InitialFrame,
		&s.FinalFrame, &s.NumImuSamples, &s.FirstTimestamp, &s.LastTimestamp, &s.BaselineMeters,
		&s.FrameRateHz, &s.ImuRateHz, &indexedNs); err != nil {
		return nil, err
	}
	seq.IndexedAt = time.Unix(0, indexedNs).UTC()
	return &seq, nil
}

// GetSequence looks a sequence up by root.
func (c *Catalog) GetSequence(root string) (*Sequence, error) {
	seq, err := scanSequence(c.QueryRow(`SELECT `+sequenceColumns+` FROM sequences WHERE root = ?`, root))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sequence %s: %w", root, ErrNotFound)
	}
	return seq, err
}

// ListSequences returns all catalogued sequences ordered by root.
func (c *Catalog) ListSequences() ([]Sequence, error) {
	rows, err := c.Query(`SELECT ` + sequenceColumns + ` FROM sequences ORDER BY root`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *seq)
	}
	return out, rows.Err()
}

// StartRun records the start of a replay and returns its run id.
func (c *Catalog) StartRun(sequenceID string, replayRate float64, logPath string) (string, error) {
	id := uuid.New().String()
	_, err := c.Exec(`
		INSERT INTO replay_runs (run_id, sequence_id, replay_rate, log_path, status, started_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, sequenceID, replayRate, logPath, StatusRunning, c.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run. A nil runErr marks it complete, anything else
// failed with the error text kept.
func (c *Catalog) FinishRun(runID string, packets, imuSamples int, runErr error) error {
	status, msg := StatusComplete, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := c.Exec(`
		UPDATE replay_runs
		SET status = ?, packets = ?, imu_samples = ?, error = ?, finished_ns = ?
		WHERE run_id = ?`,
		status, packets, imuSamples, msg, c.clock.Now().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// ListRuns returns the runs of a sequence, most recent first.
func (c *Catalog) ListRuns(sequenceID string) ([]Run, error) {
	rows, err := c.Query(`
		SELECT run_id, sequence_id, replay_rate, log_path, status, packets, imu_samples,
			error, started_ns, finished_ns
		FROM replay_runs
		WHERE sequence_id = ?
		ORDER BY started_ns DESC, run_id`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedNs int64
		var finishedNs sql.NullInt64
		if err := rows.Scan(&r.ID, &r.SequenceID, &r.ReplayRate, &r.LogPath, &r.Status, &r.Packets,
			&r.ImuSamples, &r.Error, &startedNs, &finishedNs); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, startedNs).UTC()
		if finishedNs.Valid {
			r.FinishedAt = time.Unix(0, finishedNs.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Duration returns how long a finished run took, or 0 while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
