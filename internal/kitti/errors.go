package kitti

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned from index construction or replay wraps
// exactly one of these, so callers can branch with errors.Is.
var (
	// ErrConfiguration covers a missing dataset root, missing required files
	// or device identifiers that cannot be resolved.
	ErrConfiguration = errors.New("configuration error")
	// ErrParse covers malformed calibration, timestamp or IMU records.
	ErrParse = errors.New("parse error")
	// ErrConsistency covers count mismatches and non-monotonic timestamps
	// between files that parsed cleanly on their own.
	ErrConsistency = errors.New("consistency error")
	// ErrDecode is the only kind replay can produce: an image failed to load.
	ErrDecode = errors.New("decode error")
)

// ErrStopReplay may be returned by a PacketCallback to end replay early.
// Replay still reports failure, since the range was not fully delivered.
var ErrStopReplay = errors.New("replay stopped by consumer")

// Error describes why a sequence could not be indexed or replayed.
type Error struct {
	Kind error  // one of ErrConfiguration, ErrParse, ErrConsistency, ErrDecode
	Op   string // what was being done, e.g. "parse timestamps"
	Path string // file involved, if any
	Line int    // 1-based line number for parse errors, 0 when not applicable
	Err  error  // underlying cause
}

func (e *Error) Error() string {
	msg := e.Kind.Error() + ": " + e.Op
	switch {
	case e.Path != "" && e.Line > 0:
		msg += fmt.Sprintf(" %s:%d", e.Path, e.Line)
	case e.Path != "":
		msg += " " + e.Path
	case e.Line > 0:
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configErr(op, path string, err error) *Error {
	return &Error{Kind: ErrConfiguration, Op: op, Path: path, Err: err}
}

func parseErr(op, path string, line int, err error) *Error {
	return &Error{Kind: ErrParse, Op: op, Path: path, Line: line, Err: err}
}

func consistencyErr(op string, format string, args ...any) *Error {
	return &Error{Kind: ErrConsistency, Op: op, Err: fmt.Errorf(format, args...)}
}

func decodeErr(path string, err error) *Error {
	return &Error{Kind: ErrDecode, Op: "load image", Path: path, Err: err}
}

// withPath fills in the file path on a parse error produced by a reader
// that only knew line numbers.
func withPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}
