// Package monitoring holds the package-level diagnostic loggers used by the
// replay libraries. Binaries point them at a real logger; tests mute them.
package monitoring

import "log"

// Logf is the informational logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// Warnf reports recoverable anomalies (skipped frames, clamped ranges).
var Warnf func(format string, v ...interface{}) = log.Printf

// Debugf is muted by default. Per-frame replay tracing goes here.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

func noop(string, ...interface{}) {}

// SetLogger replaces the informational logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = noop
		return
	}
	Logf = f
}

// SetWarnLogger replaces the warning logger. Passing nil mutes it.
func SetWarnLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Warnf = noop
		return
	}
	Warnf = f
}

// SetDebugLogger replaces the debug logger. Passing nil mutes it.
func SetDebugLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Debugf = noop
		return
	}
	Debugf = f
}

// Mute silences every logger and returns a function restoring the previous
// ones. Intended for tests.
func Mute() (restore func()) {
	logf, warnf, debugf := Logf, Warnf, Debugf
	Logf, Warnf, Debugf = noop, noop, noop
	return func() {
		Logf, Warnf, Debugf = logf, warnf, debugf
	}
}
