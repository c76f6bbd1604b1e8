// Package units provides the time-unit constants used to normalise numeric
// timestamp logs onto the common nanosecond time base.
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	NS = "ns"
	US = "us"
	MS = "ms"
	S  = "s"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{NS, US, MS, S}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ns, us, ms, s"
}

// NanosPerUnit returns how many nanoseconds one tick of unit represents.
func NanosPerUnit(unit string) (int64, error) {
	switch unit {
	case NS:
		return 1, nil
	case US:
		return 1_000, nil
	case MS:
		return 1_000_000, nil
	case S:
		return 1_000_000_000, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q (valid: %s)", unit, GetValidUnitsString())
	}
}

// ToNanos converts an integer count of unit ticks to nanoseconds, rejecting
// values that would overflow int64.
func ToNanos(value int64, unit string) (int64, error) {
	scale, err := NanosPerUnit(unit)
	if err != nil {
		return 0, err
	}
	if value > math.MaxInt64/scale || value < math.MinInt64/scale {
		return 0, fmt.Errorf("timestamp %d%s overflows nanoseconds", value, unit)
	}
	return value * scale, nil
}

// SecondsToNanos converts fractional seconds to nanoseconds, rounding to the
// nearest nanosecond.
func SecondsToNanos(seconds float64) (int64, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("timestamp %v is not finite", seconds)
	}
	ns := math.Round(seconds * 1e9)
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return 0, fmt.Errorf("timestamp %vs overflows nanoseconds", seconds)
	}
	return int64(ns), nil
}
