// Package security guards the paths replay outputs are written to. Datasets
// are treated as read-only: recordings, reports and catalogs must land
// outside the sequence being replayed.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInsideDataset is returned when an output path resolves into the
// dataset root.
var ErrInsideDataset = errors.New("output path is inside the dataset")

// canonicalPath returns the absolute, symlink-resolved form of path. Paths
// that do not exist yet are resolved through their deepest existing parent,
// so a new file below a symlinked directory maps to the link target.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// IsWithin reports whether path resolves to dir or somewhere below it.
func IsWithin(path, dir string) (bool, error) {
	p, err := canonicalPath(path)
	if err != nil {
		return false, err
	}
	d, err := canonicalPath(dir)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// ValidateOutputPath rejects output paths that would write into the
// dataset root. Empty paths are accepted; they mean "output disabled".
func ValidateOutputPath(out, datasetRoot string) error {
	if out == "" {
		return nil
	}
	inside, err := IsWithin(out, datasetRoot)
	if err != nil {
		return err
	}
	if inside {
		return fmt.Errorf("%w: %s is under %s", ErrInsideDataset, out, datasetRoot)
	}
	return nil
}

// SanitizeFilename makes a safe file name from an arbitrary string. Runs of
// characters other than ASCII letters, digits, dot, underscore and dash
// collapse into one underscore, the result is capped at 128 bytes and
// leading or trailing dots and underscores are trimmed.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
		default:
			pending = b.Len() > 0
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// SequenceName derives an output name from a dataset root such as
// /data/2011_09_26/2011_09_26_drive_0001_sync.
func SequenceName(root string) string {
	return SanitizeFilename(filepath.Base(filepath.Clean(root)))
}
