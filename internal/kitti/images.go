package kitti

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// imageExtensions are the file types the image loader can decode.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has a decodable image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ImageDir returns the directory holding a device's images: {device}/{subdir}
// when it exists, otherwise {device} itself.
func ImageDir(fsys fsutil.FileSystem, root, device, subdir string) string {
	if subdir != "" {
		dir := filepath.Join(root, device, subdir)
		if fsutil.IsDir(fsys, dir) {
			return dir
		}
	}
	return filepath.Join(root, device)
}

// ListImages returns the image files in dir as full paths, in capture order.
// Filenames are assumed to sort into temporal order; purely numeric stems
// compare by value so "10.png" follows "9.png", and come before any
// non-numeric names.
func ListImages(fsys fsutil.FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, configErr("list images", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return lessFilename(names[i], names[j]) })

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// lessFilename orders numeric stems by value ahead of every non-numeric
// stem, which sort by name. Equal values fall back to the full name so
// "01.png" and "1.png" still have a fixed order.
func lessFilename(a, b string) bool {
	na, numA := numericStem(a)
	nb, numB := numericStem(b)
	switch {
	case numA && numB:
		if na != nb {
			return na < nb
		}
	case numA != numB:
		return numA
	}
	return a < b
}

func numericStem(name string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimSuffix(name, filepath.Ext(name)), 10, 64)
	return n, err == nil
}
