package kitti

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
)

// ImageLoader turns an image path into an 8-bit grayscale buffer whose
// bounds start at the origin.
type ImageLoader interface {
	Load(path string) (*image.Gray, error)
}

// ImageLoaderFunc adapts a function to ImageLoader.
type ImageLoaderFunc func(path string) (*image.Gray, error)

// Load calls f(path).
func (f ImageLoaderFunc) Load(path string) (*image.Gray, error) { return f(path) }

// FileImageLoader decodes images read from a FileSystem. PNG, JPEG, BMP,
// TIFF and WebP are supported; colour images are converted to grayscale.
type FileImageLoader struct {
	FS fsutil.FileSystem
}

// Load decodes the image at path.
func (l FileImageLoader) Load(path string) (*image.Gray, error) {
	f, err := l.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}
	return toGray(img), nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
