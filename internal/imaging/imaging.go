// Package imaging converts raw camera buffers to images and encodes them
// to files.
package imaging

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bngseg/collector/pkg/core"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image format, named by its file extension.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// Formats lists the supported output formats.
var Formats = []Format{PNG, BMP, TIFF}

// ParseFormat returns the format for a name or extension such as "png" or
// ".tif".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "png", "":
		return PNG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("%w: unsupported image format %q (want one of %v)", core.ErrInvalidConfiguration, name, Formats)
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// FromRGBA wraps a tightly packed RGBA buffer of width×height pixels, as
// returned by a camera poll. The buffer is copied.
func FromRGBA(width, height int, buf []byte) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if want := width * height * 4; len(buf) != want {
		return nil, fmt.Errorf("RGBA buffer has %d bytes, want %d for %dx%d", len(buf), want, width, height)
	}
	return &image.RGBA{
		Pix:    slices.Clone(buf),
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: unsupported image format %q", core.ErrInvalidConfiguration, f)
}

// WriteFile encodes img into path, creating parent directories.
func WriteFile(path string, img image.Image, f Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := Encode(out, img, f); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return out.Close()
}
