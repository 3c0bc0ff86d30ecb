// Package imageio loads and saves raster images for the classifier.
package imageio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedImageExtensions lists file extensions accepted by LoadImage.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"sizeBytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Constraints bounds decoded image dimensions. Zero fields are unchecked.
type Constraints struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultConstraints allows anything up to 4096x4096.
func DefaultConstraints() Constraints {
	return Constraints{MaxWidth: 4096, MaxHeight: 4096}
}

func decodeErr(op string, err error) error {
	return &preprocess.DecodeError{Operation: op, Err: err}
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, decodeErr("load", errors.New("empty path"))
	}
	if !IsSupportedImage(path) {
		return nil, ImageMetadata{}, decodeErr("load", fmt.Errorf("unsupported format: %s", filepath.Ext(path)))
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("open image: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Error closing image file", "path", path, "error", err)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("stat image: %w", err)
	}

	img, meta, err := Decode(f, Constraints{})
	if err != nil {
		return nil, ImageMetadata{}, err
	}
	meta.Path = path
	meta.SizeBytes = fi.Size()
	return img, meta, nil
}

// Decode reads an encoded image from r. The header is checked against c
// before the pixel data is decoded.
func Decode(r io.Reader, c Constraints) (image.Image, ImageMetadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ImageMetadata{}, decodeErr("read", err)
	}
	return DecodeBytes(data, c)
}

// DecodeBytes decodes an in-memory encoded image.
func DecodeBytes(data []byte, c Constraints) (image.Image, ImageMetadata, error) {
	if len(data) == 0 {
		return nil, ImageMetadata{}, decodeErr("decode", errors.New("empty image data"))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ImageMetadata{}, decodeErr("decode", err)
	}
	if err := c.check(cfg.Width, cfg.Height); err != nil {
		return nil, ImageMetadata{}, decodeErr("decode", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ImageMetadata{}, decodeErr("decode", err)
	}
	b := img.Bounds()
	return img, ImageMetadata{Format: format, SizeBytes: int64(len(data)), Width: b.Dx(), Height: b.Dy()}, nil
}

// DecodeBase64 decodes a base64 image, optionally wrapped in a data URL
// such as "data:image/png;base64,....".
func DecodeBase64(s string, c Constraints) (image.Image, ImageMetadata, error) {
	data, err := Base64Bytes(s)
	if err != nil {
		return nil, ImageMetadata{}, err
	}
	return DecodeBytes(data, c)
}

// Base64Bytes returns the encoded image bytes carried by a base64 string or
// data URL.
func Base64Bytes(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, decodeErr("base64", err)
	}
	return data, nil
}

func (c Constraints) check(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", w, h)
	}
	if (c.MaxWidth > 0 && w > c.MaxWidth) || (c.MaxHeight > 0 && h > c.MaxHeight) {
		return fmt.Errorf("image too large: %dx%d > %dx%d", w, h, c.MaxWidth, c.MaxHeight)
	}
	return nil
}

// BatchImageResult is one entry of BatchLoadImages.
type BatchImageResult struct {
	Path string
	Img  image.Image
	Meta ImageMetadata
	Err  error
}

// BatchLoadImages loads multiple images in order. Failures are reported per
// entry.
func BatchLoadImages(paths []string) []BatchImageResult {
	results := make([]BatchImageResult, 0, len(paths))
	for _, p := range paths {
		img, meta, err := LoadImage(p)
		results = append(results, BatchImageResult{Path: p, Img: img, Meta: meta, Err: err})
	}
	return results
}

// SaveImage writes img to path, choosing the encoder from the extension.
func SaveImage(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}
