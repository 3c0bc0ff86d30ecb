package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CanvasSize is the side length of the drawing surface in the web frontend.
const CanvasSize = 280

// Stroke is the pen color used by the drawing surface.
var Stroke = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// DigitImageConfig controls synthetic digit rendering.
type DigitImageConfig struct {
	Text       string
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
	// Scale enlarges the 7x13 bitmap glyphs so strokes look hand drawn.
	Scale int
	// Offset moves the glyph away from the canvas center.
	Offset image.Point
}

// DefaultDigitImageConfig returns a white "7" on a transparent 280x280 canvas.
func DefaultDigitImageConfig() DigitImageConfig {
	return DigitImageConfig{
		Text:       "7",
		Width:      CanvasSize,
		Height:     CanvasSize,
		Background: color.Transparent,
		Foreground: Stroke,
		Scale:      12,
	}
}

// GenerateDigitImage renders cfg.Text with the basic bitmap font and scales
// it up with nearest-neighbor sampling so edges stay hard.
func GenerateDigitImage(cfg DigitImageConfig) (*image.NRGBA, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	face := basicfont.Face7x13

	textW := font.MeasureString(face, cfg.Text).Ceil()
	textH := face.Metrics().Height.Ceil()
	glyph := image.NewNRGBA(image.Rect(0, 0, max(1, textW), textH))
	drawer := &font.Drawer{
		Dst:  glyph,
		Src:  image.NewUniform(cfg.Foreground),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(cfg.Text)

	big := imaging.Resize(glyph, glyph.Bounds().Dx()*cfg.Scale, textH*cfg.Scale, imaging.NearestNeighbor)

	canvas := image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(cfg.Background), image.Point{}, draw.Src)
	pos := image.Pt(
		(cfg.Width-big.Bounds().Dx())/2+cfg.Offset.X,
		(cfg.Height-big.Bounds().Dy())/2+cfg.Offset.Y,
	)
	draw.Draw(canvas, big.Bounds().Add(pos), big, image.Point{}, draw.Over)
	return canvas, nil
}

// CreateDrawing returns a transparent canvas with the given rectangles
// filled by the pen color.
func CreateDrawing(width, height int, strokes ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, r := range strokes {
		draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(Stroke), image.Point{}, draw.Src)
	}
	return img
}

// EncodePNG encodes img as PNG bytes, the format the web frontend uploads.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage writes img as a PNG file, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
}
