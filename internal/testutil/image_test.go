package testutil

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDigitImage(t *testing.T) {
	img, err := GenerateDigitImage(DefaultDigitImageConfig())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), img.Bounds())

	// Corners stay transparent, some stroke pixels are opaque white.
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	opaque := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 255 {
			opaque++
		}
	}
	assert.Positive(t, opaque)
}

func TestGenerateDigitImage_InvalidSize(t *testing.T) {
	cfg := DefaultDigitImageConfig()
	cfg.Width = 0
	_, err := GenerateDigitImage(cfg)
	assert.Error(t, err)
}

func TestCreateDrawing_ClipsStrokes(t *testing.T) {
	img := CreateDrawing(10, 10, image.Rect(8, 8, 20, 20))
	assert.Equal(t, Stroke, img.NRGBAAt(9, 9))
	assert.Equal(t, uint8(0), img.NRGBAAt(7, 7).A)
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	data := EncodePNG(t, CreateDrawing(4, 3))
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestWriteDigitFixtures(t *testing.T) {
	dir := t.TempDir()
	fx := WriteDigitFixtures(t, dir, 1, 4)
	require.Len(t, fx, 2)
	for _, f := range fx {
		assert.FileExists(t, f.Path)
	}
}

func TestFixedEngine(t *testing.T) {
	e := NewOneHotEngine(3, 0.91)
	out, err := e.Run(context.Background(), []float32{1, 2})
	require.NoError(t, err)
	assert.Len(t, out, 10)
	assert.InDelta(t, 0.91, out[3], 1e-6)
	assert.InDelta(t, 0.01, out[0], 1e-6)
	assert.Equal(t, int64(1), e.Calls())
	assert.Equal(t, []float32{1, 2}, e.LastInput())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModuleRoot(t *testing.T) {
	root, err := ModuleRoot()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "go.mod"))
	assert.DirExists(t, filepath.Join(root, "internal", "testutil"))

	again, err := ModuleRoot()
	require.NoError(t, err)
	assert.Equal(t, root, again)
}
