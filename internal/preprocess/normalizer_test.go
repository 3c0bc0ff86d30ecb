package preprocess

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drawing mimics a browser canvas export: transparent background with opaque
// white strokes.
func drawing(w, h int, rects ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(DefaultConfig())
	require.NoError(t, err)
	return n
}

func TestNewNormalizer_RejectsUnknownFilter(t *testing.T) {
	_, err := NewNormalizer(Config{Filter: "bogus"})
	assert.Error(t, err)
}

func TestNormalize_EmptyImageIsZeroVector(t *testing.T) {
	n := newTestNormalizer(t)
	vec, tr, err := n.NormalizeImage(drawing(280, 280))
	require.NoError(t, err)
	require.Len(t, vec, FeatureLen)
	assert.True(t, tr.Empty)
	for i, v := range vec {
		assert.Zero(t, v, "index %d", i)
	}
}

func TestNormalize_SingleChannelAllZero(t *testing.T) {
	n := newTestNormalizer(t)
	vec, err := n.Normalize(RawImage{Width: 5, Height: 5, Channels: 1, Pix: make([]uint8, 25)})
	require.NoError(t, err)
	assert.Len(t, vec, FeatureLen)
}

func TestNormalize_DecodeErrorPropagates(t *testing.T) {
	n := newTestNormalizer(t)
	_, err := n.Normalize(RawImage{Width: 2, Height: 2, Channels: 3, Pix: []uint8{1}})
	var de *DecodeError
	require.True(t, errors.As(err, &de))

	_, _, err = n.NormalizeImage(nil)
	require.True(t, errors.As(err, &de))
}

func TestNormalize_CenteredSquare(t *testing.T) {
	n := newTestNormalizer(t)
	// 81x81 white square on a 280x280 canvas.
	img := drawing(280, 280, image.Rect(100, 100, 181, 181))

	vec, tr, err := n.NormalizeImage(img)
	require.NoError(t, err)
	require.Len(t, vec, FeatureLen)

	assert.False(t, tr.Empty)
	assert.Equal(t, BoundingBox{RowMin: 100, RowMax: 180, ColMin: 100, ColMax: 180}, tr.Box)
	assert.Equal(t, BoundingBox{RowMin: 92, RowMax: 188, ColMin: 92, ColMax: 188}, tr.Padded)
	assert.Equal(t, 20, tr.FragmentWidth)
	assert.Equal(t, 20, tr.FragmentHeight)
	assert.Equal(t, 4, tr.OffsetRow)
	assert.Equal(t, 4, tr.OffsetCol)

	for row := range CanvasSize {
		for col := range CanvasSize {
			v := vec[row*CanvasSize+col]
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
			if row < 4 || row >= 24 || col < 4 || col >= 24 {
				assert.Zero(t, v, "outside fragment at (%d,%d)", row, col)
			}
		}
	}
	assert.InDelta(t, 1.0, vec[14*CanvasSize+14], 0.01)
	assert.InDelta(t, 1.0, vec[10*CanvasSize+17], 0.01)
}

func TestNormalize_TallRectangle(t *testing.T) {
	n := newTestNormalizer(t)
	// Rows 100-180 and cols 120-160: taller than wide.
	img := drawing(280, 280, image.Rect(120, 100, 161, 181))

	vec, tr, err := n.NormalizeImage(img)
	require.NoError(t, err)

	assert.Equal(t, BoundingBox{RowMin: 100, RowMax: 180, ColMin: 120, ColMax: 160}, tr.Box)
	assert.Equal(t, BoundingBox{RowMin: 92, RowMax: 188, ColMin: 116, ColMax: 164}, tr.Padded)
	// 97 rows x 49 cols scale to 20 x 10.
	assert.Equal(t, 10, tr.FragmentWidth)
	assert.Equal(t, 20, tr.FragmentHeight)
	assert.Equal(t, 4, tr.OffsetRow)
	assert.Equal(t, 9, tr.OffsetCol)

	for row := range CanvasSize {
		for col := range CanvasSize {
			if col < 9 || col >= 19 || row < 4 || row >= 24 {
				assert.Zero(t, vec[row*CanvasSize+col], "outside fragment at (%d,%d)", row, col)
			}
		}
	}
	assert.InDelta(t, 1.0, vec[14*CanvasSize+14], 0.01)
}

// A 28x28 drawing that is already centred in the inner square is not a fixed
// point: any stroke spanning 10 or more pixels gains a padding row on each
// side, so the box shrinks slightly when it is scaled back to 20 pixels.
func TestNormalize_CanonicalInputIsNearlyIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		stroke   image.Rectangle
		padded   BoundingBox
		w, h     int
		offset   image.Point
		interior image.Rectangle
		// dropped is lit in the input but falls outside the fragment.
		dropped image.Rectangle
	}{
		{
			name:     "centred square",
			stroke:   image.Rect(4, 4, 24, 24),
			padded:   BoundingBox{RowMin: 3, RowMax: 24, ColMin: 3, ColMax: 24},
			w:        20, h: 20,
			offset:   image.Pt(4, 4),
			interior: image.Rect(8, 8, 20, 20),
		},
		{
			name:     "centred bar",
			stroke:   image.Rect(9, 4, 19, 24),
			padded:   BoundingBox{RowMin: 3, RowMax: 24, ColMin: 9, ColMax: 18},
			w:        9, h: 20,
			offset:   image.Pt(9, 4),
			interior: image.Rect(9, 8, 18, 20),
			dropped:  image.Rect(18, 8, 19, 20),
		},
	}
	n := newTestNormalizer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, tr, err := n.NormalizeImage(drawing(CanvasSize, CanvasSize, tt.stroke))
			require.NoError(t, err)

			assert.Equal(t, tt.padded, tr.Padded)
			assert.Equal(t, tt.w, tr.FragmentWidth)
			assert.Equal(t, tt.h, tr.FragmentHeight)
			assert.Equal(t, tt.offset, image.Pt(tr.OffsetCol, tr.OffsetRow))

			frag := image.Rect(0, 0, tt.w, tt.h).Add(tt.offset)
			for row := range CanvasSize {
				for col := range CanvasSize {
					v := vec[row*CanvasSize+col]
					p := image.Pt(col, row)
					assert.GreaterOrEqual(t, v, float32(0))
					assert.LessOrEqual(t, v, float32(1))
					switch {
					case !p.In(frag):
						assert.Zero(t, v, "outside fragment at (%d,%d)", row, col)
					case p.In(tt.interior):
						assert.InDelta(t, 1.0, v, 0.01, "interior at (%d,%d)", row, col)
					}
					if p.In(tt.dropped) {
						assert.Zero(t, v, "dropped column at (%d,%d)", row, col)
					}
				}
			}
		})
	}
}

func TestNormalize_SinglePixelFillsInnerSquare(t *testing.T) {
	n := newTestNormalizer(t)
	pix := make([]uint8, 9)
	pix[4] = 255
	vec, tr, err := n.NormalizeTrace(RawImage{Width: 3, Height: 3, Channels: 1, Pix: pix})
	require.NoError(t, err)
	assert.Equal(t, 20, tr.FragmentWidth)
	assert.Equal(t, 20, tr.FragmentHeight)
	assert.InDelta(t, 1.0, vec[4*CanvasSize+4], 1e-6)
	assert.InDelta(t, 1.0, vec[23*CanvasSize+23], 1e-6)
	assert.Zero(t, vec[3*CanvasSize+3])
}

func TestNormalize_ConcurrentCallsAgree(t *testing.T) {
	n := newTestNormalizer(t)
	img := drawing(200, 120, image.Rect(30, 10, 60, 100), image.Rect(60, 40, 150, 55))
	want, _, err := n.NormalizeImage(img)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]FeatureVector, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = n.NormalizeImage(img)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, want, got, "worker %d", i)
	}
}
