package preprocess

import "image"

// PadRatio is the fraction of the foreground extent added on each side of the
// bounding box before cropping.
const PadRatio = 0.1

// BoundingBox is an inclusive row/column range in matrix coordinates.
type BoundingBox struct {
	RowMin int `json:"rowMin"`
	RowMax int `json:"rowMax"`
	ColMin int `json:"colMin"`
	ColMax int `json:"colMax"`
}

// Height is the number of rows covered by the box.
func (b BoundingBox) Height() int { return b.RowMax - b.RowMin + 1 }

// Width is the number of columns covered by the box.
func (b BoundingBox) Width() int { return b.ColMax - b.ColMin + 1 }

// Rect returns the half-open image rectangle for the box.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.ColMin, b.RowMin, b.ColMax+1, b.RowMax+1)
}

// Locate finds the tightest box containing every non-zero pixel. A row or
// column is foreground if any of its pixels is non-zero. ok is false when the
// matrix has no foreground at all.
func Locate(m *image.Gray) (box BoundingBox, ok bool) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return BoundingBox{}, false
	}

	rows := make([]bool, h)
	cols := make([]bool, w)
	for y := range h {
		line := m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):][:w]
		for x, v := range line {
			if v != 0 {
				rows[y] = true
				cols[x] = true
			}
		}
	}

	box.RowMin, box.RowMax, ok = span(rows)
	if !ok {
		return BoundingBox{}, false
	}
	box.ColMin, box.ColMax, _ = span(cols)
	return box, true
}

func span(flags []bool) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for i, f := range flags {
		if !f {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	return lo, hi, lo >= 0
}

// Pad grows the box by int(ratio*extent) on each side of each axis and clamps
// it to a matrix of the given size. The extent is the coordinate span
// (max-min), one less than Height or Width, and the padding amount is
// truncated toward zero.
func Pad(box BoundingBox, ratio float64, width, height int) BoundingBox {
	rowPad := int(ratio * float64(box.RowMax-box.RowMin))
	colPad := int(ratio * float64(box.ColMax-box.ColMin))
	return BoundingBox{
		RowMin: max(0, box.RowMin-rowPad),
		RowMax: min(height-1, box.RowMax+rowPad),
		ColMin: max(0, box.ColMin-colPad),
		ColMax: min(width-1, box.ColMax+colPad),
	}
}

// Crop returns a copy of the region covered by box.
func Crop(m *image.Gray, box BoundingBox) *image.Gray {
	r := box.Rect().Add(m.Bounds().Min)
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := range r.Dy() {
		off := m.PixOffset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], m.Pix[off:off+r.Dx()])
	}
	return out
}
