package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// RawImage is an interleaved, row-major raster as it arrives from a decoder.
// Channels is 1 (gray), 3 (RGB) or 4 (RGBA, non-premultiplied).
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// FromImage converts a decoded image into a RawImage. Gray images keep a
// single channel; every other color model is expanded to non-premultiplied
// RGBA so the alpha channel can be dropped later without color shifts.
func FromImage(img image.Image) RawImage {
	if img == nil {
		return RawImage{}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		pix := make([]uint8, w*h)
		for y := range h {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return RawImage{Width: w, Height: h, Channels: 1, Pix: pix}
	case *image.NRGBA:
		pix := make([]uint8, w*h*4)
		for y := range h {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		}
		return RawImage{Width: w, Height: h, Channels: 4, Pix: pix}
	}

	pix := make([]uint8, w*h*4)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix[i] = c.R
			pix[i+1] = c.G
			pix[i+2] = c.B
			pix[i+3] = c.A
			i += 4
		}
	}
	return RawImage{Width: w, Height: h, Channels: 4, Pix: pix}
}

// Validate checks that the buffer is consistent with the declared geometry.
func (r RawImage) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return &DecodeError{Operation: "validate", Err: fmt.Errorf("invalid dimensions %dx%d", r.Width, r.Height)}
	}
	switch r.Channels {
	case 1, 3, 4:
	default:
		return &DecodeError{Operation: "validate", Err: fmt.Errorf("unsupported channel count %d", r.Channels)}
	}
	if want := r.Width * r.Height * r.Channels; len(r.Pix) != want {
		return &DecodeError{
			Operation: "validate",
			Err:       fmt.Errorf("buffer length %d does not match %dx%dx%d", len(r.Pix), r.Width, r.Height, r.Channels),
		}
	}
	return nil
}

// ToGray reduces a raster to single-channel intensity. Color input is
// weighted with the ITU-R 601-2 luma transform; alpha is discarded, not
// composited.
func ToGray(raw RawImage) (*image.Gray, error) {
	if raw.Pix == nil && raw.Width == 0 && raw.Height == 0 {
		return nil, &DecodeError{Operation: "gray", Err: errors.New("empty raster")}
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	out := image.NewGray(image.Rect(0, 0, raw.Width, raw.Height))
	if raw.Channels == 1 {
		copy(out.Pix, raw.Pix)
		return out, nil
	}

	n := raw.Width * raw.Height
	for i := range n {
		p := raw.Pix[i*raw.Channels:]
		out.Pix[i] = luma(p[0], p[1], p[2])
	}
	return out, nil
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
