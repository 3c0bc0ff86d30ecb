package preprocess

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// InnerSize is the length of the longer side of a scaled fragment.
const InnerSize = 20

// Filters maps configuration names to resampling filters.
var Filters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// FilterByName resolves a filter name. An empty name selects Lanczos.
func FilterByName(name string) (imaging.ResampleFilter, error) {
	if name == "" {
		return imaging.Lanczos, nil
	}
	f, ok := Filters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}

// FragmentSize computes the aspect-preserving target size for a w x h crop so
// that the longer side equals inner. The shorter side is rounded half away
// from zero and never drops below one pixel.
func FragmentSize(w, h, inner int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if h > w {
		nw := int(math.Round(float64(w) * float64(inner) / float64(h)))
		return max(1, nw), inner
	}
	nh := int(math.Round(float64(h) * float64(inner) / float64(w)))
	return inner, max(1, nh)
}

// Scale resizes the crop so that its longer side is inner pixels, keeping the
// aspect ratio. Upscaling and downscaling use the same filter.
func Scale(crop *image.Gray, inner int, filter imaging.ResampleFilter) *image.Gray {
	b := crop.Bounds()
	nw, nh := FragmentSize(b.Dx(), b.Dy(), inner)
	if nw == 0 || nh == 0 {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	return grayFromNRGBA(imaging.Resize(crop, nw, nh, filter))
}

// grayFromNRGBA collapses an NRGBA image produced from gray input back to a
// single channel. All three color channels carry the same value.
func grayFromNRGBA(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := range b.Dx() {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}
