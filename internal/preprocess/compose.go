package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CanvasSize is the side length of the model input canvas.
const CanvasSize = 28

// FeatureLen is the number of values in a flattened canvas.
const FeatureLen = CanvasSize * CanvasSize

// Compose places the fragment on a zero canvas of size x size. The offset is
// ((size-h)/2, (size-w)/2) with integer division and is returned as
// image.Point{X: col, Y: row}.
func Compose(fragment *image.Gray, size int) (*image.Gray, image.Point) {
	b := fragment.Bounds()
	offset := image.Pt((size-b.Dx())/2, (size-b.Dy())/2)

	canvas := imaging.New(size, size, color.Black)
	canvas = imaging.Paste(canvas, fragment, offset)
	return grayFromNRGBA(canvas), offset
}

// FeatureVector is a flattened, normalized canvas in row-major order.
type FeatureVector []float32

// Flatten scales every pixel to [0,1] by dividing by 255 and lays the canvas
// out row-major, so the pixel at (row, col) lands at index row*width+col.
func Flatten(canvas *image.Gray) FeatureVector {
	b := canvas.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make(FeatureVector, w*h)
	for y := range h {
		row := canvas.Pix[canvas.PixOffset(b.Min.X, b.Min.Y+y):][:w]
		for x, v := range row {
			out[y*w+x] = float32(v) / 255
		}
	}
	return out
}
