package pipeline

import (
	"errors"
	"image"

	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/disintegration/imaging"
)

// RenderCanvas turns a feature vector back into a grayscale image, enlarged
// by scale with nearest-neighbor sampling. Useful to inspect what the model
// actually sees.
func RenderCanvas(vec preprocess.FeatureVector, scale int) (*image.NRGBA, error) {
	if len(vec) != preprocess.FeatureLen {
		return nil, errors.New("feature vector must have 784 values")
	}
	if scale < 1 {
		scale = 1
	}
	canvas := image.NewGray(image.Rect(0, 0, preprocess.CanvasSize, preprocess.CanvasSize))
	for i, v := range vec {
		canvas.Pix[i] = uint8(min(max(v, 0), 1)*255 + 0.5)
	}
	size := preprocess.CanvasSize * scale
	return imaging.Resize(canvas, size, size, imaging.NearestNeighbor), nil
}
