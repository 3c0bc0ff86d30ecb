package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
)

// Config controls the normalizer. Geometry is fixed by the model input; only
// the resampling filter is tunable.
type Config struct {
	Filter string `mapstructure:"filter" yaml:"filter" json:"filter"`
}

// DefaultConfig returns the Lanczos configuration the model was trained with.
func DefaultConfig() Config {
	return Config{Filter: "lanczos"}
}

// Trace records the intermediate geometry of one normalization.
type Trace struct {
	Empty bool `json:"empty"`
	// Box is the tight foreground box, Padded the crop actually used.
	Box    BoundingBox `json:"box"`
	Padded BoundingBox `json:"padded"`
	// FragmentWidth and FragmentHeight describe the scaled crop.
	FragmentWidth  int `json:"fragmentWidth"`
	FragmentHeight int `json:"fragmentHeight"`
	// OffsetRow and OffsetCol locate the fragment on the canvas.
	OffsetRow int `json:"offsetRow"`
	OffsetCol int `json:"offsetCol"`
}

// Normalizer turns arbitrary rasters into 784-value feature vectors.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	filter imaging.ResampleFilter
}

// NewNormalizer validates cfg and builds a Normalizer.
func NewNormalizer(cfg Config) (*Normalizer, error) {
	f, err := FilterByName(cfg.Filter)
	if err != nil {
		return nil, err
	}
	return &Normalizer{filter: f}, nil
}

// Normalize runs decode, locate, pad, scale, compose and flatten.
// An image without foreground yields an all-zero vector and no error.
func (n *Normalizer) Normalize(raw RawImage) (FeatureVector, error) {
	vec, _, err := n.NormalizeTrace(raw)
	return vec, err
}

// NormalizeImage is Normalize for an already decoded image.
func (n *Normalizer) NormalizeImage(img image.Image) (FeatureVector, Trace, error) {
	if img == nil {
		return nil, Trace{}, &DecodeError{Operation: "normalize", Err: errNilImage}
	}
	return n.NormalizeTrace(FromImage(img))
}

// NormalizeTrace is Normalize that also reports the intermediate geometry.
func (n *Normalizer) NormalizeTrace(raw RawImage) (FeatureVector, Trace, error) {
	gray, err := ToGray(raw)
	if err != nil {
		return nil, Trace{}, err
	}

	box, ok := Locate(gray)
	if !ok {
		return make(FeatureVector, FeatureLen), Trace{Empty: true}, nil
	}

	padded := Pad(box, PadRatio, raw.Width, raw.Height)
	fragment := Scale(Crop(gray, padded), InnerSize, n.filter)
	canvas, offset := Compose(fragment, CanvasSize)

	fb := fragment.Bounds()
	tr := Trace{
		Box:            box,
		Padded:         padded,
		FragmentWidth:  fb.Dx(),
		FragmentHeight: fb.Dy(),
		OffsetRow:      offset.Y,
		OffsetCol:      offset.X,
	}
	return Flatten(canvas), tr, nil
}
