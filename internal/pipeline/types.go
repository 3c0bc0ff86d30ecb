package pipeline

import (
	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// DigitResult is the per-image classification output.
type DigitResult struct {
	classify.Result

	// Empty is set when the drawing had no foreground; the model still ran
	// on an all-zero canvas.
	Empty  bool              `json:"empty"`
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Trace  *preprocess.Trace `json:"trace,omitempty"`

	Processing struct {
		PreprocessNs int64 `json:"preprocess_ns"`
		InferenceNs  int64 `json:"inference_ns"`
		TotalNs      int64 `json:"total_ns"`
	} `json:"processing"`
}

// LabeledResult attaches a source label (file name, page reference) to a result.
type LabeledResult struct {
	Source string       `json:"source"`
	Result *DigitResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}
