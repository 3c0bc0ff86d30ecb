package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// ProcessImage normalizes and classifies a single decoded image.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*DigitResult, error) {
	if img == nil {
		return nil, &preprocess.DecodeError{Operation: "process", Err: errors.New("input image is nil")}
	}
	return p.ProcessRaw(ctx, preprocess.FromImage(img))
}

// ProcessRaw normalizes and classifies an interleaved raster buffer.
func (p *Pipeline) ProcessRaw(ctx context.Context, raw preprocess.RawImage) (*DigitResult, error) {
	if p == nil || p.Normalizer == nil || p.Engine == nil {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	vec, trace, err := p.Normalizer.NormalizeTrace(raw)
	if err != nil {
		return nil, err
	}
	preNs := time.Since(start).Nanoseconds()

	infStart := time.Now()
	res, err := classify.Classify(ctx, vec, p.Engine)
	if err != nil {
		return nil, err
	}
	infNs := time.Since(infStart).Nanoseconds()

	out := &DigitResult{
		Result: *res,
		Empty:  trace.Empty,
		Width:  raw.Width,
		Height: raw.Height,
		Trace:  &trace,
	}
	out.Processing.PreprocessNs = preNs
	out.Processing.InferenceNs = infNs
	out.Processing.TotalNs = time.Since(start).Nanoseconds()

	if p.Profiler != nil {
		p.Profiler.Record(preNs, infNs, trace.Empty)
	}
	slog.Debug("Classified image",
		"digit", out.Digit, "confidence", out.Confidence, "empty", out.Empty,
		"width", raw.Width, "height", raw.Height, "total_ns", out.Processing.TotalNs)
	return out, nil
}

// ProcessImages classifies images sequentially, stopping at the first error.
func (p *Pipeline) ProcessImages(ctx context.Context, images []image.Image) ([]*DigitResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	results := make([]*DigitResult, 0, len(images))
	for _, img := range images {
		res, err := p.ProcessImage(ctx, img)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
