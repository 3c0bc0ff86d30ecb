package pipeline

import "sync/atomic"

// Profiler aggregates counters and timers across runs.
type Profiler struct {
	PreprocessTimeNs atomic.Int64
	InferenceTimeNs  atomic.Int64
	ImagesProcessed  atomic.Int64
	EmptyImages      atomic.Int64
}

// Record adds one classified image.
func (p *Profiler) Record(preNs, infNs int64, empty bool) {
	p.PreprocessTimeNs.Add(preNs)
	p.InferenceTimeNs.Add(infNs)
	p.ImagesProcessed.Add(1)
	if empty {
		p.EmptyImages.Add(1)
	}
}

// Snapshot returns cumulative metrics in milliseconds for readability.
func (p *Profiler) Snapshot() map[string]any {
	imgs := p.ImagesProcessed.Load()
	pre := p.PreprocessTimeNs.Load()
	inf := p.InferenceTimeNs.Load()
	out := map[string]any{
		"images":              imgs,
		"empty_images":        p.EmptyImages.Load(),
		"preprocess_ms_total": pre / 1_000_000,
		"inference_ms_total":  inf / 1_000_000,
	}
	if imgs > 0 {
		out["preprocess_ms_per_image"] = float64(pre) / 1_000_000.0 / float64(imgs)
		out["inference_ms_per_image"] = float64(inf) / 1_000_000.0 / float64(imgs)
	}
	return out
}
