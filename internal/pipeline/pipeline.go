package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// Config holds configuration for the classification pipeline.
type Config struct {
	Preprocess       preprocess.Config
	WarmupIterations int // optional warmup runs to reduce first-request latency
	Parallel         ParallelConfig
}

// DefaultConfig returns a default pipeline config.
func DefaultConfig() Config {
	return Config{
		Preprocess:       preprocess.DefaultConfig(),
		WarmupIterations: 0,
		Parallel:         DefaultParallelConfig(),
	}
}

// Pipeline couples the normalizer with an injected inference engine.
// It is safe for concurrent use as long as the engine is.
type Pipeline struct {
	cfg        Config
	Normalizer *preprocess.Normalizer
	Engine     classify.Engine
	Profiler   *Profiler
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	engine classify.Engine
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithFilter selects the resampling filter by name.
func (b *Builder) WithFilter(name string) *Builder {
	if name != "" {
		b.cfg.Preprocess.Filter = name
	}
	return b
}

// WithEngine sets the inference engine.
func (b *Builder) WithEngine(e classify.Engine) *Builder {
	b.engine = e
	return b
}

// WithWorkers sets the default worker count for parallel processing.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxWorkers = n
	}
	return b
}

// WithWarmupIterations sets the number of warmup runs performed by Build.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// Config returns a copy of the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.cfg, b.engine)
}

// New creates a pipeline for engine. The engine is owned by the pipeline
// afterwards and released by Close when it implements io.Closer.
func New(cfg Config, engine classify.Engine) (*Pipeline, error) {
	if engine == nil {
		return nil, classify.ErrNoEngine
	}
	norm, err := preprocess.NewNormalizer(cfg.Preprocess)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	p := &Pipeline{cfg: cfg, Normalizer: norm, Engine: engine, Profiler: &Profiler{}}

	if cfg.WarmupIterations > 0 {
		if err := p.Warmup(context.Background(), cfg.WarmupIterations); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}
	return p, nil
}

// Warmup runs n zero vectors through the engine.
func (p *Pipeline) Warmup(ctx context.Context, n int) error {
	zero := make(preprocess.FeatureVector, preprocess.FeatureLen)
	for i := range n {
		if _, err := classify.Classify(ctx, zero, p.Engine); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	slog.Debug("Pipeline warmup completed", "iterations", n)
	return nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Close releases the engine if it holds resources.
func (p *Pipeline) Close() error {
	if p == nil || p.Engine == nil {
		return nil
	}
	if c, ok := p.Engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ErrNotInitialized is returned when a nil or empty pipeline is used.
var ErrNotInitialized = errors.New("pipeline not initialized")

// Stats returns cumulative profiler counters.
func (p *Pipeline) Stats() map[string]any {
	if p == nil || p.Profiler == nil {
		return map[string]any{}
	}
	return p.Profiler.Snapshot()
}

// EngineInfo describes the engine behind the pipeline.
func (p *Pipeline) EngineInfo() classify.EngineInfo {
	return classify.Describe(p.Engine)
}
