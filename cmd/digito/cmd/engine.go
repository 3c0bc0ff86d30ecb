package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/config"
	"github.com/MeKo-Tech/digito/internal/onnx"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/tfserving"
)

// newEngine creates the configured inference backend.
func newEngine(cfg *config.Config) (classify.Engine, error) {
	switch cfg.Engine.Backend {
	case config.BackendTFServing:
		c, err := tfserving.New(cfg.Engine.TFServing)
		if err != nil {
			return nil, fmt.Errorf("tfserving client: %w", err)
		}
		return c, nil
	case config.BackendONNX, "":
		e, err := onnx.NewEngine(cfg.ToONNXConfig())
		if err != nil {
			return nil, fmt.Errorf("onnx engine: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Engine.Backend)
	}
}

// newPipeline builds the classification pipeline around the configured engine.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	pl, err := pipeline.New(cfg.ToPipelineConfig(), engine)
	if err != nil {
		if c, ok := engine.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	info := pl.EngineInfo()
	slog.Debug("Pipeline ready", "backend", info.Backend, "model", info.Model, "filter", cfg.Preprocess.Filter)
	return pl, nil
}
