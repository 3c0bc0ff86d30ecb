package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/digito/internal/models"
	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/onnx"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/MeKo-Tech/digito/internal/server"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/MeKo-Tech/digito/internal/tfserving"
)

// Inference backends.
const (
	BackendONNX      = "onnx"
	BackendTFServing = "tfserving"
)

// Config represents the complete configuration for digito. It covers every
// command (classify, batch, serve) and is loaded from files, environment
// variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Engine     EngineConfig      `mapstructure:"engine" yaml:"engine" json:"engine"`
	Preprocess preprocess.Config `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output     OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	Server     ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Storage    storage.Config    `mapstructure:"storage" yaml:"storage" json:"storage"`
	Notifier   notify.Config     `mapstructure:"notifier" yaml:"notifier" json:"notifier"`
	Batch      BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// EngineConfig selects and configures the inference backend.
type EngineConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelPath   string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	// Softmax is applied to ONNX outputs; TF Serving has its own flag.
	Softmax   bool             `mapstructure:"softmax" yaml:"softmax" json:"softmax"`
	GPU       onnx.GPUConfig   `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	TFServing tfserving.Config `mapstructure:"tfserving" yaml:"tfserving" json:"tfserving"`
}

// PipelineConfig contains pipeline execution settings.
type PipelineConfig struct {
	WarmupIterations int `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
	MaxWorkers       int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
	// Locale formats percentages in text output, e.g. "en" or "de".
	Locale string `mapstructure:"locale" yaml:"locale" json:"locale"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string                 `mapstructure:"host" yaml:"host" json:"host"`
	Port            int                    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigins     []string               `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	MaxUploadMB     int                    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int                    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int                    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       server.RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool   `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
}

// DefaultCORSOrigins are the local frontend dev servers.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://localhost:5174",
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	pl := pipeline.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Engine: EngineConfig{
			Backend:   BackendONNX,
			GPU:       onnx.DefaultGPUConfig(),
			TFServing: tfserving.DefaultConfig(),
		},
		Preprocess: preprocess.DefaultConfig(),
		Pipeline: PipelineConfig{
			WarmupIterations: pl.WarmupIterations,
			MaxWorkers:       pl.Parallel.MaxWorkers,
		},
		Output: OutputConfig{
			Format: "text",
			Locale: "en",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8000,
			CORSOrigins:     slices.Clone(DefaultCORSOrigins),
			MaxUploadMB:     5,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: server.RateLimitConfig{
				RequestsPerMinute: 120,
				RequestsPerHour:   3000,
			},
		},
		Storage:  storage.DefaultConfig(),
		Notifier: notify.DefaultConfig(),
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if _, err := preprocess.FilterByName(c.Preprocess.Filter); err != nil {
		return fmt.Errorf("invalid preprocess filter: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("invalid pipeline max workers: %d (must not be negative)", c.Pipeline.MaxWorkers)
	}
	if c.Pipeline.WarmupIterations < 0 {
		return fmt.Errorf("invalid warmup iterations: %d (must not be negative)", c.Pipeline.WarmupIterations)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Notifier.Validate(); err != nil {
		return fmt.Errorf("invalid notifier config: %w", err)
	}
	return nil
}

// Validate checks the backend selection and its settings.
func (e EngineConfig) Validate() error {
	switch e.Backend {
	case BackendONNX:
		if e.NumThreads < 0 {
			return fmt.Errorf("invalid engine threads: %d (must not be negative)", e.NumThreads)
		}
		return e.GPU.Validate()
	case BackendTFServing:
		return e.TFServing.Validate()
	case "":
		return errors.New("engine backend is required")
	default:
		return fmt.Errorf("invalid engine backend: %s (must be one of: %s, %s)", e.Backend, BackendONNX, BackendTFServing)
	}
}

// ResolvedModelPath returns the configured ONNX model or the default one
// under the models directory.
func (c *Config) ResolvedModelPath() string {
	if c.Engine.ModelPath != "" {
		return c.Engine.ModelPath
	}
	return models.GetDigitModelPath(c.ModelsDir)
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Preprocess = c.Preprocess
	cfg.WarmupIterations = c.Pipeline.WarmupIterations
	if c.Pipeline.MaxWorkers > 0 {
		cfg.Parallel.MaxWorkers = c.Pipeline.MaxWorkers
	}
	return cfg
}

// ToONNXConfig converts the engine section for onnx.NewEngine.
func (c *Config) ToONNXConfig() onnx.Config {
	return onnx.Config{
		ModelPath:    c.ResolvedModelPath(),
		LibraryPath:  c.Engine.LibraryPath,
		NumThreads:   c.Engine.NumThreads,
		ApplySoftmax: c.Engine.Softmax,
		GPU:          c.Engine.GPU,
	}
}

// ServerTimeout returns the request timeout as a duration.
func (s ServerConfig) ServerTimeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// ToServerConfig builds the HTTP server configuration.
func (c *Config) ToServerConfig(version string) server.Config {
	return server.Config{
		Host:             c.Server.Host,
		Port:             c.Server.Port,
		CORSOrigins:      c.Server.CORSOrigins,
		MaxUploadMB:      c.Server.MaxUploadMB,
		Timeout:          c.Server.ServerTimeout(),
		RateLimit:        c.Server.RateLimit,
		Version:          version,
		NotifyQueueSize:  c.Notifier.QueueSize,
		HistoryRetention: time.Duration(c.Storage.RetentionDays) * 24 * time.Hour,
	}
}
