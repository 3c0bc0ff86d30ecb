package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "digito"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DIGITO"

	// DotEnvFile is read from the working directory before the environment
	// is consulted. Variables already set in the process win.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v          *viper.Viper
	dotEnvPath string
}

// NewLoader creates a loader on the global viper instance so that cobra flag
// bindings made in the root command apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper(), dotEnvPath: DotEnvFile}
}

// NewLoaderWith creates a loader on a specific viper instance.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v, dotEnvPath: DotEnvFile}
}

// WithDotEnv changes the .env file location. Empty disables .env loading.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// Load reads configuration from the search paths, the environment and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if err := LoadDotEnv(l.dotEnvPath); err != nil {
		return nil, err
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("engine.backend", d.Engine.Backend)
	l.v.SetDefault("engine.model_path", d.Engine.ModelPath)
	l.v.SetDefault("engine.library_path", d.Engine.LibraryPath)
	l.v.SetDefault("engine.num_threads", d.Engine.NumThreads)
	l.v.SetDefault("engine.softmax", d.Engine.Softmax)
	l.v.SetDefault("engine.gpu.enabled", d.Engine.GPU.UseGPU)
	l.v.SetDefault("engine.gpu.device", d.Engine.GPU.DeviceID)
	l.v.SetDefault("engine.gpu.mem_limit", d.Engine.GPU.MemLimitBytes)
	l.v.SetDefault("engine.gpu.arena_extend_strategy", d.Engine.GPU.ArenaExtendStrategy)
	l.v.SetDefault("engine.tfserving.base_url", d.Engine.TFServing.BaseURL)
	l.v.SetDefault("engine.tfserving.model", d.Engine.TFServing.Model)
	l.v.SetDefault("engine.tfserving.version", d.Engine.TFServing.Version)
	l.v.SetDefault("engine.tfserving.timeout", d.Engine.TFServing.Timeout)
	l.v.SetDefault("engine.tfserving.softmax", d.Engine.TFServing.ApplySoftmax)

	l.v.SetDefault("preprocess.filter", d.Preprocess.Filter)

	l.v.SetDefault("pipeline.warmup_iterations", d.Pipeline.WarmupIterations)
	l.v.SetDefault("pipeline.max_workers", d.Pipeline.MaxWorkers)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.locale", d.Output.Locale)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", d.Server.RateLimit.MaxDataPerDay)

	l.v.SetDefault("storage.enabled", d.Storage.Enabled)
	l.v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	l.v.SetDefault("storage.image_dir", d.Storage.ImageDir)
	l.v.SetDefault("storage.save_images", d.Storage.SaveImages)
	l.v.SetDefault("storage.retention_days", d.Storage.RetentionDays)

	l.v.SetDefault("notifier.enabled", d.Notifier.Enabled)
	l.v.SetDefault("notifier.port", d.Notifier.Port)
	l.v.SetDefault("notifier.baud_rate", d.Notifier.BaudRate)
	l.v.SetDefault("notifier.reset_delay", d.Notifier.ResetDelay)
	l.v.SetDefault("notifier.queue_size", d.Notifier.QueueSize)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
}

// GetConfigSearchPaths returns the directories searched for digito.yaml.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "digito"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "digito"))
	}
	return append(paths, "/etc/digito")
}
