package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/digito/internal/config"
	"github.com/MeKo-Tech/digito/internal/models"
	"github.com/MeKo-Tech/digito/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "digito",
	Short: "Handwritten digit classifier",
	Long: `digito classifies hand-drawn digits with a 28x28 model.

Drawings are cropped to their strokes, scaled to 20 pixels on the longer
side, centered on a 28x28 canvas and fed to an ONNX model or a
TensorFlow Serving endpoint.

Examples:
  digito classify drawing.png
  digito batch ./drawings --format csv --output results.csv
  digito serve --port 8000 --history`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is digito.yaml in ., $HOME, $XDG_CONFIG_HOME/digito, /etc/digito)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}
	rootCmd.PersistentFlags().String("models-dir", defaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")
	rootCmd.PersistentFlags().String("backend", config.BackendONNX, "inference backend: onnx or tfserving")
	rootCmd.PersistentFlags().String("model", "", "override ONNX model path")
	rootCmd.PersistentFlags().String("filter", "lanczos", "resampling filter: lanczos, catmullrom, linear, box or nearest")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models-dir"))
	_ = viper.BindPFlag("engine.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("engine.model_path", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("preprocess.filter", rootCmd.PersistentFlags().Lookup("filter"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel(cfg),
		})))
		return nil
	}
}

// logLevel maps the configured level; --verbose wins.
func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the config file, .env, environment and bound flags.
func loadConfig() (*config.Config, error) {
	configLoader = config.NewLoader()
	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the resolved configuration including CLI flags.
func GetConfig() (*config.Config, error) {
	return loadConfig()
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
