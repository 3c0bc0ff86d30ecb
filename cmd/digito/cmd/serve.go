package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/digito/internal/config"
	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/server"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/MeKo-Tech/digito/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cleanupInterval controls how often idle rate-limit clients and expired
// history rows are pruned.
const cleanupInterval = 10 * time.Minute

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for digit classification",
	Long: `Start an HTTP server that classifies uploaded drawings.

The server provides the following endpoints:
  POST /predict            - Classify an uploaded drawing (field "file")
  GET  /predictions        - List stored predictions (requires --history)
  GET  /predictions/{id}   - Fetch one stored prediction
  GET  /stats              - Usage and pipeline statistics
  GET  /model              - Engine information
  GET  /health             - Health check endpoint
  GET  /metrics            - Prometheus metrics
  GET  /ws                 - WebSocket classification

Examples:
  digito serve
  digito serve --port 8080 --history
  digito serve --host 0.0.0.0 --serial --serial-port /dev/ttyACM0`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8000, "server port")
	f.StringSlice("cors-origins", nil, "allowed CORS origins (* allows all)")
	f.Int("max-upload-mb", 5, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Rate limiting flags
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	f.Int("requests-per-minute", 120, "maximum requests per minute per client")
	f.Int("requests-per-hour", 3000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	f.Int64("max-data-per-day", 0, "maximum upload bytes per day per client (0 = unlimited)")
	// Prediction history
	f.Bool("history", false, "store predictions in SQLite")
	f.String("db", "", "SQLite database path")
	f.String("image-dir", "", "directory for stored uploads")
	f.Int("retention-days", 0, "delete stored predictions older than this many days (0 = keep)")
	// Serial notifier
	f.Bool("serial", false, "send predictions to a serial device")
	f.String("serial-port", "", "serial port (auto-detected when empty)")
	f.Int("baud", 9600, "serial baud rate")
}

// applyServeFlags overrides cfg with explicitly set serve flags.
func applyServeFlags(f *pflag.FlagSet, cfg *config.Config) {
	if f.Changed("host") {
		cfg.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origins") {
		cfg.Server.CORSOrigins, _ = f.GetStringSlice("cors-origins")
	}
	if f.Changed("max-upload-mb") {
		cfg.Server.MaxUploadMB, _ = f.GetInt("max-upload-mb")
	}
	if f.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}

	if f.Changed("rate-limit-enabled") {
		cfg.Server.RateLimit.Enabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		cfg.Server.RateLimit.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		cfg.Server.RateLimit.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	if f.Changed("max-requests-per-day") {
		cfg.Server.RateLimit.MaxRequestsPerDay, _ = f.GetInt("max-requests-per-day")
	}
	if f.Changed("max-data-per-day") {
		cfg.Server.RateLimit.MaxDataPerDay, _ = f.GetInt64("max-data-per-day")
	}

	if f.Changed("history") {
		cfg.Storage.Enabled, _ = f.GetBool("history")
	}
	if f.Changed("db") {
		cfg.Storage.DatabasePath, _ = f.GetString("db")
	}
	if f.Changed("image-dir") {
		cfg.Storage.ImageDir, _ = f.GetString("image-dir")
	}
	if f.Changed("retention-days") {
		cfg.Storage.RetentionDays, _ = f.GetInt("retention-days")
	}

	if f.Changed("serial") {
		cfg.Notifier.Enabled, _ = f.GetBool("serial")
	}
	if f.Changed("serial-port") {
		cfg.Notifier.Port, _ = f.GetString("serial-port")
	}
	if f.Changed("baud") {
		cfg.Notifier.BaudRate, _ = f.GetInt("baud")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pl, err := newPipeline(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	opts := []server.Option{server.WithPipeline(pl), server.WithLogger(slog.Default())}

	if cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			_ = pl.Close()
			return fmt.Errorf("failed to open prediction store: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, server.WithStore(store))
		slog.Info("Prediction history enabled", "database", cfg.Storage.DatabasePath)
	}

	if cfg.Notifier.Enabled {
		n, err := notify.New(cfg.Notifier, notify.WithLogger(slog.Default()))
		if err != nil {
			_ = pl.Close()
			return fmt.Errorf("failed to create serial notifier: %w", err)
		}
		opts = append(opts, server.WithNotifier(n))
		slog.Info("Serial notifier enabled", "port", cfg.Notifier.Port, "baud", cfg.Notifier.BaudRate)
	}

	srv, err := server.NewServer(cfg.ToServerConfig(version.Version), opts...)
	if err != nil {
		_ = pl.Close()
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	srv.StartCleanup(ctx, cleanupInterval)

	timeout := cfg.Server.ServerTimeout()
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
	}

	go func() {
		slog.Info("Starting digit server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}
