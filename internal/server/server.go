// Package server exposes the digit classifier over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline is the classification surface the server needs.
type Pipeline interface {
	ProcessImage(ctx context.Context, img image.Image) (*pipeline.DigitResult, error)
	Close() error
}

type statsProvider interface {
	Stats() map[string]any
}

type engineDescriber interface {
	EngineInfo() classify.EngineInfo
}

// Config holds HTTP server settings.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	MaxUploadMB int
	Timeout     time.Duration
	RateLimit   RateLimitConfig
	Version     string
	// NotifyQueueSize bounds pending hardware notifications.
	NotifyQueueSize int
	// HistoryRetention is the age after which stored predictions are
	// deleted by the cleanup loop. Zero disables pruning.
	HistoryRetention time.Duration
}

// Server is the HTTP front end of the classifier.
type Server struct {
	cfg         Config
	pipeline    Pipeline
	store       *storage.Store
	notifier    Notifier
	side        *sideChannels
	rateLimiter *RateLimiter
	constraints imageio.Constraints
	started     time.Time
	logger      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPipeline sets the classification pipeline.
func WithPipeline(p Pipeline) Option { return func(s *Server) { s.pipeline = p } }

// WithStore enables prediction history and upload persistence.
func WithStore(st *storage.Store) Option { return func(s *Server) { s.store = st } }

// WithNotifier enables hardware notifications after each prediction.
func WithNotifier(n Notifier) Option { return func(s *Server) { s.notifier = n } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer creates a server. A nil pipeline is allowed; /predict then
// answers 503.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, errors.New("port must be between 0 and 65535")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:         cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
		constraints: imageio.DefaultConstraints(),
		started:     time.Now(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.side = newSideChannels(s.store, s.notifier, cfg.NotifyQueueSize, s.logger)
	return s, nil
}

// SetupRoutes registers all handlers on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/predict", s.corsMiddleware(s.rateLimitMiddleware(s.predictHandler)))
	mux.HandleFunc("/predictions", s.corsMiddleware(s.listPredictionsHandler))
	mux.HandleFunc("/predictions/{id}", s.corsMiddleware(s.getPredictionHandler))
	mux.HandleFunc("/stats", s.corsMiddleware(s.statsHandler))
	mux.HandleFunc("/model", s.corsMiddleware(s.modelHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.webSocketHandler)
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// Close flushes pending side-channel work and releases the pipeline.
func (s *Server) Close() error {
	s.side.Close()
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// StartCleanup periodically prunes idle rate limit entries and expired
// prediction history until ctx is done.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	pruneHistory := s.store != nil && s.cfg.HistoryRetention > 0
	if (s.rateLimiter == nil && !pruneHistory) || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.cleanup(ctx)
			}
		}
	}()
}

func (s *Server) cleanup(ctx context.Context) {
	if s.rateLimiter != nil {
		if n := s.rateLimiter.Prune(); n > 0 {
			s.logger.Debug("Pruned rate limit entries", "count", n)
		}
	}
	if s.store == nil || s.cfg.HistoryRetention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.cfg.HistoryRetention)
	n, err := s.store.Predictions().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Warn("Failed to prune prediction history", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Pruned prediction history", "count", n, "cutoff", cutoff)
	}
}
