package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digito_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	predictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_predictions_total",
			Help: "Total number of classification requests",
		},
		[]string{"source", "status"}, // source: http, websocket
	)

	predictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digito_prediction_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"stage"}, // stage: preprocess, inference, total
	)

	predictedDigits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_predicted_digit_total",
			Help: "Number of times each digit was predicted",
		},
		[]string{"digit"},
	)

	predictionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digito_prediction_confidence",
			Help:    "Confidence of the top prediction",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, .95, .99},
		},
	)

	emptyDrawings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digito_empty_drawings_total",
			Help: "Drawings without any foreground pixels",
		},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digito_upload_size_bytes",
			Help:    "Size of uploaded drawings in bytes",
			Buckets: []float64{1024, 4 * 1024, 16 * 1024, 64 * 1024, 256 * 1024, 1024 * 1024, 5 * 1024 * 1024},
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "digito_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)

	sideChannelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digito_side_channel_events_total",
			Help: "Outcomes of persistence and hardware notification side channels",
		},
		[]string{"channel", "outcome"}, // channel: storage, upload, notifier
	)
)
