package server

import (
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/storage"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
	// Storage is "ok" or "unavailable" when history is enabled.
	Storage string `json:"storage,omitempty"`
}

// PredictResponse is the body of a successful /predict call.
type PredictResponse struct {
	*pipeline.DigitResult
	// ID is the stored prediction row, set when history is enabled.
	ID int64 `json:"id,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
}

// ModelResponse describes the loaded engine and the input contract.
type ModelResponse struct {
	Engine     classify.EngineInfo `json:"engine"`
	InputSize  int                 `json:"input_size"`
	CanvasSize int                 `json:"canvas_size"`
	InnerSize  int                 `json:"inner_size"`
	Classes    int                 `json:"classes"`
}

// PredictionListResponse is returned by /predictions.
type PredictionListResponse struct {
	Predictions []storage.Prediction `json:"predictions"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// StatsResponse is returned by /stats.
type StatsResponse struct {
	TotalPredictions int            `json:"total_predictions"`
	DigitHistogram   map[string]int `json:"digit_histogram,omitempty"`
	Pipeline         map[string]any `json:"pipeline,omitempty"`
	Notifier         string         `json:"notifier,omitempty"`
	Uptime           string         `json:"uptime"`
}

// WebSocketRequest is a JSON frame sent by a /ws client.
type WebSocketRequest struct {
	Type      string `json:"type"`            // "predict" or "ping"
	Image     string `json:"image,omitempty"` // base64, optionally a data URL
	Trace     bool   `json:"trace,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// WebSocketResponse is a JSON frame sent to a /ws client.
type WebSocketResponse struct {
	Type      string                `json:"type"` // "prediction", "pong" or "error"
	Status    string                `json:"status,omitempty"`
	Result    *pipeline.DigitResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorType string                `json:"errorType,omitempty"`
	RequestID string                `json:"requestId,omitempty"`
	Time      time.Time             `json:"time"`
}
