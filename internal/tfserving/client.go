// Package tfserving implements a classify.Engine that calls a TensorFlow
// Serving REST endpoint.
package tfserving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
)

// Config describes the remote model.
type Config struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Model        string        `mapstructure:"model" yaml:"model" json:"model"`
	Version      string        `mapstructure:"version" yaml:"version" json:"version"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	ApplySoftmax bool          `mapstructure:"softmax" yaml:"softmax" json:"softmax"`
}

// DefaultConfig targets a local TF Serving instance hosting "digit_model".
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8501",
		Model:   "digit_model",
		Timeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("tfserving base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid tfserving base URL %q", c.BaseURL)
	}
	if c.Model == "" {
		return errors.New("tfserving model name is required")
	}
	if c.Timeout < 0 {
		return errors.New("tfserving timeout cannot be negative")
	}
	return nil
}

// Client talks to one served model.
type Client struct {
	cfg  Config
	http *http.Client
	url  string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		url:  PredictURL(cfg),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// PredictURL builds <base>/v1/models/<name>[/versions/<v>]:predict.
func PredictURL(cfg Config) string {
	u := strings.TrimRight(cfg.BaseURL, "/") + "/v1/models/" + url.PathEscape(cfg.Model)
	if cfg.Version != "" {
		u += "/versions/" + url.PathEscape(cfg.Version)
	}
	return u + ":predict"
}

type predictRequest struct {
	Instances [][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// ServerError is a non-200 answer from TF Serving.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("tfserving returned %d: %s", e.StatusCode, e.Message)
}

// Run sends one feature vector and returns the first prediction row.
func (c *Client) Run(ctx context.Context, input []float32) ([]float32, error) {
	body, err := json.Marshal(predictRequest{Instances: [][]float32{input}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tfserving request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close tfserving response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out predictResponse
	decErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if decErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decErr != nil {
		return nil, fmt.Errorf("decode response: %w", decErr)
	}
	if len(out.Predictions) == 0 {
		return nil, errors.New("tfserving response has no predictions")
	}

	slog.Debug("tfserving predict", "model", c.cfg.Model, "duration", time.Since(start))
	probs := out.Predictions[0]
	if c.cfg.ApplySoftmax {
		probs = classify.Softmax(probs)
	}
	return probs, nil
}

// Info describes the remote model.
func (c *Client) Info() classify.EngineInfo {
	return classify.EngineInfo{
		Backend: "tfserving",
		Model:   c.url,
		Softmax: c.cfg.ApplySoftmax,
	}
}
