package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
		wantVary   bool
	}{
		{"allowed origin is echoed", []string{"http://localhost:5173"}, "http://localhost:5173", "http://localhost:5173", true},
		{"unknown origin gets no header", []string{"http://localhost:5173"}, "http://evil.example", "", false},
		{"wildcard", []string{"*"}, "http://anything.example", "*", false},
		{"no origin header", []string{"http://localhost:5173"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CORSOrigins = tt.origins
			s := newTestServer(t, cfg)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := serve(s, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantHeader, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rec.Header().Get("Vary") == "Origin")
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, rec.Body.String())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "1.2.3.4:5", "10.0.0.9"},
		{"remote addr", nil, "192.168.1.7:41000", "192.168.1.7"},
		{"remote without port", nil, "192.168.1.7", "192.168.1.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	s := newTestServer(t, cfg, WithPipeline(newDigitPipeline(t, 3)))
	data := drawingPNG(t)

	first := serve(s, multipartRequest(t, "/predict", "file", "a.png", data))
	require.Equal(t, http.StatusOK, first.Code)

	second := serve(s, multipartRequest(t, "/predict", "file", "a.png", data))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"errorType":"rate_limit"`)

	// GET endpoints are not limited.
	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestHandleRateLimitError_Quota(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.handleRateLimitError(rec, &QuotaExceededError{Type: "data", Limit: 10, Used: 10})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, rec.Body.String(), `"errorType":"quota"`)
}
