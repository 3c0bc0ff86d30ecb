package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// originAllowed reports whether origin matches the allow-list. "*" allows any.
func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin)
}

// corsMiddleware adds CORS headers and records request metrics.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			if slices.Contains(s.cfg.CORSOrigins, "*") {
				rw.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				rw.Header().Set("Access-Control-Allow-Origin", origin)
				rw.Header().Add("Vary", "Origin")
			}
		}
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusOK)
		} else {
			next(rw, r)
		}

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	}
}

// rateLimitMiddleware applies per-client limits before the handler runs.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil || r.Method != http.MethodPost {
			next(w, r)
			return
		}
		size := r.ContentLength
		if size < 0 {
			size = 0
		}
		if err := s.rateLimiter.Allow(getClientIP(r), size); err != nil {
			s.handleRateLimitError(w, err)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRateLimitError(w http.ResponseWriter, err error) {
	var rle *RateLimitError
	var qe *QuotaExceededError
	switch {
	case errors.As(err, &rle):
		rateLimitHits.WithLabelValues(rle.Type).Inc()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rle.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())+1))
		writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit",
			fmt.Sprintf("Rate limit exceeded: %d requests per %s", rle.Limit, rle.Type))
	case errors.As(err, &qe):
		rateLimitHits.WithLabelValues("quota_" + qe.Type).Inc()
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(qe.Resets.Unix(), 10))
		writeErrorResponse(w, http.StatusTooManyRequests, "quota",
			fmt.Sprintf("Daily %s quota exceeded", qe.Type))
	default:
		writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit", err.Error())
	}
}

// getClientIP extracts the client address, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
