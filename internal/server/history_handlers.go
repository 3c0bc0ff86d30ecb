package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/digito/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// listPredictionsHandler returns stored predictions, newest first.
func (s *Server) listPredictionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	if s.store == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Prediction history is disabled")
		return
	}

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "query", "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeErrorResponse(w, http.StatusBadRequest, "query", "offset must be a non-negative integer")
		return
	}

	repo := s.store.Predictions()
	items, err := repo.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("Failed to list predictions", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "storage", "Failed to list predictions")
		return
	}
	total, err := repo.Count(r.Context())
	if err != nil {
		s.logger.Error("Failed to count predictions", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "storage", "Failed to count predictions")
		return
	}
	if items == nil {
		items = []storage.Prediction{}
	}
	writeJSON(w, http.StatusOK, PredictionListResponse{Predictions: items, Total: total, Limit: limit, Offset: offset})
}

// getPredictionHandler returns one stored prediction.
func (s *Server) getPredictionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	if s.store == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Prediction history is disabled")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "query", "Invalid prediction id")
		return
	}
	p, err := s.store.Predictions().GetByID(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case err != nil:
		s.logger.Error("Failed to load prediction", "id", id, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "storage", "Failed to load prediction")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

// statsHandler reports totals, the digit histogram and pipeline counters.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	resp := StatsResponse{
		Notifier: s.side.NotifierState(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if sp, ok := s.pipeline.(statsProvider); ok {
		resp.Pipeline = sp.Stats()
	}
	if s.store != nil {
		repo := s.store.Predictions()
		hist, err := repo.DigitHistogram(r.Context())
		if err != nil {
			s.logger.Error("Failed to build histogram", "error", err)
			writeErrorResponse(w, http.StatusInternalServerError, "storage", "Failed to load statistics")
			return
		}
		resp.DigitHistogram = make(map[string]int, len(hist))
		for d, n := range hist {
			resp.DigitHistogram[strconv.Itoa(d)] = n
			resp.TotalPredictions += n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
