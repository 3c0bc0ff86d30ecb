package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/preprocess"
)

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	resp := HealthResponse{
		Status:  "healthy",
		Version: s.cfg.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.store != nil {
		resp.Storage = "ok"
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("Storage ping failed", "error", err)
			resp.Storage = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// predictHandler classifies one uploaded drawing.
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	if s.pipeline == nil {
		predictionsTotal.WithLabelValues("http", "unavailable").Inc()
		writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Classifier not available")
		return
	}

	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("Upload exceeds %d MB", s.cfg.MaxUploadMB))
			return
		}
		writeErrorResponse(w, http.StatusBadRequest, "form", "Failed to parse multipart form")
		return
	}

	data, filename, err := readUpload(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "form", err.Error())
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, meta, err := imageio.DecodeBytes(data, s.constraints)
	if err != nil {
		predictionsTotal.WithLabelValues("http", "invalid").Inc()
		status, kind := statusForError(err)
		writeErrorResponse(w, status, kind, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	res, err := s.pipeline.ProcessImage(ctx, img)
	if err != nil {
		status, kind := statusForError(err)
		predictionsTotal.WithLabelValues("http", kind).Inc()
		s.logger.Error("Classification failed", "error", err, "file", filename, "status", status)
		writeErrorResponse(w, status, kind, err.Error())
		return
	}
	recordPrediction("http", res)

	id := s.side.Record(r.Context(), res, filename, data, meta.Format)
	if r.URL.Query().Get("trace") != "1" {
		res.Trace = nil
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		out, err := pipeline.ToCSV([]pipeline.LabeledResult{{Source: filename, Result: res}})
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, "format", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = io.WriteString(w, out)
	case "text":
		out := pipeline.ToPlainText([]pipeline.LabeledResult{{Source: filename, Result: res}}, r.URL.Query().Get("locale"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, out)
	default:
		writeJSON(w, http.StatusOK, PredictResponse{DigitResult: res, ID: id})
	}
}

// readUpload returns the bytes of the "file" field, falling back to "image".
func readUpload(r *http.Request) ([]byte, string, error) {
	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range []string{"file", "image"} {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, "", errors.New("no file uploaded (expected form field \"file\")")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, filepath.Base(header.Filename), nil
}

// modelHandler describes the engine and the input contract.
func (s *Server) modelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method", "Method not allowed")
		return
	}
	if s.pipeline == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Classifier not available")
		return
	}
	info := classify.EngineInfo{Backend: "custom"}
	if d, ok := s.pipeline.(engineDescriber); ok {
		info = d.EngineInfo()
	}
	writeJSON(w, http.StatusOK, ModelResponse{
		Engine:     info,
		InputSize:  preprocess.FeatureLen,
		CanvasSize: preprocess.CanvasSize,
		InnerSize:  preprocess.InnerSize,
		Classes:    classify.NumClasses,
	})
}

// statusForError maps pipeline failures onto HTTP status codes. Decode
// failures are the client's fault, everything else is ours.
func statusForError(err error) (int, string) {
	var de *preprocess.DecodeError
	var se *classify.ShapeError
	switch {
	case errors.As(err, &de):
		return http.StatusBadRequest, "decode"
	case errors.Is(err, pipeline.ErrNotInitialized):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "canceled"
	case errors.As(err, &se):
		return http.StatusInternalServerError, "shape"
	default:
		return http.StatusInternalServerError, "inference"
	}
}

func recordPrediction(source string, res *pipeline.DigitResult) {
	predictionsTotal.WithLabelValues(source, "success").Inc()
	predictedDigits.WithLabelValues(strconv.Itoa(res.Digit)).Inc()
	predictionConfidence.Observe(res.Confidence)
	if res.Empty {
		emptyDrawings.Inc()
	}
	predictionDuration.WithLabelValues("preprocess").Observe(float64(res.Processing.PreprocessNs) / 1e9)
	predictionDuration.WithLabelValues("inference").Observe(float64(res.Processing.InferenceNs) / 1e9)
	predictionDuration.WithLabelValues("total").Observe(float64(res.Processing.TotalNs) / 1e9)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message, ErrorType: errType})
}
