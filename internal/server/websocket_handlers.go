package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketConnWriter is the write side of a WebSocket connection.
type WebSocketConnWriter interface {
	WriteJSON(v any) error
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
}

// webSocketHandler serves /ws. Each text or binary frame is one request and
// gets exactly one response frame.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	// base64 inflates uploads by a third.
	conn.SetReadLimit(int64(s.cfg.MaxUploadMB)<<20*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(wsPingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	client := getClientIP(r)
	s.logger.Debug("WebSocket connected", "client", client)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read failed", "client", client, "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		resp := s.handleWebSocketMessage(r.Context(), client, mt, data)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := sendWebSocketResponse(conn, resp); err != nil {
			s.logger.Warn("WebSocket write failed", "client", client, "error", err)
			return
		}
	}
}

// handleWebSocketMessage turns one inbound frame into one response.
func (s *Server) handleWebSocketMessage(ctx context.Context, client string, messageType int, data []byte) WebSocketResponse {
	if messageType == websocket.BinaryMessage {
		return s.classifyWebSocket(ctx, client, data, false, "")
	}

	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wsError("", "message", "Invalid JSON message")
	}
	switch req.Type {
	case "ping":
		return WebSocketResponse{Type: "pong", RequestID: req.RequestID, Time: time.Now().UTC()}
	case "predict":
		raw, err := imageio.Base64Bytes(req.Image)
		if err != nil {
			return wsError(req.RequestID, "decode", err.Error())
		}
		return s.classifyWebSocket(ctx, client, raw, req.Trace, req.RequestID)
	default:
		return wsError(req.RequestID, "message", fmt.Sprintf("Unknown message type %q", req.Type))
	}
}

func (s *Server) classifyWebSocket(ctx context.Context, client string, data []byte, trace bool, requestID string) WebSocketResponse {
	if s.pipeline == nil {
		predictionsTotal.WithLabelValues("websocket", "unavailable").Inc()
		return wsError(requestID, "unavailable", "Classifier not available")
	}
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(client, int64(len(data))); err != nil {
			kind := "rate_limit"
			var qe *QuotaExceededError
			if errors.As(err, &qe) {
				kind = "quota"
			}
			rateLimitHits.WithLabelValues(kind).Inc()
			return wsError(requestID, kind, err.Error())
		}
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, meta, err := imageio.DecodeBytes(data, s.constraints)
	if err != nil {
		predictionsTotal.WithLabelValues("websocket", "invalid").Inc()
		_, kind := statusForError(err)
		return wsError(requestID, kind, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	res, err := s.pipeline.ProcessImage(ctx, img)
	if err != nil {
		_, kind := statusForError(err)
		predictionsTotal.WithLabelValues("websocket", kind).Inc()
		s.logger.Error("WebSocket classification failed", "error", err)
		return wsError(requestID, kind, err.Error())
	}
	recordPrediction("websocket", res)
	s.side.Record(ctx, res, "websocket", data, meta.Format)
	if !trace {
		res.Trace = nil
	}
	return WebSocketResponse{
		Type:      "prediction",
		Status:    "completed",
		Result:    res,
		RequestID: requestID,
		Time:      time.Now().UTC(),
	}
}

func wsError(requestID, kind, msg string) WebSocketResponse {
	return WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     msg,
		ErrorType: kind,
		RequestID: requestID,
		Time:      time.Now().UTC(),
	}
}

func sendWebSocketResponse(conn WebSocketConnWriter, resp WebSocketResponse) error {
	if err := conn.WriteJSON(resp); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
