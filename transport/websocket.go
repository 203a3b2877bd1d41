// Package transport exposes the pipeline over a bidirectional WebSocket
// chat stream. One connection carries one conversation: messages are
// processed strictly in arrival order and every message yields exactly one
// reply frame.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/orchestration"
)

// ChatServer upgrades HTTP connections and drives the pipeline per message.
// Concurrent streams are bounded; excess connections are refused before the
// upgrade so clients see a plain 503.
type ChatServer struct {
	pipeline orchestration.Pipeline
	upgrader websocket.Upgrader
	slots    chan struct{}
	active   atomic.Int64

	logger    core.Logger
	telemetry core.Telemetry
}

// errorFrame is sent when a message cannot be decoded. The stream stays
// open: a malformed frame must not kill the conversation.
type errorFrame struct {
	Error string `json:"error"`
}

// NewChatServer creates a server allowing at most maxStreams concurrent
// conversations.
func NewChatServer(pipeline orchestration.Pipeline, maxStreams int) *ChatServer {
	if maxStreams < 1 {
		maxStreams = 1
	}
	return &ChatServer{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		slots:     make(chan struct{}, maxStreams),
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (s *ChatServer) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
	} else {
		s.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (s *ChatServer) SetTelemetry(telemetry core.Telemetry) {
	if telemetry == nil {
		s.telemetry = &core.NoOpTelemetry{}
	} else {
		s.telemetry = telemetry
	}
}

// Handler returns the HTTP mux: /chat for the stream, /health for probes.
func (s *ChatServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *ChatServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"active_streams": s.active.Load(),
	})
}

func (s *ChatServer) handleChat(w http.ResponseWriter, r *http.Request) {
	select {
	case s.slots <- struct{}{}:
	default:
		http.Error(w, "too many active streams", http.StatusServiceUnavailable)
		s.telemetry.RecordMetric("transport.streams.refused", 1, nil)
		return
	}
	defer func() { <-s.slots }()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"operation": "stream_upgrade",
			"remote":    r.RemoteAddr,
			"error":     err.Error(),
		})
		return
	}
	defer conn.Close()

	s.active.Add(1)
	defer s.active.Add(-1)
	s.telemetry.RecordMetric("transport.streams.opened", 1, nil)
	s.logger.Info("Chat stream opened", map[string]interface{}{
		"operation": "stream_open",
		"remote":    r.RemoteAddr,
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.serveStream(ctx, conn)

	s.logger.Info("Chat stream closed", map[string]interface{}{
		"operation": "stream_close",
		"remote":    r.RemoteAddr,
	})
}

// serveStream runs the read/process/reply loop until the peer disconnects.
// Processing is sequential per connection: ordering within a conversation
// is part of the contract.
func (s *ChatServer) serveStream(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg orchestration.UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if writeErr := conn.WriteJSON(errorFrame{Error: "malformed message"}); writeErr != nil {
				return
			}
			continue
		}
		if msg.Context.Timestamp.IsZero() {
			msg.Context.Timestamp = time.Now().UTC()
		}

		resp, err := s.pipeline.ProcessMessage(ctx, msg)
		if err != nil {
			// Cancellation is the only error the pipeline surfaces.
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
