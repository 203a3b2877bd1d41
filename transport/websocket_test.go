package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexkit/cortex/orchestration"
)

// echoPipeline replies with the message text and records what it saw.
type echoPipeline struct {
	mu       sync.Mutex
	messages []orchestration.UserMessage
	delay    time.Duration
}

func (p *echoPipeline) ProcessMessage(ctx context.Context, msg orchestration.UserMessage) (*orchestration.BrainResponse, error) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &orchestration.BrainResponse{Text: "echo: " + msg.Text}, nil
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/chat"
}

func TestChatStreamRoundTrip(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 4).Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(orchestration.UserMessage{
		SessionID: "sess-1",
		Text:      "hello",
		Context:   orchestration.MessageContext{Mode: "home"},
	}))

	var resp orchestration.BrainResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "echo: hello", resp.Text)
	assert.False(t, resp.IsPartial)
}

func TestChatStreamSequentialOrdering(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 4).Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, conn.WriteJSON(orchestration.UserMessage{SessionID: "s", Text: text}))
	}

	for _, want := range []string{"echo: one", "echo: two", "echo: three"} {
		var resp orchestration.BrainResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, want, resp.Text)
	}
}

func TestChatStreamMalformedFrameKeepsStreamOpen(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 4).Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var frame errorFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "malformed message", frame.Error)

	// Stream is still usable.
	require.NoError(t, conn.WriteJSON(orchestration.UserMessage{SessionID: "s", Text: "still here"}))
	var resp orchestration.BrainResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "echo: still here", resp.Text)
}

func TestChatStreamLimitRefusesExcess(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 1).Handler())
	defer server.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestChatStreamSlotReleasedOnClose(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 1).Handler())
	defer server.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	first.Close()

	assert.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 20*time.Millisecond)
}

func TestChatStreamFillsTimestamp(t *testing.T) {
	pipeline := &echoPipeline{}
	server := httptest.NewServer(NewChatServer(pipeline, 4).Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(orchestration.UserMessage{SessionID: "s", Text: "hi"}))
	var resp orchestration.BrainResponse
	require.NoError(t, conn.ReadJSON(&resp))

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	require.Len(t, pipeline.messages, 1)
	assert.False(t, pipeline.messages[0].Context.Timestamp.IsZero())
}

func TestHealthEndpoint(t *testing.T) {
	server := httptest.NewServer(NewChatServer(&echoPipeline{}, 4).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
