// Package subsystems contains HTTP clients for the downstream collaborators:
// the memory service, the knowledge (RAG) service, and the client-side and
// operations action executors. All speak small JSON-over-POST contracts.
package subsystems

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cortexkit/cortex/core"
)

const maxResponseBytes = 4 << 20

// httpJSON is the shared POST-JSON/decode-JSON plumbing.
type httpJSON struct {
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

func newHTTPJSON(baseURL string) httpJSON {
	return httpJSON{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     &core.NoOpLogger{},
	}
}

func (h *httpJSON) setLogger(logger core.Logger) {
	if logger == nil {
		h.logger = &core.NoOpLogger{}
	} else {
		h.logger = logger
	}
}

// post sends the request body and decodes the reply into out (skipped when
// out is nil). Non-2xx statuses are request failures.
func (h *httpJSON) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrConnectionFailed, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", core.ErrRequestFailed, path, err)
	}

	h.logger.Debug("Subsystem call completed", map[string]interface{}{
		"operation":   "subsystem_call",
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", core.ErrRequestFailed, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed %s response: %v", core.ErrRequestFailed, path, err)
	}
	return nil
}
