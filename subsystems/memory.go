package subsystems

import (
	"context"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/orchestration"
)

// MemoryClient implements orchestration.MemoryService over HTTP.
type MemoryClient struct {
	httpJSON
}

// NewMemoryClient creates a client for the memory service base URL.
func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{httpJSON: newHTTPJSON(baseURL)}
}

// SetLogger sets the logger provider.
func (c *MemoryClient) SetLogger(logger core.Logger) {
	c.setLogger(logger)
}

type contextRequest struct {
	SessionID string `json:"session_id"`
}

// GetContext fetches identity summaries and preferences for a session.
func (c *MemoryClient) GetContext(ctx context.Context, sessionID string) (*orchestration.MemoryContext, error) {
	var out orchestration.MemoryContext
	if err := c.post(ctx, "/v1/context", contextRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProposeMemory submits a memory update proposal.
func (c *MemoryClient) ProposeMemory(ctx context.Context, proposal orchestration.MemoryProposal) error {
	return c.post(ctx, "/v1/propose", proposal, nil)
}
