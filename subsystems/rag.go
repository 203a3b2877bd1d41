package subsystems

import (
	"context"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/orchestration"
)

// RagClient implements orchestration.RagService over HTTP.
type RagClient struct {
	httpJSON
}

// NewRagClient creates a client for the knowledge service base URL.
func NewRagClient(baseURL string) *RagClient {
	return &RagClient{httpJSON: newHTTPJSON(baseURL)}
}

// SetLogger sets the logger provider.
func (c *RagClient) SetLogger(logger core.Logger) {
	c.setLogger(logger)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchKnowledge runs a semantic search for the query.
func (c *RagClient) SearchKnowledge(ctx context.Context, query string, topK int) (*orchestration.SearchResponse, error) {
	var out orchestration.SearchResponse
	if err := c.post(ctx, "/v1/search", searchRequest{Query: query, TopK: topK}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
