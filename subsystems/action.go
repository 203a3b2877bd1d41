package subsystems

import (
	"context"

	"github.com/cortexkit/cortex/core"
	"github.com/cortexkit/cortex/orchestration"
)

// ActionClient implements orchestration.ActionService over HTTP. One
// instance per executor subsystem: the client-side device executor and the
// operations service share the wire contract.
type ActionClient struct {
	httpJSON
}

// NewActionClient creates a client for an action executor base URL.
func NewActionClient(baseURL string) *ActionClient {
	return &ActionClient{httpJSON: newHTTPJSON(baseURL)}
}

// SetLogger sets the logger provider.
func (c *ActionClient) SetLogger(logger core.Logger) {
	c.setLogger(logger)
}

type executeRequest struct {
	ActionID string            `json:"action_id"`
	Params   map[string]string `json:"params,omitempty"`
}

// ExecuteAction runs one whitelisted action. A transport-level success with
// Success=false in the body is a tool-level failure the caller may retry.
func (c *ActionClient) ExecuteAction(ctx context.Context, actionID string, params map[string]string) (*orchestration.ActionResult, error) {
	var out orchestration.ActionResult
	if err := c.post(ctx, "/v1/execute", executeRequest{ActionID: actionID, Params: params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
