// Package ai provides LLM clients implementing core.AIClient. Two wire
// protocols are supported: a local Ollama generate endpoint and the OpenAI
// chat completion API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cortexkit/cortex/core"
)

// OllamaClient talks to an Ollama /api/generate endpoint with streaming
// disabled. Zero-value timeouts come from the per-call context.
type OllamaClient struct {
	endpoint     string
	defaultModel string
	httpClient   *http.Client
	logger       core.Logger
}

// NewOllamaClient creates a client for the given generate endpoint, e.g.
// http://127.0.0.1:11434/api/generate.
func NewOllamaClient(endpoint, defaultModel string) *OllamaClient {
	return &OllamaClient{
		endpoint:     endpoint,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       &core.NoOpLogger{},
	}
}

// SetLogger sets the logger provider.
func (c *OllamaClient) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
	} else {
		c.logger = logger
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// GenerateResponse sends a single non-streaming generation request.
func (c *OllamaClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if options == nil {
		options = &core.AIOptions{}
	}
	model := options.Model
	if model == "" {
		model = c.defaultModel
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: prompt,
		System: options.SystemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: options.Temperature,
			NumPredict:  options.MaxTokens,
			Stop:        options.Stop,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", core.ErrRequestFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRequestFailed, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", core.ErrRequestFailed, err)
	}

	c.logger.Debug("Generation completed", map[string]interface{}{
		"operation":   "llm_generate",
		"model":       model,
		"duration_ms": time.Since(started).Milliseconds(),
		"eval_count":  parsed.EvalCount,
	})

	return &core.AIResponse{
		Content: parsed.Response,
		Model:   parsed.Model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
