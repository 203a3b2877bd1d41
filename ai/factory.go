package ai

import (
	"fmt"

	"github.com/cortexkit/cortex/core"
)

// NewClient builds an AI client for the configured provider. endpoint is the
// generate URL for ollama or the (optional) base URL for openai.
func NewClient(provider, endpoint, apiKey, defaultModel string) (core.AIClient, error) {
	switch provider {
	case "ollama", "":
		return NewOllamaClient(endpoint, defaultModel), nil
	case "openai":
		return NewOpenAIClient(apiKey, endpoint, defaultModel), nil
	default:
		return nil, &core.BrainError{
			Op:      "ai.NewClient",
			Kind:    "config",
			Message: fmt.Sprintf("unknown provider %q", provider),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}
