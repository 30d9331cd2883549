package agent

import (
	"context"
	"fmt"

	"github.com/nagare-ai/nagare/pkg/session"
	"github.com/nagare-ai/nagare/pkg/toolexec"
)

// ModelProvider is one chat-capable model backend.
type ModelProvider interface {
	// Chat sends the conversation and returns the model's next message.
	Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// Name returns the provider name.
	Name() string
}

// ChatRequest carries one model call.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []session.Message
	Tools       []toolexec.ExposedTool
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the model's reply. Metadata carries provider-specific
// extras; a "confidence" entry, when present, scores the reply in [0,1].
type ChatResponse struct {
	Message      session.Message
	FinishReason string
	Usage        TokenUsage
	Metadata     map[string]interface{}
}

// ProviderConfig selects and authenticates a concrete provider.
type ProviderConfig struct {
	Provider string // anthropic, openai
	APIKey   string
	Model    string
}

// NewProvider creates a model provider from configuration.
func NewProvider(cfg ProviderConfig) (ModelProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// toolInputSchema renders an exposed tool's parameters as a JSON Schema
// object, the shape both provider APIs expect.
func toolInputSchema(tool toolexec.ExposedTool) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range tool.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
