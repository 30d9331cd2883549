package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nagare-ai/nagare/pkg/session"
)

// AnthropicProvider implements ModelProvider for Anthropic Claude.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Chat makes an API call to Anthropic Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	messages := []anthropic.MessageParam{}

	for _, msg := range request.Messages {
		switch msg.Role {
		case session.RoleUser:
			if text := msg.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}

		case session.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, part := range msg.Parts {
				switch part.Type {
				case session.PartText:
					if part.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(part.Text))
					}
				case session.PartToolCall:
					blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCallID, decodeArgs(part.Args), part.ToolName))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case session.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != session.PartToolResult {
					continue
				}
				messages = append(messages, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(part.ToolCallID, part.Output, false),
				))
			}
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: int64(request.MaxTokens),
	}

	if request.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.System}}
	}
	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			schema := toolInputSchema(tool)

			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}
			if required, ok := schema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	reply := session.Message{Role: session.RoleAssistant}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Parts = append(reply.Parts, session.ContentPart{
				Type: session.PartText,
				Text: b.Text,
			})
		case anthropic.ToolUseBlock:
			reply.Parts = append(reply.Parts, session.ContentPart{
				Type:       session.PartToolCall,
				ToolCallID: b.ID,
				ToolName:   b.Name,
				Args:       json.RawMessage(b.JSON.Input.Raw()),
			})
		}
	}

	return &ChatResponse{
		Message:      reply,
		FinishReason: string(response.StopReason),
		Usage: TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// decodeArgs turns raw tool arguments back into the structured value the
// API expects, falling back to the raw string when they never parsed.
func decodeArgs(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return string(raw)
	}
	return args
}
