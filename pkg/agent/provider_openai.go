package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nagare-ai/nagare/pkg/session"
)

// OpenAIProvider implements ModelProvider for OpenAI.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Chat makes an API call to OpenAI.
func (p *OpenAIProvider) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.System != "" {
		messages = append(messages, openai.SystemMessage(request.System))
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case session.RoleUser:
			if text := msg.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}

		case session.RoleAssistant:
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text()))
				continue
			}

			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, call := range calls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   call.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      call.ToolName,
						Arguments: string(call.Args),
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Text(),
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())

		case session.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != session.PartToolResult {
					continue
				}
				messages = append(messages, openai.ToolMessage(part.ToolCallID, part.Output))
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}

	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(toolInputSchema(tool)),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	reply := session.Message{Role: session.RoleAssistant}
	if choice.Message.Content != "" {
		reply.Parts = append(reply.Parts, session.ContentPart{
			Type: session.PartText,
			Text: choice.Message.Content,
		})
	}
	for _, call := range choice.Message.ToolCalls {
		reply.Parts = append(reply.Parts, session.ContentPart{
			Type:       session.PartToolCall,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Args:       json.RawMessage(call.Function.Arguments),
		})
	}

	return &ChatResponse{
		Message:      reply,
		FinishReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}
