package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/connct/screenagent/internal/agent/session"
)

// OpenAIProvider implements the OpenAI API using the official SDK.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider. The model comes from
// config, never hardcoded.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIProvider) ID() string { return "openai" }

// Stream sends a request and returns streaming events.
func (p *OpenAIProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	messages, err := p.buildMessages(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]interface{}
			if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
				fmt.Printf("[OpenAI] Failed to parse tool schema for %s: %v\n", tool.Name, err)
				continue
			}
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  shared.FunctionParameters(schema),
				},
			})
		}
		params.Tools = tools
	}

	fmt.Printf("[OpenAI] Sending request: model=%s messages=%d tools=%d\n",
		model, len(messages), len(req.Tools))

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan StreamEvent, 100)
	go p.handleStream(stream, events)
	return events, nil
}

// buildMessages converts session messages to OpenAI format.
func (p *OpenAIProvider) buildMessages(req *ChatRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	// Collect tool_call ids that have responses so we never send a call
	// without its result.
	responded := make(map[string]bool)
	for _, msg := range req.Messages {
		for _, r := range msg.ToolResults {
			responded[r.ToolCallID] = true
		}
	}

	var result []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		result = append(result, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleUser:
			if hasImage(msg) {
				var parts []openai.ChatCompletionContentPartUnionParam
				for _, b := range msg.Blocks {
					switch b.Kind {
					case session.BlockImage:
						if len(b.Image) == 0 {
							parts = append(parts, openai.TextContentPart(b.Text))
							continue
						}
						url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(b.Image)
						parts = append(parts, openai.ImageContentPart(
							openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
					default:
						if b.Text != "" {
							parts = append(parts, openai.TextContentPart(b.Text))
						}
					}
				}
				result = append(result, openai.UserMessage(parts))
			} else if txt := msg.Text(); txt != "" {
				result = append(result, openai.UserMessage(txt))
			}

		case session.RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range msg.ToolCalls {
				if !responded[tc.ID] {
					fmt.Printf("[OpenAI] Skipping tool_call without response: %s\n", tc.ID)
					continue
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			txt := msg.Text()
			if txt == "" && len(toolCalls) == 0 {
				continue
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
			if txt != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(txt),
				}
			}
			if len(toolCalls) > 0 {
				assistantMsg.ToolCalls = toolCalls
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})

		case session.RoleTool:
			for _, r := range msg.ToolResults {
				if responded[r.ToolCallID] {
					result = append(result, openai.ToolMessage(r.Content, r.ToolCallID))
				}
			}

		case session.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))
		}
	}

	return result, nil
}

func hasImage(msg session.Message) bool {
	for _, b := range msg.Blocks {
		if b.Kind == session.BlockImage && len(b.Image) > 0 {
			return true
		}
	}
	return false
}

// handleStream processes the streaming response.
func (p *OpenAIProvider) handleStream(stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- StreamEvent) {
	defer close(events)

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			events <- StreamEvent{
				Type: EventTypeToolCall,
				ToolCall: &session.ToolCall{
					ID:    tool.ID,
					Name:  tool.Name,
					Input: json.RawMessage(tool.Arguments),
				},
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			events <- StreamEvent{
				Type: EventTypeText,
				Text: chunk.Choices[0].Delta.Content,
			}
		}
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("[OpenAI] Stream error: %v\n", err)
		events <- StreamEvent{Type: EventTypeError, Err: err}
		return
	}

	events <- StreamEvent{Type: EventTypeDone}
}
