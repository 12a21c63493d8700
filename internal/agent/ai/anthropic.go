package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/connct/screenagent/internal/agent/session"
)

const defaultMaxTokens = 8192

// AnthropicProvider implements the Anthropic API using the official SDK.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider. The model comes
// from config, never hardcoded.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) ID() string { return "anthropic" }

// Stream sends a request and returns streaming events.
func (p *AnthropicProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	messages, err := p.buildMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]interface{}
			if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
				fmt.Printf("[Anthropic] Failed to parse tool schema for %s: %v\n", tool.Name, err)
				continue
			}
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}
			if required, ok := schema["required"].([]interface{}); ok {
				reqStrings := make([]string, len(required))
				for i, r := range required {
					reqStrings[i], _ = r.(string)
				}
				toolParam.InputSchema.Required = reqStrings
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	fmt.Printf("[Anthropic] Sending request: model=%s messages=%d tools=%d\n",
		model, len(messages), len(req.Tools))

	stream := p.client.Messages.NewStreaming(ctx, params)

	events := make(chan StreamEvent, 100)
	go p.handleStream(stream, events)
	return events, nil
}

// buildMessages converts session messages to Anthropic format.
func (p *AnthropicProvider) buildMessages(msgs []session.Message) ([]anthropic.MessageParam, error) {
	allToolCallIDs := make(map[string]bool)
	responded := make(map[string]bool)
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			allToolCallIDs[tc.ID] = true
		}
		for _, r := range msg.ToolResults {
			responded[r.ToolCallID] = true
		}
	}

	var result []anthropic.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range msg.Blocks {
				switch b.Kind {
				case session.BlockImage:
					if len(b.Image) == 0 {
						blocks = append(blocks, anthropic.NewTextBlock(b.Text))
						continue
					}
					data := base64.StdEncoding.EncodeToString(b.Image)
					blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", data))
				default:
					if b.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(b.Text))
					}
				}
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}

		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if txt := msg.Text(); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, tc := range msg.ToolCalls {
				if !responded[tc.ID] {
					fmt.Printf("[Anthropic] Skipping tool_use without response: %s\n", tc.ID)
					continue
				}
				var input map[string]interface{}
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case session.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range msg.ToolResults {
				if !allToolCallIDs[r.ToolCallID] {
					fmt.Printf("[Anthropic] Skipping orphaned tool_result: %s\n", r.ToolCallID)
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}

		case session.RoleSystem:
			// Handled via params.System.
			continue
		}
	}

	return result, nil
}

// handleStream processes the streaming response.
func (p *AnthropicProvider) handleStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- StreamEvent) {
	defer close(events)

	var currentToolID string
	var currentToolName string
	var inputBuffer string

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			cb := event.AsContentBlockStart()
			if toolUse, ok := cb.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentToolID = toolUse.ID
				currentToolName = toolUse.Name
				inputBuffer = ""
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				events <- StreamEvent{Type: EventTypeText, Text: d.Text}
			case anthropic.InputJSONDelta:
				inputBuffer += d.PartialJSON
			}

		case "content_block_stop":
			if currentToolID != "" {
				if inputBuffer == "" {
					inputBuffer = "{}"
				}
				events <- StreamEvent{
					Type: EventTypeToolCall,
					ToolCall: &session.ToolCall{
						ID:    currentToolID,
						Name:  currentToolName,
						Input: json.RawMessage(inputBuffer),
					},
				}
				currentToolID = ""
				currentToolName = ""
				inputBuffer = ""
			}

		case "message_stop":
			events <- StreamEvent{Type: EventTypeDone}
			return

		case "error":
			events <- StreamEvent{
				Type: EventTypeError,
				Err:  fmt.Errorf("stream error: %s", event.RawJSON()),
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("[Anthropic] Stream error: %v\n", err)
		events <- StreamEvent{Type: EventTypeError, Err: err}
		return
	}

	events <- StreamEvent{Type: EventTypeDone}
}
