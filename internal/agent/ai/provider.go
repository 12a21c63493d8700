// Package ai abstracts the language-model transport. Providers stream text
// deltas and tool-call events; the loop owns everything else.
package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/connct/screenagent/internal/agent/session"
)

// StreamEventType identifies the kind of event coming off a model stream.
type StreamEventType string

const (
	EventTypeText     StreamEventType = "text"
	EventTypeToolCall StreamEventType = "tool_call"
	EventTypeError    StreamEventType = "error"
	EventTypeDone     StreamEventType = "done"
)

// StreamEvent is one event emitted by a provider stream.
type StreamEvent struct {
	Type     StreamEventType
	Text     string            // delta for EventTypeText
	ToolCall *session.ToolCall // complete call for EventTypeToolCall
	Err      error             // set for EventTypeError
}

// ToolDefinition describes one tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ChatRequest is a single model call.
type ChatRequest struct {
	System    string
	Messages  []session.Message
	Tools     []ToolDefinition
	Model     string
	MaxTokens int
}

// Provider is the model transport interface. The returned channel is closed
// after a done or error event.
type Provider interface {
	ID() string
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// IsTransient reports whether a provider error is worth retrying: rate
// limits, overloaded upstreams, and transport hiccups. Auth and request
// shape errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "overloaded", "503", "502", "500",
		"timeout", "connection reset", "temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
