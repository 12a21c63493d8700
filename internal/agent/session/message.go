// Package session defines the conversation message model shared by the
// agent loop, the history compactor, and the model providers.
package session

import (
	"encoding/json"
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// BlockKind discriminates the content variants a message can carry.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockImage BlockKind = "image"
	BlockTree  BlockKind = "tree"
)

// Block is one unit of message content. Text holds the payload for text and
// tree blocks; Image holds PNG bytes for image blocks. A stripped block keeps
// its kind but carries only the placeholder text.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Image []byte    `json:"image,omitempty"`
}

// Stripped reports whether the block's payload has been replaced with a
// placeholder by the compactor.
func (b Block) Stripped() bool {
	switch b.Kind {
	case BlockImage:
		return len(b.Image) == 0
	case BlockTree:
		return strings.HasPrefix(b.Text, "[previous ")
	default:
		return false
	}
}

// Message is one entry in a conversation history.
type Message struct {
	Role        string       `json:"role"`
	Blocks      []Block      `json:"blocks,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ToolCall is a model-issued action.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing one ToolCall, correlated by id.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TextMessage builds a message holding a single text block.
func TextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Blocks:    []Block{{Kind: BlockText, Text: text}},
		CreatedAt: time.Now(),
	}
}

// Text returns the concatenated text and tree blocks of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Kind == BlockText || b.Kind == BlockTree {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// HasScreenPayload reports whether the message carries a materialized
// screenshot or accessibility tree.
func (m Message) HasScreenPayload() bool {
	for _, b := range m.Blocks {
		if (b.Kind == BlockImage || b.Kind == BlockTree) && !b.Stripped() {
			return true
		}
	}
	return false
}
