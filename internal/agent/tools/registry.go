// Package tools holds the tool registry and the tools the agent exposes to
// the model: desktop automation and shell execution.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tool is one capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ScreenPayload carries a capture produced by a tool so the loop can inject
// it into history. Exactly one of PNG or Tree is set.
type ScreenPayload struct {
	PNG    []byte
	Tree   string
	Reason string // diagnostic when a tree was rejected and raster used
}

// ToolResult is the outcome of one tool execution. IsError results are fed
// back to the model as text, never raised to the caller.
type ToolResult struct {
	Content string
	IsError bool
	Screen  *ScreenPayload
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered tools.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs the named tool. Unknown names and execution failures come
// back as error text for the model, not as Go errors.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *ToolResult {
	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("TOOL ERROR: tool %q does not exist. Available tools: %s",
				name, strings.Join(r.Names(), ", ")),
			IsError: true,
		}
	}
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("TOOL ERROR: %s failed: %v", name, err),
			IsError: true,
		}
	}
	return result
}
