// Package loop drives one natural-language task to completion through a
// bounded tool-calling conversation with a language model.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/connct/screenagent/internal/agent/ai"
	"github.com/connct/screenagent/internal/agent/session"
	"github.com/connct/screenagent/internal/agent/tools"
)

const (
	defaultMaxSteps  = 20
	modelCallRetries = 2
)

// Callbacks are optional observation hooks. Nil fields are skipped.
type Callbacks struct {
	OnLog        func(string)
	OnScreenshot func(png []byte)
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxSteps overrides the step budget.
func WithMaxSteps(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxSteps = n
		}
	}
}

// WithModel overrides the provider's default model for this loop.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// Loop owns one conversation. It executes strictly sequentially: one model
// call or tool execution at a time.
type Loop struct {
	provider  ai.Provider
	registry  *tools.Registry
	desktop   *tools.DesktopTool // for scope-preserving re-capture; may be nil
	maxSteps  int
	model     string
	compactor Compactor
	callbacks Callbacks

	history []session.Message
}

// New creates a loop. The desktop tool may be nil when the registry carries
// no screen-driving tools (automatic re-capture is then disabled).
func New(provider ai.Provider, registry *tools.Registry, desktop *tools.DesktopTool, cb Callbacks, opts ...Option) *Loop {
	l := &Loop{
		provider:  provider,
		registry:  registry,
		desktop:   desktop,
		maxSteps:  defaultMaxSteps,
		callbacks: cb,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reset clears history and the screen slot. Never called mid-run.
func (l *Loop) Reset() {
	l.history = nil
	if l.desktop != nil {
		l.desktop.State().Clear()
	}
}

// History returns the current conversation history.
func (l *Loop) History() []session.Message {
	return l.history
}

func (l *Loop) log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("[Loop] %s\n", msg)
	if l.callbacks.OnLog != nil {
		l.callbacks.OnLog(msg)
	}
}

// Run executes one task. It issues at most maxSteps model calls, plus
// exactly one summarization call when the budget runs out. An observed
// cancellation stops new work and returns whatever text exists, tagged as
// partial, with a nil error.
func (l *Loop) Run(ctx context.Context, task string) (string, error) {
	l.history = append(l.history, session.TextMessage(session.RoleUser, task))
	l.log("task started: %s", firstLine(task))

	var finalText string

	for step := 0; step < l.maxSteps; step++ {
		if ctx.Err() != nil {
			return partial(finalText), nil
		}

		text, toolCalls, err := l.callModel(ctx, l.toolDefs())
		if err != nil {
			return "", fmt.Errorf("model error: %w", err)
		}

		assistant := session.Message{
			Role:      session.RoleAssistant,
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		}
		if text != "" {
			assistant.Blocks = []session.Block{{Kind: session.BlockText, Text: text}}
			finalText = text
		}
		l.history = append(l.history, assistant)

		if len(toolCalls) == 0 {
			l.log("task finished after %d steps", step+1)
			return finalText, nil
		}

		for _, tc := range toolCalls {
			if ctx.Err() != nil {
				return partial(finalText), nil
			}
			l.executeToolCall(ctx, tc)
		}
	}

	l.log("step budget exhausted, summarizing")
	return l.summarize(ctx, finalText)
}

// executeToolCall runs one tool call, appends its result, and handles the
// screen payload and post-action re-capture bookkeeping.
func (l *Loop) executeToolCall(ctx context.Context, tc session.ToolCall) {
	l.log("tool call: %s", tc.Name)
	result := l.registry.Execute(ctx, tc.Name, tc.Input)

	l.history = append(l.history, session.Message{
		Role: session.RoleTool,
		ToolResults: []session.ToolResult{{
			ToolCallID: tc.ID,
			Content:    result.Content,
			IsError:    result.IsError,
		}},
		CreatedAt: time.Now(),
	})

	if result.Screen != nil {
		l.appendScreen(result.Screen)
	}

	if !result.IsError && result.Screen == nil {
		l.maybeRecapture(ctx, tc)
	}
}

// maybeRecapture refreshes the screen after a UI-mutating desktop action,
// reusing the scope of the previous capture. This removes one model round
// trip per interaction.
func (l *Loop) maybeRecapture(ctx context.Context, tc session.ToolCall) {
	if l.desktop == nil || tc.Name != l.desktop.Name() {
		return
	}
	var in tools.DesktopInput
	if err := json.Unmarshal(tc.Input, &in); err != nil {
		return
	}
	action, ok := tools.CanonicalAction(in.Action)
	if !ok || !tools.MutatesScreen(action) {
		return
	}
	if !l.desktop.State().Valid() {
		return
	}
	capture, err := l.desktop.CaptureCurrentScope(ctx)
	if err != nil || capture.IsError || capture.Screen == nil {
		l.log("WARNING: post-action capture failed")
		return
	}
	l.appendScreen(capture.Screen)
}

// appendScreen strips stale payloads and appends the fresh one as a
// user-role message, as if the model had asked for it.
func (l *Loop) appendScreen(payload *tools.ScreenPayload) {
	l.compactor.Strip(l.history)

	var blocks []session.Block
	if payload.Reason != "" {
		blocks = append(blocks, session.Block{
			Kind: session.BlockText,
			Text: "Note: " + payload.Reason,
		})
	}
	if payload.Tree != "" {
		blocks = append(blocks, session.Block{Kind: session.BlockTree, Text: payload.Tree})
	} else if len(payload.PNG) > 0 {
		blocks = append(blocks, session.Block{Kind: session.BlockImage, Image: payload.PNG})
		if l.callbacks.OnScreenshot != nil {
			l.callbacks.OnScreenshot(payload.PNG)
		}
	}
	if len(blocks) == 0 {
		return
	}
	l.history = append(l.history, session.Message{
		Role:      session.RoleUser,
		Blocks:    blocks,
		CreatedAt: time.Now(),
	})
}

// summarize issues the single no-tool wrap-up call after the step budget is
// spent. On model failure the best text so far is returned instead.
func (l *Loop) summarize(ctx context.Context, finalText string) (string, error) {
	l.history = append(l.history, session.TextMessage(session.RoleUser,
		"The step budget is exhausted. Summarize what you did and what, if anything, remains unfinished."))

	text, _, err := l.callModel(ctx, nil)
	if err != nil {
		l.log("WARNING: summarization failed: %v", err)
		return partial(finalText), nil
	}
	l.history = append(l.history, session.TextMessage(session.RoleAssistant, text))
	return text, nil
}

// callModel performs one streaming model call with retries on transient
// failures, accumulating text deltas and tool calls.
func (l *Loop) callModel(ctx context.Context, toolDefs []ai.ToolDefinition) (string, []session.ToolCall, error) {
	req := &ai.ChatRequest{
		System:   systemPrompt,
		Messages: trimForRequest(l.history),
		Tools:    toolDefs,
		Model:    l.model,
	}

	var lastErr error
	for attempt := 0; attempt <= modelCallRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			l.log("retrying model call (attempt %d)", attempt+1)
		}

		events, err := l.provider.Stream(ctx, req)
		if err != nil {
			lastErr = err
			if ai.IsTransient(err) {
				continue
			}
			return "", nil, err
		}

		var sb strings.Builder
		var toolCalls []session.ToolCall
		var streamErr error
		for event := range events {
			switch event.Type {
			case ai.EventTypeText:
				sb.WriteString(event.Text)
			case ai.EventTypeToolCall:
				if event.ToolCall != nil {
					toolCalls = append(toolCalls, *event.ToolCall)
				}
			case ai.EventTypeError:
				streamErr = event.Err
			}
		}
		if streamErr != nil {
			lastErr = streamErr
			if ai.IsTransient(streamErr) {
				continue
			}
			return "", nil, streamErr
		}
		return strings.TrimSpace(sb.String()), toolCalls, nil
	}
	return "", nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (l *Loop) toolDefs() []ai.ToolDefinition {
	all := l.registry.All()
	defs := make([]ai.ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, ai.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return defs
}

func partial(text string) string {
	if text == "" {
		return "[aborted before producing a result]"
	}
	return text + "\n\n[aborted; partial result]"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
