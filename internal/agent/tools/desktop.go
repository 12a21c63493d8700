package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/connct/screenagent/internal/agent/screen"
)

// DesktopTool is the single enumerated-action tool driving the native
// automation primitives. Coordinates arrive on the normalized 0-999 grid and
// are converted against the current ScreenState before dispatch.
type DesktopTool struct {
	auto  Automator
	state *screen.State

	captureDesktop func() ([]byte, int, int, error)
	captureRect    func(x, y, w, h int) ([]byte, error)
}

// NewDesktopTool creates the desktop tool around the platform automator.
func NewDesktopTool(auto Automator) *DesktopTool {
	return &DesktopTool{
		auto:           auto,
		state:          &screen.State{},
		captureDesktop: CaptureDesktop,
		captureRect:    CaptureRect,
	}
}

// State exposes the screen slot so the loop can reset it with the session.
func (t *DesktopTool) State() *screen.State { return t.state }

func (t *DesktopTool) Name() string { return "desktop" }

func (t *DesktopTool) Description() string {
	return "Control the desktop: click, move the mouse, type, press keys, scroll, " +
		"manage windows, and capture the screen. Coordinates are on a 0-999 grid " +
		"relative to the most recent capture."
}

func (t *DesktopTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["click", "mouse_move", "type", "key_press", "scroll", "list_windows", "focus_window", "resize_window", "minimize_window", "maximize_window", "restore_window", "window_screenshot"],
				"description": "Action to perform"
			},
			"x": {"type": "integer", "description": "X on the 0-999 grid"},
			"y": {"type": "integer", "description": "Y on the 0-999 grid"},
			"text": {"type": "string", "description": "Text to type"},
			"keys": {"type": "string", "description": "Key or chord, e.g. 'enter', 'ctrl+s'"},
			"direction": {"type": "string", "enum": ["up", "down", "left", "right"], "description": "Scroll direction"},
			"amount": {"type": "integer", "description": "Scroll amount (default: 3)"},
			"window": {"type": "string", "description": "Window title (partial match) for window actions"},
			"width": {"type": "integer", "description": "Width in pixels for resize_window"},
			"height": {"type": "integer", "description": "Height in pixels for resize_window"},
			"mode": {"type": "string", "enum": ["auto", "accessibility", "pixel"], "description": "Perception mode for window_screenshot (default: auto)"}
		},
		"required": ["action"]
	}`)
}

// DesktopInput is the typed form of the model-supplied arguments.
type DesktopInput struct {
	Action    string `json:"action"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
	Text      string `json:"text,omitempty"`
	Keys      string `json:"keys,omitempty"`
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	Window    string `json:"window,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// actionAliases maps the names models actually emit to canonical actions.
var actionAliases = map[string]string{
	"press_key":  "key_press",
	"keypress":   "key_press",
	"hotkey":     "key_press",
	"key":        "key_press",
	"move":       "mouse_move",
	"move_mouse": "mouse_move",
	"type_text":  "type",
	"input_text": "type",
	"activate":   "focus_window",
	"focus":      "focus_window",
	"resize":     "resize_window",
	"minimize":   "minimize_window",
	"maximize":   "maximize_window",
	"restore":    "restore_window",
	"windows":    "list_windows",
	"screenshot": "window_screenshot",
	"capture":    "window_screenshot",
}

var canonicalActions = []string{
	"click", "mouse_move", "type", "key_press", "scroll",
	"list_windows", "focus_window", "resize_window", "minimize_window",
	"maximize_window", "restore_window", "window_screenshot",
}

// CanonicalAction normalizes an action name, resolving known aliases.
func CanonicalAction(action string) (string, bool) {
	action = strings.ToLower(strings.TrimSpace(action))
	if alias, ok := actionAliases[action]; ok {
		return alias, true
	}
	for _, c := range canonicalActions {
		if action == c {
			return c, true
		}
	}
	return "", false
}

// MutatesScreen reports whether a successful action changes what is on
// screen and therefore warrants an automatic re-capture.
func MutatesScreen(action string) bool {
	switch action {
	case "click", "scroll", "type", "key_press", "mouse_move",
		"focus_window", "resize_window", "maximize_window", "restore_window":
		return true
	}
	return false
}

func (t *DesktopTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in DesktopInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &ToolResult{Content: fmt.Sprintf("Failed to parse input: %v", err), IsError: true}, nil
	}

	action, ok := CanonicalAction(in.Action)
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("Unknown action %q. Valid actions: %s",
				in.Action, strings.Join(canonicalActions, ", ")),
			IsError: true,
		}, nil
	}
	in.Action = action

	switch action {
	case "click":
		return t.pointerAction(ctx, in, "click")
	case "mouse_move":
		return t.pointerAction(ctx, in, "mouse_move")
	case "type":
		if in.Text == "" {
			return missingField(action, "text"), nil
		}
		if err := t.auto.TypeText(ctx, in.Text); err != nil {
			return execError(err), nil
		}
		return &ToolResult{Content: fmt.Sprintf("Typed %d characters", len(in.Text))}, nil
	case "key_press":
		if in.Keys == "" {
			return missingField(action, "keys"), nil
		}
		if err := t.auto.KeyPress(ctx, in.Keys); err != nil {
			return execError(err), nil
		}
		return &ToolResult{Content: fmt.Sprintf("Pressed %s", in.Keys)}, nil
	case "scroll":
		return t.scroll(ctx, in)
	case "list_windows":
		return t.listWindows(ctx)
	case "focus_window", "resize_window", "minimize_window", "maximize_window", "restore_window":
		return t.windowAction(ctx, in)
	case "window_screenshot":
		return t.windowScreenshot(ctx, in)
	}
	return &ToolResult{Content: fmt.Sprintf("Unhandled action %q", action), IsError: true}, nil
}

// pointerAction converts normalized coordinates and dispatches a click or
// mouse move. Range violations are rejected before any automation call.
func (t *DesktopTool) pointerAction(ctx context.Context, in DesktopInput, action string) (*ToolResult, error) {
	if in.X == nil || in.Y == nil {
		return missingField(action, "x, y"), nil
	}
	px, py, res := t.toPixel(*in.X, *in.Y)
	if res != nil {
		return res, nil
	}
	var err error
	if action == "click" {
		err = t.auto.Click(ctx, px, py)
	} else {
		err = t.auto.MouseMove(ctx, px, py)
	}
	if err != nil {
		return execError(err), nil
	}
	verb := "Clicked"
	if action == "mouse_move" {
		verb = "Moved mouse"
	}
	return &ToolResult{Content: fmt.Sprintf("%s at (%d, %d) [pixel (%d, %d)]", verb, *in.X, *in.Y, px, py)}, nil
}

func (t *DesktopTool) toPixel(nx, ny int) (px, py int, errRes *ToolResult) {
	px, py, err := t.state.ToPixel(nx, ny)
	if err != nil {
		var cre *screen.CoordinateRangeError
		if errors.As(err, &cre) {
			return 0, 0, &ToolResult{Content: "COORDINATE ERROR: " + cre.Error(), IsError: true}
		}
		return 0, 0, &ToolResult{
			Content: fmt.Sprintf("No screen captured yet: %v. Take a window_screenshot first.", err),
			IsError: true,
		}
	}
	return px, py, nil
}

func (t *DesktopTool) scroll(ctx context.Context, in DesktopInput) (*ToolResult, error) {
	if in.Direction == "" {
		return missingField("scroll", "direction"), nil
	}
	if in.X != nil && in.Y != nil {
		px, py, res := t.toPixel(*in.X, *in.Y)
		if res != nil {
			return res, nil
		}
		if err := t.auto.MouseMove(ctx, px, py); err != nil {
			return execError(err), nil
		}
	}
	if err := t.auto.Scroll(ctx, in.Direction, in.Amount); err != nil {
		return execError(err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Scrolled %s", in.Direction)}, nil
}

func (t *DesktopTool) listWindows(ctx context.Context) (*ToolResult, error) {
	windows, err := t.auto.ListWindows(ctx)
	if err != nil {
		return execError(err), nil
	}
	if len(windows) == 0 {
		return &ToolResult{Content: "No windows found"}, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d windows:\n", len(windows))
	for _, w := range windows {
		fmt.Fprintf(&sb, "- %s", w.Title)
		if w.Width > 0 {
			fmt.Fprintf(&sb, " at (%d, %d) size %dx%d", w.X, w.Y, w.Width, w.Height)
		}
		sb.WriteString("\n")
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (t *DesktopTool) windowAction(ctx context.Context, in DesktopInput) (*ToolResult, error) {
	if in.Window == "" {
		return missingField(in.Action, "window"), nil
	}
	var err error
	switch in.Action {
	case "focus_window":
		err = t.auto.FocusWindow(ctx, in.Window)
	case "resize_window":
		if in.Width <= 0 || in.Height <= 0 {
			return missingField(in.Action, "width, height"), nil
		}
		err = t.auto.ResizeWindow(ctx, in.Window, in.Width, in.Height)
	case "minimize_window":
		err = t.auto.MinimizeWindow(ctx, in.Window)
	case "maximize_window":
		err = t.auto.MaximizeWindow(ctx, in.Window)
	case "restore_window":
		err = t.auto.RestoreWindow(ctx, in.Window)
	}
	if err != nil {
		return execError(err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("%s %q done", in.Action, in.Window)}, nil
}

// windowScreenshot captures the desktop or a named window, choosing between
// an accessibility tree and a raster image per the requested mode.
func (t *DesktopTool) windowScreenshot(ctx context.Context, in DesktopInput) (*ToolResult, error) {
	mode := in.Mode
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto", "accessibility", "pixel":
	default:
		return &ToolResult{Content: fmt.Sprintf("Unknown mode %q (want auto, accessibility, or pixel)", mode), IsError: true}, nil
	}

	if in.Window == "" {
		return t.desktopCapture()
	}

	if mode != "pixel" {
		res, tried := t.treeCapture(ctx, in.Window, mode)
		if res != nil {
			return res, nil
		}
		// tried holds the rejection diagnostic for the raster fallback.
		return t.rasterWindowCapture(ctx, in.Window, tried)
	}
	return t.rasterWindowCapture(ctx, in.Window, "")
}

func (t *DesktopTool) desktopCapture() (*ToolResult, error) {
	data, w, h, err := t.captureDesktop()
	if err != nil {
		return execError(err), nil
	}
	t.state.SetDesktop(screen.KindRaster, w, h)
	return &ToolResult{
		Content: fmt.Sprintf("Captured desktop (%dx%d)", w, h),
		Screen:  &ScreenPayload{PNG: data},
	}, nil
}

// treeCapture attempts an accessibility snapshot. It returns a final result
// when the tree is usable (or mode=accessibility failed hard); otherwise it
// returns nil plus the diagnostic reason for the raster fallback.
func (t *DesktopTool) treeCapture(ctx context.Context, title, mode string) (*ToolResult, string) {
	tree, err := t.auto.WindowTree(ctx, title)
	if err != nil {
		if mode == "accessibility" {
			return execError(err), ""
		}
		return nil, fmt.Sprintf("accessibility snapshot unavailable: %v", err)
	}

	elements := screen.ParseTree(tree)
	ok, reason := screen.EvaluateTree(elements)
	if !ok {
		fmt.Printf("[Desktop] Tree rejected for %q: %s\n", title, reason)
		if mode == "accessibility" {
			return &ToolResult{
				Content: fmt.Sprintf("Accessibility tree rejected: %s", reason),
				IsError: true,
			}, ""
		}
		return nil, "accessibility tree rejected: " + reason
	}

	win, err := t.auto.FindWindow(ctx, title)
	if err != nil {
		return execError(err), ""
	}
	t.state.SetWindow(screen.KindTree, win.Width, win.Height, win.X, win.Y, win.Title)
	return &ToolResult{
		Content: fmt.Sprintf("Captured accessibility tree of %q (%d elements, window %dx%d)",
			win.Title, len(elements), win.Width, win.Height),
		Screen: &ScreenPayload{Tree: tree},
	}, ""
}

func (t *DesktopTool) rasterWindowCapture(ctx context.Context, title, fallbackReason string) (*ToolResult, error) {
	win, err := t.auto.FindWindow(ctx, title)
	if err != nil {
		return execError(err), nil
	}
	data, err := t.captureRect(win.X, win.Y, win.Width, win.Height)
	if err != nil {
		return execError(err), nil
	}
	t.state.SetWindow(screen.KindRaster, win.Width, win.Height, win.X, win.Y, win.Title)
	content := fmt.Sprintf("Captured window %q (%dx%d)", win.Title, win.Width, win.Height)
	if fallbackReason != "" {
		content = fmt.Sprintf("Fell back to raster capture (%s). %s", fallbackReason, content)
	}
	return &ToolResult{
		Content: content,
		Screen:  &ScreenPayload{PNG: data, Reason: fallbackReason},
	}, nil
}

// CaptureCurrentScope re-captures using the same scope as the previous
// capture, for the automatic post-action refresh.
func (t *DesktopTool) CaptureCurrentScope(ctx context.Context) (*ToolResult, error) {
	if t.state.WindowScoped && t.state.WindowID != "" {
		mode := "pixel"
		if t.state.Kind == screen.KindTree {
			mode = "auto"
		}
		return t.windowScreenshot(ctx, DesktopInput{Action: "window_screenshot", Window: t.state.WindowID, Mode: mode})
	}
	return t.desktopCapture()
}

func missingField(action, fields string) *ToolResult {
	return &ToolResult{
		Content: fmt.Sprintf("Action %q requires: %s", action, fields),
		IsError: true,
	}
}

func execError(err error) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf("EXECUTION ERROR: %v", err), IsError: true}
}
