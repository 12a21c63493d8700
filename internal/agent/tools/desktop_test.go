package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// fakeAutomator records calls and serves canned windows/trees.
type fakeAutomator struct {
	calls   []string
	windows []Window
	tree    string
	treeErr error
}

func (f *fakeAutomator) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAutomator) Click(ctx context.Context, x, y int) error {
	f.record("click %d,%d", x, y)
	return nil
}
func (f *fakeAutomator) MouseMove(ctx context.Context, x, y int) error {
	f.record("move %d,%d", x, y)
	return nil
}
func (f *fakeAutomator) TypeText(ctx context.Context, text string) error {
	f.record("type %s", text)
	return nil
}
func (f *fakeAutomator) KeyPress(ctx context.Context, keys string) error {
	f.record("key %s", keys)
	return nil
}
func (f *fakeAutomator) Scroll(ctx context.Context, direction string, amount int) error {
	f.record("scroll %s %d", direction, amount)
	return nil
}
func (f *fakeAutomator) ListWindows(ctx context.Context) ([]Window, error) {
	return f.windows, nil
}
func (f *fakeAutomator) FindWindow(ctx context.Context, title string) (*Window, error) {
	for i := range f.windows {
		if strings.Contains(strings.ToLower(f.windows[i].Title), strings.ToLower(title)) {
			return &f.windows[i], nil
		}
	}
	return nil, fmt.Errorf("no window matching %q", title)
}
func (f *fakeAutomator) FocusWindow(ctx context.Context, title string) error {
	f.record("focus %s", title)
	return nil
}
func (f *fakeAutomator) ResizeWindow(ctx context.Context, title string, w, h int) error {
	f.record("resize %s %dx%d", title, w, h)
	return nil
}
func (f *fakeAutomator) MinimizeWindow(ctx context.Context, title string) error {
	f.record("minimize %s", title)
	return nil
}
func (f *fakeAutomator) MaximizeWindow(ctx context.Context, title string) error {
	f.record("maximize %s", title)
	return nil
}
func (f *fakeAutomator) RestoreWindow(ctx context.Context, title string) error {
	f.record("restore %s", title)
	return nil
}
func (f *fakeAutomator) WindowTree(ctx context.Context, title string) (string, error) {
	return f.tree, f.treeErr
}

func newTestDesktopTool(fake *fakeAutomator) *DesktopTool {
	t := NewDesktopTool(fake)
	t.captureDesktop = func() ([]byte, int, int, error) {
		return []byte("png"), 1920, 1080, nil
	}
	t.captureRect = func(x, y, w, h int) ([]byte, error) {
		return []byte("png"), nil
	}
	return t
}

func execTool(t *testing.T, tool *DesktopTool, input string) *ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	return res
}

func TestCanonicalActionAliases(t *testing.T) {
	cases := map[string]string{
		"press_key":  "key_press",
		"move":       "mouse_move",
		"activate":   "focus_window",
		"screenshot": "window_screenshot",
		"click":      "click",
		"KEY_PRESS":  "key_press",
	}
	for in, want := range cases {
		got, ok := CanonicalAction(in)
		if !ok || got != want {
			t.Errorf("CanonicalAction(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := CanonicalAction("explode"); ok {
		t.Error("expected unknown action to be rejected")
	}
}

func TestClickRejectsOutOfRangeCoordinate(t *testing.T) {
	fake := &fakeAutomator{}
	tool := newTestDesktopTool(fake)

	// Capture first so dimensions are known.
	execTool(t, tool, `{"action":"window_screenshot"}`)

	res := execTool(t, tool, `{"action":"click","x":1005,"y":500}`)
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Content, "out of range") {
		t.Errorf("unexpected content: %s", res.Content)
	}
	for _, call := range fake.calls {
		if strings.HasPrefix(call, "click") {
			t.Error("automation primitive was invoked for rejected coordinate")
		}
	}
}

func TestClickRequiresCapture(t *testing.T) {
	fake := &fakeAutomator{}
	tool := newTestDesktopTool(fake)

	res := execTool(t, tool, `{"action":"click","x":500,"y":500}`)
	if !res.IsError {
		t.Fatal("expected error before any capture")
	}
	if len(fake.calls) != 0 {
		t.Errorf("expected no automation calls, got %v", fake.calls)
	}
}

func TestClickAppliesWindowOffset(t *testing.T) {
	fake := &fakeAutomator{
		windows: []Window{{ID: "0x1", Title: "Editor", X: 100, Y: 50, Width: 800, Height: 600}},
	}
	tool := newTestDesktopTool(fake)

	res := execTool(t, tool, `{"action":"window_screenshot","window":"Editor","mode":"pixel"}`)
	if res.IsError {
		t.Fatalf("capture failed: %s", res.Content)
	}

	execTool(t, tool, `{"action":"click","x":500,"y":500}`)
	want := "click 500,350" // 400+100, 300+50
	found := false
	for _, call := range fake.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in calls, got %v", want, fake.calls)
	}
}

func TestWindowScreenshotTreeAccepted(t *testing.T) {
	fake := &fakeAutomator{
		windows: []Window{{ID: "0x1", Title: "Settings", X: 0, Y: 0, Width: 1080, Height: 2280}},
		tree: `[TextView] text="Settings" bounds=[48,120][400,180]
[Button] text="Network" bounds=[48,300][1032,420] clickable
[Button] text="Display" bounds=[48,440][1032,560] clickable`,
	}
	tool := newTestDesktopTool(fake)

	res := execTool(t, tool, `{"action":"window_screenshot","window":"Settings","mode":"auto"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if res.Screen == nil || res.Screen.Tree == "" {
		t.Fatal("expected a tree payload")
	}
	if res.Screen.Reason != "" {
		t.Errorf("unexpected fallback reason: %s", res.Screen.Reason)
	}
}

func TestWindowScreenshotAnonymousTreeFallsBack(t *testing.T) {
	fake := &fakeAutomator{
		windows: []Window{{ID: "0x1", Title: "Legacy", X: 0, Y: 0, Width: 800, Height: 600}},
		tree: `[Button] bounds=[0,0][10,10] clickable
[Button] bounds=[0,20][10,30] clickable
[Button] bounds=[0,40][10,50] clickable
[Button] bounds=[0,60][10,70] clickable
[Button] bounds=[0,80][10,90] clickable`,
	}
	tool := newTestDesktopTool(fake)

	res := execTool(t, tool, `{"action":"window_screenshot","window":"Legacy","mode":"auto"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if res.Screen == nil || len(res.Screen.PNG) == 0 {
		t.Fatal("expected raster fallback payload")
	}
	if res.Screen.Reason == "" || !strings.Contains(res.Screen.Reason, "none with a name") {
		t.Errorf("expected rejection diagnostic, got %q", res.Screen.Reason)
	}
}

func TestMutatesScreen(t *testing.T) {
	for _, action := range []string{"click", "type", "key_press", "scroll", "focus_window"} {
		if !MutatesScreen(action) {
			t.Errorf("%s should mutate screen", action)
		}
	}
	for _, action := range []string{"list_windows", "window_screenshot", "minimize_window"} {
		if MutatesScreen(action) {
			t.Errorf("%s should not trigger re-capture", action)
		}
	}
}

func TestMissingRequiredFields(t *testing.T) {
	tool := newTestDesktopTool(&fakeAutomator{})
	res := execTool(t, tool, `{"action":"type"}`)
	if !res.IsError || !strings.Contains(res.Content, "text") {
		t.Errorf("expected missing-field error, got %s", res.Content)
	}
	res = execTool(t, tool, `{"action":"resize_window","window":"Editor"}`)
	if !res.IsError {
		t.Error("expected missing-field error for resize without dimensions")
	}
}
