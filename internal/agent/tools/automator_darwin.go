//go:build darwin

package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NewAutomator returns the macOS automator. Input prefers cliclick
// (brew install cliclick) and falls back to AppleScript; window management
// goes through System Events.
func NewAutomator() Automator {
	_, err := exec.LookPath("cliclick")
	return &darwinAutomator{hasCliclick: err == nil}
}

type darwinAutomator struct {
	hasCliclick bool
}

func (a *darwinAutomator) osascript(ctx context.Context, script string) (string, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("osascript failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (a *darwinAutomator) cliclick(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "cliclick", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("cliclick failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *darwinAutomator) Click(ctx context.Context, x, y int) error {
	if a.hasCliclick {
		return a.cliclick(ctx, fmt.Sprintf("c:%d,%d", x, y))
	}
	script := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y)
	_, err := a.osascript(ctx, script)
	return err
}

func (a *darwinAutomator) MouseMove(ctx context.Context, x, y int) error {
	if !a.hasCliclick {
		return fmt.Errorf("%w: mouse move requires cliclick", ErrNoBackend)
	}
	return a.cliclick(ctx, fmt.Sprintf("m:%d,%d", x, y))
}

func (a *darwinAutomator) TypeText(ctx context.Context, text string) error {
	if a.hasCliclick {
		return a.cliclick(ctx, "t:"+text)
	}
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	_, err := a.osascript(ctx, fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped))
	return err
}

func (a *darwinAutomator) KeyPress(ctx context.Context, keys string) error {
	parts := strings.Split(strings.ToLower(keys), "+")
	key := parts[len(parts)-1]
	var mods []string
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "cmd", "command":
			mods = append(mods, "command down")
		case "ctrl", "control":
			mods = append(mods, "control down")
		case "alt", "option":
			mods = append(mods, "option down")
		case "shift":
			mods = append(mods, "shift down")
		}
	}
	var script string
	if code, ok := darwinKeyCodes[key]; ok {
		script = fmt.Sprintf(`tell application "System Events" to key code %d`, code)
	} else {
		script = fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	if len(mods) > 0 {
		script += " using {" + strings.Join(mods, ", ") + "}"
	}
	_, err := a.osascript(ctx, script)
	return err
}

var darwinKeyCodes = map[string]int{
	"return": 36, "enter": 36, "tab": 48, "space": 49, "delete": 51,
	"escape": 53, "esc": 53, "left": 123, "right": 124, "down": 125, "up": 126,
}

func (a *darwinAutomator) Scroll(ctx context.Context, direction string, amount int) error {
	if !a.hasCliclick {
		return fmt.Errorf("%w: scroll requires cliclick", ErrNoBackend)
	}
	if amount <= 0 {
		amount = 3
	}
	dx, dy := 0, 0
	switch direction {
	case "up":
		dy = amount
	case "down":
		dy = -amount
	case "left":
		dx = amount
	case "right":
		dx = -amount
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	return a.cliclick(ctx, fmt.Sprintf("scroll:%d,%d", dx, dy))
}

func (a *darwinAutomator) ListWindows(ctx context.Context) ([]Window, error) {
	script := `tell application "System Events"
	set out to ""
	repeat with p in (every process whose background only is false)
		repeat with w in (every window of p)
			set {xPos, yPos} to position of w
			set {wd, ht} to size of w
			set out to out & (name of w) & "|" & xPos & "|" & yPos & "|" & wd & "|" & ht & linefeed
		end repeat
	end repeat
	return out
end tell`
	out, err := a.osascript(ctx, script)
	if err != nil {
		return nil, err
	}
	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			continue
		}
		x, _ := strconv.Atoi(fields[1])
		y, _ := strconv.Atoi(fields[2])
		w, _ := strconv.Atoi(fields[3])
		h, _ := strconv.Atoi(fields[4])
		windows = append(windows, Window{ID: fields[0], Title: fields[0], X: x, Y: y, Width: w, Height: h})
	}
	return windows, nil
}

func (a *darwinAutomator) FindWindow(ctx context.Context, title string) (*Window, error) {
	windows, err := a.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(title)
	for i := range windows {
		if strings.Contains(strings.ToLower(windows[i].Title), needle) {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("no window matching %q", title)
}

func (a *darwinAutomator) FocusWindow(ctx context.Context, title string) error {
	_, err := a.osascript(ctx, fmt.Sprintf(`tell application "%s" to activate`, title))
	return err
}

func (a *darwinAutomator) ResizeWindow(ctx context.Context, title string, width, height int) error {
	script := fmt.Sprintf(`tell application "System Events" to set size of front window of process "%s" to {%d, %d}`,
		title, width, height)
	_, err := a.osascript(ctx, script)
	return err
}

func (a *darwinAutomator) MinimizeWindow(ctx context.Context, title string) error {
	script := fmt.Sprintf(`tell application "System Events" to set value of attribute "AXMinimized" of front window of process "%s" to true`, title)
	_, err := a.osascript(ctx, script)
	return err
}

func (a *darwinAutomator) MaximizeWindow(ctx context.Context, title string) error {
	script := fmt.Sprintf(`tell application "System Events" to perform action "AXZoom" of front window of process "%s"`, title)
	_, err := a.osascript(ctx, script)
	return err
}

func (a *darwinAutomator) RestoreWindow(ctx context.Context, title string) error {
	script := fmt.Sprintf(`tell application "System Events" to set value of attribute "AXMinimized" of front window of process "%s" to false`, title)
	_, err := a.osascript(ctx, script)
	return err
}

func (a *darwinAutomator) WindowTree(ctx context.Context, title string) (string, error) {
	script := fmt.Sprintf(`tell application "System Events"
	set out to ""
	tell process "%s"
		repeat with el in entire contents of front window
			try
				set r to role of el
				set n to ""
				try
					set n to name of el
				end try
				set {xPos, yPos} to position of el
				set {wd, ht} to size of el
				set out to out & "[" & r & "]"
				if n is not "" then set out to out & " text=\"" & n & "\""
				set out to out & " bounds=[" & xPos & "," & yPos & "][" & (xPos + wd) & "," & (yPos + ht) & "]"
				if r is in {"AXButton", "AXMenuItem", "AXCheckBox", "AXRadioButton", "AXLink"} then set out to out & " clickable"
				set out to out & linefeed
			end try
		end repeat
	end tell
	return out
end tell`, title)
	return a.osascript(ctx, script)
}
