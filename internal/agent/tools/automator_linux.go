//go:build linux

package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NewAutomator returns the Linux automator, backed by xdotool for input and
// wmctrl for window management (X11).
func NewAutomator() Automator {
	return &linuxAutomator{}
}

type linuxAutomator struct{}

func (a *linuxAutomator) run(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s not installed", ErrNoBackend, name)
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %v: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *linuxAutomator) Click(ctx context.Context, x, y int) error {
	return a.run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", "1")
}

func (a *linuxAutomator) MouseMove(ctx context.Context, x, y int) error {
	return a.run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y))
}

func (a *linuxAutomator) TypeText(ctx context.Context, text string) error {
	return a.run(ctx, "xdotool", "type", "--delay", "12", text)
}

func (a *linuxAutomator) KeyPress(ctx context.Context, keys string) error {
	return a.run(ctx, "xdotool", "key", keys)
}

func (a *linuxAutomator) Scroll(ctx context.Context, direction string, amount int) error {
	// xdotool maps wheel motion to buttons 4-7.
	button := map[string]string{"up": "4", "down": "5", "left": "6", "right": "7"}[direction]
	if button == "" {
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	if amount <= 0 {
		amount = 3
	}
	return a.run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(amount), button)
}

func (a *linuxAutomator) ListWindows(ctx context.Context) ([]Window, error) {
	if _, err := exec.LookPath("wmctrl"); err != nil {
		return nil, fmt.Errorf("%w: wmctrl not installed", ErrNoBackend)
	}
	out, err := exec.CommandContext(ctx, "wmctrl", "-l", "-G").Output()
	if err != nil {
		return nil, fmt.Errorf("wmctrl failed: %w", err)
	}
	var windows []Window
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		// wmctrl -l -G: window_id desktop x y width height hostname title
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		x, _ := strconv.Atoi(fields[2])
		y, _ := strconv.Atoi(fields[3])
		w, _ := strconv.Atoi(fields[4])
		h, _ := strconv.Atoi(fields[5])
		windows = append(windows, Window{
			ID:     fields[0],
			Title:  strings.Join(fields[7:], " "),
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
		})
	}
	return windows, nil
}

func (a *linuxAutomator) FindWindow(ctx context.Context, title string) (*Window, error) {
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

func (a *linuxAutomator) FocusWindow(ctx context.Context, title string) error {
	return a.run(ctx, "wmctrl", "-a", title)
}

func (a *linuxAutomator) ResizeWindow(ctx context.Context, title string, width, height int) error {
	return a.run(ctx, "wmctrl", "-r", title, "-e", fmt.Sprintf("0,-1,-1,%d,%d", width, height))
}

func (a *linuxAutomator) MinimizeWindow(ctx context.Context, title string) error {
	win, err := a.FindWindow(ctx, title)
	if err != nil {
		return err
	}
	return a.run(ctx, "xdotool", "windowminimize", win.ID)
}

func (a *linuxAutomator) MaximizeWindow(ctx context.Context, title string) error {
	return a.run(ctx, "wmctrl", "-r", title, "-b", "add,maximized_vert,maximized_horz")
}

func (a *linuxAutomator) RestoreWindow(ctx context.Context, title string) error {
	if err := a.run(ctx, "wmctrl", "-r", title, "-b", "remove,maximized_vert,maximized_horz"); err != nil {
		return err
	}
	return a.run(ctx, "wmctrl", "-a", title)
}

func (a *linuxAutomator) WindowTree(ctx context.Context, title string) (string, error) {
	// No stable accessibility CLI on X11; callers fall back to raster.
	return "", fmt.Errorf("%w: accessibility trees not supported on linux", ErrNoBackend)
}
