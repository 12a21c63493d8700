package tools

import (
	"context"
	"errors"
)

// ErrNoBackend is returned when no automation backend is available on the
// host (e.g. xdotool missing on Linux).
var ErrNoBackend = errors.New("no desktop automation backend available")

// Window describes one top-level window as reported by the platform.
type Window struct {
	ID     string
	Title  string
	X      int
	Y      int
	Width  int
	Height int
}

// Automator is the set of native automation primitives the desktop tool
// drives. Coordinates are absolute pixels; conversion from the normalized
// grid happens before these are called.
type Automator interface {
	Click(ctx context.Context, x, y int) error
	MouseMove(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, keys string) error
	Scroll(ctx context.Context, direction string, amount int) error

	ListWindows(ctx context.Context) ([]Window, error)
	FindWindow(ctx context.Context, title string) (*Window, error)
	FocusWindow(ctx context.Context, title string) error
	ResizeWindow(ctx context.Context, title string, width, height int) error
	MinimizeWindow(ctx context.Context, title string) error
	MaximizeWindow(ctx context.Context, title string) error
	RestoreWindow(ctx context.Context, title string) error

	// WindowTree returns an accessibility snapshot of the window, one
	// element per line. Platforms without UI automation support return
	// ErrNoBackend.
	WindowTree(ctx context.Context, title string) (string, error)
}
