// Package screen owns the coordinate model: conversion between the
// normalized 0-999 grid the model speaks and real pixel positions, plus the
// single cached description of the most recent capture.
package screen

import (
	"fmt"
	"math"
)

// GridMax is the upper bound of the normalized coordinate grid.
const GridMax = 999

// CoordinateRangeError reports a normalized coordinate outside [0, 999].
// It is returned before any automation primitive is invoked.
type CoordinateRangeError struct {
	Axis  string
	Value int
}

func (e *CoordinateRangeError) Error() string {
	return fmt.Sprintf("coordinate out of range: %s=%d (must be 0-%d)", e.Axis, e.Value, GridMax)
}

// Normalize converts a pixel position to the 0-999 grid for the given
// dimensions. Pure; results are clamped to the grid.
func Normalize(px, py, w, h int) (nx, ny int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	nx = clampGrid(int(math.Round(float64(px) * 1000.0 / float64(w))))
	ny = clampGrid(int(math.Round(float64(py) * 1000.0 / float64(h))))
	return nx, ny
}

// Pixel converts a normalized position back to pixels for the given
// dimensions. Out-of-range input is rejected.
func Pixel(nx, ny, w, h int) (px, py int, err error) {
	if nx < 0 || nx > GridMax {
		return 0, 0, &CoordinateRangeError{Axis: "x", Value: nx}
	}
	if ny < 0 || ny > GridMax {
		return 0, 0, &CoordinateRangeError{Axis: "y", Value: ny}
	}
	px = int(math.Round(float64(nx) / 1000.0 * float64(w)))
	py = int(math.Round(float64(ny) / 1000.0 * float64(h)))
	return px, py, nil
}

func clampGrid(v int) int {
	if v < 0 {
		return 0
	}
	if v > GridMax {
		return GridMax
	}
	return v
}

// Kind of the most recent capture.
type Kind string

const (
	KindRaster Kind = "raster"
	KindTree   Kind = "tree"
)

// State is the single mutable slot describing the most recently captured
// screen or window. All subsequent coordinate actions are interpreted
// against the current value, never a stale one.
type State struct {
	Kind         Kind
	Width        int
	Height       int
	WindowScoped bool
	OffsetX      int
	OffsetY      int
	WindowID     string
}

// Valid reports whether a capture has been taken since the last Clear.
func (s *State) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// SetDesktop records a desktop-wide capture and clears any window offset.
func (s *State) SetDesktop(kind Kind, w, h int) {
	*s = State{Kind: kind, Width: w, Height: h}
}

// SetWindow records a window-scoped capture. The window's on-screen origin
// is cached and applied to every pixel coordinate computed afterwards.
func (s *State) SetWindow(kind Kind, w, h, left, top int, windowID string) {
	*s = State{
		Kind:         kind,
		Width:        w,
		Height:       h,
		WindowScoped: true,
		OffsetX:      left,
		OffsetY:      top,
		WindowID:     windowID,
	}
}

// Clear resets the slot to its zero value.
func (s *State) Clear() {
	*s = State{}
}

// ToPixel converts a normalized position into an absolute pixel position,
// applying the cached window offset when the last capture was window-scoped.
func (s *State) ToPixel(nx, ny int) (px, py int, err error) {
	if !s.Valid() {
		return 0, 0, fmt.Errorf("no screen captured yet")
	}
	px, py, err = Pixel(nx, ny, s.Width, s.Height)
	if err != nil {
		return 0, 0, err
	}
	return px + s.OffsetX, py + s.OffsetY, nil
}
