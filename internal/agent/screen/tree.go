package screen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rect is a pixel-space bounding box in the tree's own coordinate space.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Center returns the midpoint of the rect.
func (r Rect) Center() (x, y int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Element is one node of an accessibility tree snapshot.
type Element struct {
	Class      string
	Text       string
	Desc       string
	ID         string
	Bounds     Rect
	Clickable  bool
	Scrollable bool
}

// Named reports whether the element carries a human-readable label.
func (e Element) Named() bool {
	return strings.TrimSpace(e.Text) != "" || strings.TrimSpace(e.Desc) != ""
}

// Interactive reports whether the element accepts input.
func (e Element) Interactive() bool {
	return e.Clickable || e.Scrollable
}

var (
	classRe  = regexp.MustCompile(`^\s*\[([^\]]+)\]`)
	textRe   = regexp.MustCompile(`text="((?:[^"\\]|\\.)*)"`)
	descRe   = regexp.MustCompile(`desc="((?:[^"\\]|\\.)*)"`)
	idRe     = regexp.MustCompile(`\bid=([^\s]+)`)
	boundsRe = regexp.MustCompile(`bounds=\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)
)

// ParseBounds parses a "[left,top][right,bottom]" bounds string.
func ParseBounds(s string) (Rect, error) {
	m := boundsRe.FindStringSubmatch("bounds=" + s)
	if m == nil {
		return Rect{}, fmt.Errorf("malformed bounds %q", s)
	}
	l, _ := strconv.Atoi(m[1])
	t, _ := strconv.Atoi(m[2])
	r, _ := strconv.Atoi(m[3])
	b, _ := strconv.Atoi(m[4])
	return Rect{Left: l, Top: t, Right: r, Bottom: b}, nil
}

// ParseTree parses an accessibility tree snapshot, one element per line:
//
//	[Button] text="OK" bounds=[10,20][110,60] clickable
//
// Lines without a recognizable [class] prefix are skipped.
func ParseTree(tree string) []Element {
	var elements []Element
	for _, line := range strings.Split(tree, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cm := classRe.FindStringSubmatch(line)
		if cm == nil {
			continue
		}
		el := Element{Class: cm[1]}
		if m := textRe.FindStringSubmatch(line); m != nil {
			el.Text = unescape(m[1])
		}
		if m := descRe.FindStringSubmatch(line); m != nil {
			el.Desc = unescape(m[1])
		}
		if m := idRe.FindStringSubmatch(line); m != nil {
			el.ID = m[1]
		}
		if m := boundsRe.FindStringSubmatch(line); m != nil {
			l, _ := strconv.Atoi(m[1])
			t, _ := strconv.Atoi(m[2])
			r, _ := strconv.Atoi(m[3])
			b, _ := strconv.Atoi(m[4])
			el.Bounds = Rect{Left: l, Top: t, Right: r, Bottom: b}
		}
		el.Clickable = strings.Contains(line, " clickable")
		el.Scrollable = strings.Contains(line, " scrollable")
		elements = append(elements, el)
	}
	return elements
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

// EvaluateTree decides whether a parsed tree is usable for perception.
// A tree is rejected when it carries fewer than 3 recognizable elements, or
// when 3 or more interactive elements exist but none of them is named. The
// returned reason is empty on acceptance.
func EvaluateTree(elements []Element) (ok bool, reason string) {
	if len(elements) < 3 {
		return false, fmt.Sprintf("tree has only %d recognizable elements", len(elements))
	}
	interactive := 0
	named := 0
	for _, el := range elements {
		if !el.Interactive() {
			continue
		}
		interactive++
		if el.Named() {
			named++
		}
	}
	if interactive >= 3 && named == 0 {
		return false, fmt.Sprintf("%d interactive elements, none with a name", interactive)
	}
	return true, ""
}
