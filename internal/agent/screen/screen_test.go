package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripTolerance is the achievable round-trip accuracy for one axis.
// The grid has 1000 cells, so up to 2000px a cell covers at most two pixels
// and the round trip lands within 1px. Beyond that a single cell spans
// several pixels and the top-edge clamp to 999 adds most of a cell, so the
// bound is one full cell.
func roundTripTolerance(dim int) float64 {
	if dim <= 2000 {
		return 1.0
	}
	return float64((dim + 999) / 1000)
}

func TestPixelNormalizeRoundTrip(t *testing.T) {
	dims := [][2]int{{1920, 1080}, {1366, 768}, {800, 600}, {3840, 2160}}
	for _, d := range dims {
		w, h := d[0], d[1]
		for _, px := range []int{0, 1, w / 3, w / 2, w - 2, w - 1} {
			for _, py := range []int{0, 1, h / 3, h / 2, h - 2, h - 1} {
				nx, ny := Normalize(px, py, w, h)
				gotX, gotY, err := Pixel(nx, ny, w, h)
				require.NoError(t, err)
				assert.InDelta(t, px, gotX, roundTripTolerance(w), "x round trip at %dx%d", w, h)
				assert.InDelta(t, py, gotY, roundTripTolerance(h), "y round trip at %dx%d", w, h)
			}
		}
	}
}

func TestPixelRejectsOutOfRange(t *testing.T) {
	_, _, err := Pixel(1005, 500, 1920, 1080)
	require.Error(t, err)
	var cre *CoordinateRangeError
	require.ErrorAs(t, err, &cre)
	assert.Equal(t, "x", cre.Axis)
	assert.Equal(t, 1005, cre.Value)

	_, _, err = Pixel(500, -1, 1920, 1080)
	require.Error(t, err)
	require.ErrorAs(t, err, &cre)
	assert.Equal(t, "y", cre.Axis)
}

func TestStateWindowOffset(t *testing.T) {
	var s State
	s.SetWindow(KindRaster, 800, 600, 100, 50, "win-1")

	px, py, err := s.ToPixel(500, 500)
	require.NoError(t, err)
	assert.Equal(t, 400+100, px)
	assert.Equal(t, 300+50, py)

	// A desktop capture clears the offset.
	s.SetDesktop(KindRaster, 1920, 1080)
	px, py, err = s.ToPixel(500, 500)
	require.NoError(t, err)
	assert.Equal(t, 960, px)
	assert.Equal(t, 540, py)
}

func TestStateToPixelWithoutCapture(t *testing.T) {
	var s State
	_, _, err := s.ToPixel(100, 100)
	require.Error(t, err)
}

func TestStateClear(t *testing.T) {
	var s State
	s.SetWindow(KindTree, 400, 300, 10, 20, "w")
	s.Clear()
	assert.False(t, s.Valid())
	assert.False(t, s.WindowScoped)
}
