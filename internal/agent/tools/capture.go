package tools

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
)

// CaptureDesktop grabs the primary display and returns PNG bytes plus the
// captured dimensions.
func CaptureDesktop() (data []byte, width, height int, err error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, 0, 0, fmt.Errorf("no active displays")
	}
	bounds := screenshot.GetDisplayBounds(0)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("capture failed: %w", err)
	}
	data, err = encodePNG(img)
	if err != nil {
		return nil, 0, 0, err
	}
	return data, bounds.Dx(), bounds.Dy(), nil
}

// CaptureRect grabs an arbitrary screen region, used for window-scoped
// captures with the window's reported bounds.
func CaptureRect(x, y, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid capture rect %dx%d", width, height)
	}
	rect := image.Rect(x, y, x+width, y+height)
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
