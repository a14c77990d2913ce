// Package screen captures display frames and streams them to the live
// session as periodic JPEG snapshots.
package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Grabber captures a single frame of a display.
type Grabber interface {
	Grab() (*image.RGBA, error)
}

var _ Grabber = (*DisplayGrabber)(nil)

// DisplayGrabber captures the given display index of the local machine.
type DisplayGrabber struct {
	display int
}

// NewDisplayGrabber returns a grabber for display index n (0 is primary).
func NewDisplayGrabber(n int) (*DisplayGrabber, error) {
	if n < 0 || n >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("screen: no display %d", n)
	}
	return &DisplayGrabber{display: n}, nil
}

// Grab captures the current frame. Fails when the platform denies screen
// recording permission.
func (g *DisplayGrabber) Grab() (*image.RGBA, error) {
	img, err := screenshot.CaptureDisplay(g.display)
	if err != nil {
		return nil, fmt.Errorf("screen: capture display %d: %w", g.display, err)
	}
	return img, nil
}
