package platform

import "github.com/gogpu/gpucontext"

// Headless is a window-less provider with a fixed size and scale factor.
// It backs offscreen rendering and tests.
type Headless struct {
	width, height int
	scale         float64
	redraws       int
}

var _ gpucontext.WindowProvider = (*Headless)(nil)

// NewHeadless returns a provider of the given logical size. Non-positive
// sizes take the defaults; a non-positive scale is treated as 1.
func NewHeadless(width, height int, scale float64) *Headless {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if scale <= 0 {
		scale = 1
	}
	return &Headless{width: width, height: height, scale: scale}
}

// Size implements gpucontext.WindowProvider.
func (h *Headless) Size() (width, height int) { return h.width, h.height }

// ScaleFactor implements gpucontext.WindowProvider.
func (h *Headless) ScaleFactor() float64 { return h.scale }

// RequestRedraw implements gpucontext.WindowProvider. Headless rendering is
// continuous, so it only counts requests.
func (h *Headless) RequestRedraw() { h.redraws++ }

// Redraws returns the number of RequestRedraw calls.
func (h *Headless) Redraws() int { return h.redraws }
