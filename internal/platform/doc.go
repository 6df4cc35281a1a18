// Package platform provides the surfaces texquad renders into: a native
// glfw window on desktop systems and a window-less Headless provider.
//
// Both implement gpucontext.WindowProvider. Sizes reported by Size are in
// logical points; multiply by ScaleFactor, or call PhysicalSize, for the
// pixel size of the swapchain.
package platform

import (
	"math"

	"github.com/gogpu/gpucontext"
)

// Default logical window size.
const (
	DefaultWidth  = 960
	DefaultHeight = 540
)

// PhysicalSize converts a provider's logical size to physical pixels.
func PhysicalSize(wp gpucontext.WindowProvider) (width, height uint32) {
	w, h := wp.Size()
	scale := wp.ScaleFactor()
	if scale <= 0 {
		scale = 1
	}
	return uint32(max(math.Round(float64(w)*scale), 1)), uint32(max(math.Round(float64(h)*scale), 1)) //nolint:gosec // window sizes are small positive values
}
