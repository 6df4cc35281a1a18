//go:build !offscreen && linux && !android && !wayland

package platform

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the X11 Display* and window id.
func nativeHandles(win *glfw.Window) (display, window uintptr) {
	return uintptr(unsafe.Pointer(glfw.GetX11Display())), uintptr(win.GetX11Window())
}
