//go:build !offscreen && windows

package platform

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns a zero HINSTANCE, which the Vulkan backend replaces
// with the current module handle, and the HWND.
func nativeHandles(win *glfw.Window) (display, window uintptr) {
	return 0, uintptr(unsafe.Pointer(win.GetWin32Window()))
}
