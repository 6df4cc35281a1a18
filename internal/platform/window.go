//go:build !offscreen && ((linux && !android && !wayland) || windows)

package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/gpucontext"
)

func init() {
	// glfw must be driven from the main thread.
	runtime.LockOSThread()
}

// Window is a fixed-size native window with no client API, ready for a
// Vulkan surface. All methods must be called from the main thread.
type Window struct {
	win    *glfw.Window
	width  int
	height int
}

var _ gpucontext.WindowProvider = (*Window)(nil)

// NewWindow initializes glfw and opens a non-resizable window of the given
// logical size. The window is scaled to the monitor's content scale.
func NewWindow(title string, width, height int) (*Window, error) {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("init glfw: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	w := &Window{win: win, width: width, height: height}
	fw, fh := win.GetFramebufferSize()
	slogger().Info("platform: window created",
		"logical", fmt.Sprintf("%dx%d", width, height),
		"framebuffer", fmt.Sprintf("%dx%d", fw, fh),
		"scale", w.ScaleFactor())
	return w, nil
}

// Size implements gpucontext.WindowProvider. It returns the logical size
// requested at creation.
func (w *Window) Size() (width, height int) { return w.width, w.height }

// ScaleFactor implements gpucontext.WindowProvider. It is the horizontal
// content scale of the window's monitor.
func (w *Window) ScaleFactor() float64 {
	sx, _ := w.win.GetContentScale()
	if sx <= 0 {
		return 1
	}
	return float64(sx)
}

// FramebufferSize returns the drawable size in physical pixels.
func (w *Window) FramebufferSize() (width, height uint32) {
	fw, fh := w.win.GetFramebufferSize()
	return uint32(max(fw, 1)), uint32(max(fh, 1)) //nolint:gosec // clamped positive
}

// RequestRedraw implements gpucontext.WindowProvider by waking the event
// loop.
func (w *Window) RequestRedraw() { glfw.PostEmptyEvent() }

// PollEvents processes pending window events.
func (w *Window) PollEvents() { glfw.PollEvents() }

// ShouldClose reports whether the user asked to close the window.
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

// NativeHandles returns the display and window handles a Vulkan surface is
// created from.
func (w *Window) NativeHandles() (display, window uintptr) {
	return nativeHandles(w.win)
}

// Destroy closes the window and terminates glfw.
func (w *Window) Destroy() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	glfw.Terminate()
}
