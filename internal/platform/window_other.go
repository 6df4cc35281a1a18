//go:build offscreen || !((linux && !android && !wayland) || windows)

package platform

import "errors"

// ErrNoWindowSystem is returned by NewWindow on builds without a supported
// window system.
var ErrNoWindowSystem = errors.New("platform: no window system in this build")

// Window is unavailable on this build. Use Headless.
type Window struct{}

// NewWindow always fails on this build.
func NewWindow(string, int, int) (*Window, error) { return nil, ErrNoWindowSystem }

func (*Window) Size() (width, height int)                { return 0, 0 }
func (*Window) ScaleFactor() float64                     { return 1 }
func (*Window) FramebufferSize() (width, height uint32)  { return 0, 0 }
func (*Window) RequestRedraw()                           {}
func (*Window) PollEvents()                              {}
func (*Window) ShouldClose() bool                        { return true }
func (*Window) NativeHandles() (display, window uintptr) { return 0, 0 }
func (*Window) Destroy()                                 {}
