package texquad

import (
	"fmt"
	stdimage "image"
	"strings"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texquad/capture"
	"github.com/gogpu/texquad/internal/gpu"
	"github.com/gogpu/texquad/internal/platform"
)

// Defaults applied by New.
const (
	DefaultFPS             = 60
	DefaultCaptureDuration = 10 * time.Second
	DefaultTitle           = "texquad"
)

// Window is a native window the app renders into and polls for events.
// *platform.Window implements it.
type Window interface {
	gpucontext.WindowProvider
	NativeHandles() (display, window uintptr)
	PollEvents()
	ShouldClose() bool
}

// DeviceOptions selects the presentation format and adapter features.
type DeviceOptions = gpu.DeviceOptions

// Option configures an App during creation.
//
// Example:
//
//	app, err := texquad.New(
//		texquad.WithImage("photo.jpg"),
//		texquad.WithShaderFile("ripple.wgsl"),
//		texquad.WithFPS(30),
//	)
type Option func(*options)

// options holds the App configuration.
type options struct {
	imageSource  string
	imageData    stdimage.Image
	shaderFile   string
	shaderSource string

	backendVariant gputypes.Backend
	backend        hal.Backend

	headless      bool
	headlessScale float64
	window        Window
	title         string
	logicalW      int
	logicalH      int
	device        DeviceOptions

	fps             int
	captureDuration time.Duration
	videoConfig     capture.VideoConfig
	onVideo         func(*capture.Video, error)

	clock  Clock
	runFor time.Duration
}

// defaultOptions returns the options used when none are given.
func defaultOptions() options {
	return options{
		backendVariant:  gputypes.BackendVulkan,
		title:           DefaultTitle,
		logicalW:        platform.DefaultWidth,
		logicalH:        platform.DefaultHeight,
		fps:             DefaultFPS,
		captureDuration: DefaultCaptureDuration,
		clock:           SystemClock{},
	}
}

// WithImage sets the texture source: a file path or an http(s) URL. It is
// fetched by Run before the first frame.
func WithImage(src string) Option {
	return func(o *options) {
		o.imageSource = src
		o.imageData = nil
	}
}

// WithImageData uses an already decoded image as the texture.
func WithImageData(img stdimage.Image) Option {
	return func(o *options) {
		o.imageData = img
		o.imageSource = ""
	}
}

// WithShaderFile loads the WGSL shader from path. Without a shader option
// the embedded quad shader is used.
func WithShaderFile(path string) Option {
	return func(o *options) {
		o.shaderFile = path
		o.shaderSource = ""
	}
}

// WithShaderSource uses WGSL source directly.
func WithShaderSource(src string) Option {
	return func(o *options) {
		o.shaderSource = src
		o.shaderFile = ""
	}
}

// WithBackend selects a registered HAL backend by variant. The backend
// package must be imported for its registration to run, for example
// github.com/gogpu/wgpu/hal/vulkan.
func WithBackend(variant gputypes.Backend) Option {
	return func(o *options) {
		o.backendVariant = variant
		o.backend = nil
	}
}

// WithHALBackend uses backend directly instead of the registry.
func WithHALBackend(backend hal.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithHeadless renders offscreen instead of into a window. scale is the
// pixel density applied to the logical size; zero means 1.
func WithHeadless(scale float64) Option {
	return func(o *options) {
		o.headless = true
		o.headlessScale = scale
	}
}

// WithWindow renders into an existing window. The app does not destroy it.
func WithWindow(w Window) Option {
	return func(o *options) {
		o.window = w
		o.headless = false
	}
}

// WithTitle sets the title of the window the app creates.
func WithTitle(title string) Option {
	return func(o *options) {
		o.title = title
	}
}

// WithLogicalSize sets the logical surface size, 960x540 by default.
func WithLogicalSize(width, height int) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.logicalW, o.logicalH = width, height
		}
	}
}

// WithDeviceOptions sets the format preference and adapter features. Its
// size fields are ignored; the surface size follows the window.
func WithDeviceOptions(d DeviceOptions) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithFPS sets the frame rate of the driver.
func WithFPS(fps int) Option {
	return func(o *options) {
		if fps > 0 {
			o.fps = fps
		}
	}
}

// WithCaptureDuration sets how long recording runs from the first frame.
// Zero or negative disables capture.
func WithCaptureDuration(d time.Duration) Option {
	return func(o *options) {
		o.captureDuration = d
	}
}

// WithVideoConfig sets the recorder configuration. A zero FPS takes the
// driver frame rate.
func WithVideoConfig(cfg capture.VideoConfig) Option {
	return func(o *options) {
		o.videoConfig = cfg
	}
}

// WithOnVideo sets the callback receiving the finished recording. The
// callback owns the video file. Without a callback the file is left in
// place and its path logged.
func WithOnVideo(f func(*capture.Video, error)) Option {
	return func(o *options) {
		o.onVideo = f
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRunFor makes Run return after d of clock time. Zero runs until the
// context is cancelled or the window closes.
func WithRunFor(d time.Duration) Option {
	return func(o *options) {
		o.runFor = d
	}
}

// ParseBackend maps a backend name to its variant.
func ParseBackend(name string) (gputypes.Backend, error) {
	switch strings.ToLower(name) {
	case "vulkan", "vk":
		return gputypes.BackendVulkan, nil
	case "noop", "empty":
		return gputypes.BackendEmpty, nil
	default:
		return gputypes.BackendEmpty, fmt.Errorf("unknown backend %q", name)
	}
}
