package gpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultFormat is the presentation format used when the surface accepts
// it, and always for headless targets.
const DefaultFormat = gputypes.TextureFormatBGRA8Unorm

// NativeWindow exposes the platform handles a surface is created from.
// On X11 display is a Display* and window an X11 window id; on Windows
// display is the HINSTANCE and window the HWND.
type NativeWindow interface {
	NativeHandles() (display, window uintptr)
}

// DeviceOptions configures AcquireDevice.
type DeviceOptions struct {
	// Width and Height are the surface size in physical pixels.
	Width, Height uint32

	// PreferredFormat overrides DefaultFormat when the surface supports it.
	PreferredFormat gputypes.TextureFormat

	// Features requested from the adapter.
	Features gputypes.Features
}

// DeviceContext holds the adapter, logical device and (optionally) the
// configured surface. The surface is configured once and never
// reconfigured.
type DeviceContext struct {
	instance hal.Instance
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	device   hal.Device
	queue    hal.Queue
	surface  hal.Surface

	format    gputypes.TextureFormat
	alphaMode gputypes.CompositeAlphaMode
	width     uint32
	height    uint32
}

// AcquireDevice creates an instance from backend, an optional surface for
// window, picks an adapter and opens a device. A nil window yields a
// headless context. Every failure is fatal and leaves nothing allocated.
func AcquireDevice(backend hal.Backend, window NativeWindow, opts DeviceOptions) (*DeviceContext, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend registered", ErrInstance)
	}
	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("%w: zero surface size %dx%d", ErrSurface, opts.Width, opts.Height)
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstance, backend.Variant(), err)
	}

	dc := &DeviceContext{
		instance: instance,
		width:    opts.Width,
		height:   opts.Height,
	}

	if window != nil {
		display, handle := window.NativeHandles()
		surface, err := instance.CreateSurface(display, handle)
		if err != nil {
			dc.Destroy()
			return nil, fmt.Errorf("%w: create surface: %w", ErrSurface, err)
		}
		dc.surface = surface
	}

	selected := SelectAdapter(instance.EnumerateAdapters(dc.surface))
	if selected == nil {
		dc.Destroy()
		return nil, fmt.Errorf("%w: backend %s reported no adapters", ErrNoAdapter, backend.Variant())
	}
	dc.adapter = selected.Adapter
	dc.info = selected.Info

	openDev, err := selected.Adapter.Open(opts.Features, gputypes.DefaultLimits())
	if err != nil {
		dc.Destroy()
		return nil, fmt.Errorf("%w: open %s: %w", ErrDeviceRequest, selected.Info.Name, err)
	}
	dc.device = openDev.Device
	dc.queue = openDev.Queue

	preferred := opts.PreferredFormat
	if preferred == gputypes.TextureFormatUndefined {
		preferred = DefaultFormat
	}

	if dc.surface == nil {
		dc.format = preferred
	} else if err := dc.configureSurface(preferred); err != nil {
		dc.Destroy()
		return nil, err
	}

	slogger().Info("gpu: device acquired",
		"adapter", dc.info.Name,
		"type", dc.info.DeviceType,
		"backend", dc.info.Backend,
		"headless", dc.surface == nil)
	slogger().Info("gpu: presentation format", "format", dc.format)
	return dc, nil
}

func (dc *DeviceContext) configureSurface(preferred gputypes.TextureFormat) error {
	caps := dc.adapter.SurfaceCapabilities(dc.surface)
	if caps == nil || len(caps.Formats) == 0 {
		return fmt.Errorf("%w: adapter %s cannot present to surface", ErrSurface, dc.info.Name)
	}

	dc.format = NegotiateFormat(caps.Formats, preferred)
	mode, ok := NegotiateAlphaMode(caps.AlphaModes)
	if !ok {
		slogger().Warn("gpu: premultiplied alpha unsupported by surface, using fallback",
			"alpha_mode", mode)
	}
	dc.alphaMode = mode

	err := dc.surface.Configure(dc.device, &hal.SurfaceConfiguration{
		Width:       dc.width,
		Height:      dc.height,
		Format:      dc.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: hal.PresentModeFifo,
		AlphaMode:   dc.alphaMode,
	})
	if err != nil {
		return fmt.Errorf("%w: configure %dx%d %v: %w", ErrSurface, dc.width, dc.height, dc.format, err)
	}
	return nil
}

// SelectAdapter prefers a discrete GPU, then an integrated one, then the
// first adapter listed. Returns nil for an empty list.
func SelectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// NegotiateFormat returns preferred when the surface lists it, otherwise
// the first supported format.
func NegotiateFormat(supported []gputypes.TextureFormat, preferred gputypes.TextureFormat) gputypes.TextureFormat {
	if len(supported) == 0 || slices.Contains(supported, preferred) {
		return preferred
	}
	return supported[0]
}

// NegotiateAlphaMode picks premultiplied alpha. When the surface does not
// offer it, the first listed mode (or opaque) is returned with ok=false.
func NegotiateAlphaMode(supported []gputypes.CompositeAlphaMode) (mode gputypes.CompositeAlphaMode, ok bool) {
	if slices.Contains(supported, gputypes.CompositeAlphaModePremultiplied) {
		return gputypes.CompositeAlphaModePremultiplied, true
	}
	if len(supported) > 0 {
		return supported[0], false
	}
	return gputypes.CompositeAlphaModeOpaque, false
}

// Device returns the logical device.
func (dc *DeviceContext) Device() hal.Device { return dc.device }

// Queue returns the device queue.
func (dc *DeviceContext) Queue() hal.Queue { return dc.queue }

// Format returns the negotiated presentation format.
func (dc *DeviceContext) Format() gputypes.TextureFormat { return dc.format }

// AlphaMode returns the composite alpha mode the surface was configured with.
func (dc *DeviceContext) AlphaMode() gputypes.CompositeAlphaMode { return dc.alphaMode }

// AdapterInfo describes the selected adapter.
func (dc *DeviceContext) AdapterInfo() gputypes.AdapterInfo { return dc.info }

// Adapter returns the selected adapter.
func (dc *DeviceContext) Adapter() hal.Adapter { return dc.adapter }

// Size returns the surface size in physical pixels.
func (dc *DeviceContext) Size() (width, height uint32) { return dc.width, dc.height }

// Headless reports whether the context has no window surface.
func (dc *DeviceContext) Headless() bool { return dc.surface == nil }

// NewTarget returns the presentable target for this context: the window
// surface, or an offscreen texture when headless.
func (dc *DeviceContext) NewTarget() (Target, error) {
	if dc.surface != nil {
		return &SurfaceTarget{
			device:  dc.device,
			queue:   dc.queue,
			surface: dc.surface,
			format:  dc.format,
			width:   dc.width,
			height:  dc.height,
		}, nil
	}
	return NewOffscreenTarget(dc.device, dc.format, dc.width, dc.height)
}

// Destroy releases the surface, device, adapter and instance in reverse
// creation order. Safe to call on a partially built context.
func (dc *DeviceContext) Destroy() {
	if dc.surface != nil {
		if dc.device != nil {
			dc.surface.Unconfigure(dc.device)
		}
		dc.surface.Destroy()
		dc.surface = nil
	}
	if dc.device != nil {
		dc.device.Destroy()
		dc.device = nil
		dc.queue = nil
	}
	if dc.adapter != nil {
		dc.adapter.Destroy()
		dc.adapter = nil
	}
	if dc.instance != nil {
		dc.instance.Destroy()
		dc.instance = nil
	}
}
