package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texquad/internal/image"
)

// ContextConfig describes everything NewContext builds.
type ContextConfig struct {
	// Backend creates the instance. Required.
	Backend hal.Backend

	// Window provides the native surface handles. Nil renders headless.
	Window NativeWindow

	// Device sets the surface size in physical pixels and format
	// preferences.
	Device DeviceOptions

	// Image is the decoded source of the texture. Required.
	Image *image.ImageBuf

	// ShaderSource is WGSL satisfying the binding contract. Empty selects
	// the embedded quad shader.
	ShaderSource string

	// LogicalWidth and LogicalHeight fill the uniform block's width and
	// height. Zero uses the physical surface size.
	LogicalWidth, LogicalHeight float32
}

// Context owns every process-wide GPU handle: device, target, resources,
// binding contract, pipeline and scheduler. Build it once with NewContext
// and release it with Close.
type Context struct {
	mu     sync.Mutex
	closed bool

	dc        *DeviceContext
	target    Target
	resources *ResourceSet
	binding   *BindingContract
	pipeline  *Pipeline
	scheduler *Scheduler
}

var _ gpucontext.DeviceProvider = (*Context)(nil)

// NewContext acquires the device and builds the resource set, binding
// contract and pipeline in dependency order. Any failure is fatal: what was
// built is released and the error returned.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.Image == nil {
		return nil, fmt.Errorf("new context: %w", image.ErrEmptyData)
	}
	source := cfg.ShaderSource
	if source == "" {
		source = DefaultShaderSource()
	}

	dc, err := AcquireDevice(cfg.Backend, cfg.Window, cfg.Device)
	if err != nil {
		return nil, err
	}
	c := &Context{dc: dc}
	if err := c.build(cfg, source); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Context) build(cfg ContextConfig, source string) error {
	target, err := c.dc.NewTarget()
	if err != nil {
		return err
	}
	c.target = target

	w, h := cfg.LogicalWidth, cfg.LogicalHeight
	if w == 0 || h == 0 {
		pw, ph := c.dc.Size()
		w, h = float32(pw), float32(ph)
	}
	res, err := NewResourceSet(c.dc.Device(), c.dc.Queue(), cfg.Image, w, h)
	if err != nil {
		return err
	}
	c.resources = res

	binding, err := NewBindingContract(c.dc.Device(), res)
	if err != nil {
		return err
	}
	c.binding = binding

	pipeline, err := NewPipeline(c.dc.Device(), binding, c.dc.Format(), source)
	if err != nil {
		return err
	}
	c.pipeline = pipeline

	c.scheduler = NewScheduler(c.dc.Device(), c.dc.Queue(), target, res, binding, pipeline)
	return nil
}

// Scheduler returns the frame scheduler. It is Stopped until Start.
func (c *Context) Scheduler() *Scheduler { return c.scheduler }

// Resources returns the resource set.
func (c *Context) Resources() *ResourceSet { return c.resources }

// Binding returns the binding contract.
func (c *Context) Binding() *BindingContract { return c.binding }

// Pipeline returns the render pipeline.
func (c *Context) Pipeline() *Pipeline { return c.pipeline }

// Target returns the presentable target.
func (c *Context) Target() Target { return c.target }

// DeviceContext returns the underlying device context.
func (c *Context) DeviceContext() *DeviceContext { return c.dc }

// Device implements gpucontext.DeviceProvider.
func (c *Context) Device() gpucontext.Device { return c.dc.Device() }

// Queue implements gpucontext.DeviceProvider.
func (c *Context) Queue() gpucontext.Queue { return c.dc.Queue() }

// Adapter implements gpucontext.DeviceProvider.
func (c *Context) Adapter() gpucontext.Adapter { return c.dc.Adapter() }

// SurfaceFormat implements gpucontext.DeviceProvider. Headless contexts
// report TextureFormatUndefined.
func (c *Context) SurfaceFormat() gputypes.TextureFormat {
	if c.dc.Headless() {
		return gputypes.TextureFormatUndefined
	}
	return c.dc.Format()
}

// AdapterInfo implements gpucontext.DeviceProvider.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo {
	info := c.dc.AdapterInfo()
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Close stops the scheduler and releases every handle in reverse creation
// order. Safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.release()
	slogger().Debug("gpu: context closed")
	return nil
}

// Closed reports whether Close has run.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) release() {
	if c.scheduler != nil {
		c.scheduler.Destroy()
		c.scheduler = nil
	}
	if c.pipeline != nil {
		c.pipeline.Destroy()
		c.pipeline = nil
	}
	if c.binding != nil {
		c.binding.Destroy()
		c.binding = nil
	}
	if c.resources != nil {
		c.resources.Destroy()
		c.resources = nil
	}
	if c.target != nil {
		c.target.Destroy()
		c.target = nil
	}
	c.dc.Destroy()
}
