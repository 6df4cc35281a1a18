package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TargetFrame is one acquired presentable image.
type TargetFrame struct {
	// View is the color attachment for this frame's render pass.
	View hal.TextureView

	surfaceTex hal.SurfaceTexture
	ownsView   bool
}

// Target is the source of presentable images: the current swapchain image
// of a window surface, or a persistent offscreen texture.
type Target interface {
	// Acquire returns the image for the next frame. A nil frame with a nil
	// error means no image is ready and the frame should be skipped.
	Acquire() (*TargetFrame, error)

	// Present hands a rendered frame to the compositor.
	Present(frame *TargetFrame) error

	// Discard releases an acquired frame that will not be presented.
	Discard(frame *TargetFrame)

	Format() gputypes.TextureFormat
	Size() (width, height uint32)
	Destroy()
}

// colorViewDescriptor describes a single-level 2D color view.
func colorViewDescriptor(label string, format gputypes.TextureFormat) *hal.TextureViewDescriptor {
	return &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	}
}

// SurfaceTarget presents into a configured window surface.
type SurfaceTarget struct {
	device  hal.Device
	queue   hal.Queue
	surface hal.Surface
	format  gputypes.TextureFormat
	width   uint32
	height  uint32
}

// Acquire implements Target.
func (t *SurfaceTarget) Acquire() (*TargetFrame, error) {
	acquired, err := t.surface.AcquireTexture(nil)
	if errors.Is(err, hal.ErrNotReady) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire surface texture: %w", err)
	}

	view, err := t.device.CreateTextureView(acquired.Texture, colorViewDescriptor("texquad_swapchain_view", t.format))
	if err != nil {
		t.surface.DiscardTexture(acquired.Texture)
		return nil, fmt.Errorf("create swapchain view: %w", err)
	}
	if acquired.Suboptimal {
		slogger().Debug("gpu: suboptimal swapchain image")
	}
	return &TargetFrame{View: view, surfaceTex: acquired.Texture, ownsView: true}, nil
}

// Present implements Target.
func (t *SurfaceTarget) Present(frame *TargetFrame) error {
	defer t.releaseView(frame)
	if err := t.queue.Present(t.surface, frame.surfaceTex, nil); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// Discard implements Target.
func (t *SurfaceTarget) Discard(frame *TargetFrame) {
	if frame == nil {
		return
	}
	t.surface.DiscardTexture(frame.surfaceTex)
	t.releaseView(frame)
}

func (t *SurfaceTarget) releaseView(frame *TargetFrame) {
	if frame.ownsView && frame.View != nil {
		t.device.DestroyTextureView(frame.View)
		frame.View = nil
	}
}

// Format implements Target.
func (t *SurfaceTarget) Format() gputypes.TextureFormat { return t.format }

// Size implements Target.
func (t *SurfaceTarget) Size() (width, height uint32) { return t.width, t.height }

// Destroy implements Target. The surface itself belongs to DeviceContext.
func (t *SurfaceTarget) Destroy() {}

// OffscreenTarget renders into a texture that is never shown. Headless runs
// use it as their presentable image; capture uses one as its readback source.
type OffscreenTarget struct {
	device  hal.Device
	texture hal.Texture
	view    hal.TextureView
	format  gputypes.TextureFormat
	width   uint32
	height  uint32
}

// NewOffscreenTarget creates a width x height color texture of format
// usable as a render attachment and as a copy source.
func NewOffscreenTarget(device hal.Device, format gputypes.TextureFormat, width, height uint32) (*OffscreenTarget, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "texquad_offscreen",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create offscreen texture: %w", err)
	}
	view, err := device.CreateTextureView(tex, colorViewDescriptor("texquad_offscreen_view", format))
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("create offscreen view: %w", err)
	}
	return &OffscreenTarget{
		device:  device,
		texture: tex,
		view:    view,
		format:  format,
		width:   width,
		height:  height,
	}, nil
}

// Acquire implements Target. The same view is returned every frame.
func (t *OffscreenTarget) Acquire() (*TargetFrame, error) {
	return &TargetFrame{View: t.view}, nil
}

// Present implements Target. Offscreen frames are already in place.
func (t *OffscreenTarget) Present(*TargetFrame) error { return nil }

// Discard implements Target.
func (t *OffscreenTarget) Discard(*TargetFrame) {}

// Texture returns the backing texture.
func (t *OffscreenTarget) Texture() hal.Texture { return t.texture }

// Format implements Target.
func (t *OffscreenTarget) Format() gputypes.TextureFormat { return t.format }

// Size implements Target.
func (t *OffscreenTarget) Size() (width, height uint32) { return t.width, t.height }

// Destroy implements Target.
func (t *OffscreenTarget) Destroy() {
	if t.view != nil {
		t.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		t.device.DestroyTexture(t.texture)
		t.texture = nil
	}
}
