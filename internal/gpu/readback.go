package gpu

import (
	"fmt"
	stdimage "image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the required BytesPerRow alignment for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// alignedBytesPerRow rounds width*4 up to copyPitchAlignment.
func alignedBytesPerRow(width uint32) uint32 {
	return (width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// Readback mirrors each frame into an offscreen texture and copies it to a
// mappable staging buffer so the CPU can encode it.
type Readback struct {
	device  hal.Device
	target  *OffscreenTarget
	staging hal.Buffer

	width, height uint32
	bytesPerRow   uint32
	pending       bool
}

// NewReadback allocates the mirror texture and staging buffer for frames
// of the given format and size.
func NewReadback(device hal.Device, format gputypes.TextureFormat, width, height uint32) (*Readback, error) {
	target, err := NewOffscreenTarget(device, format, width, height)
	if err != nil {
		return nil, fmt.Errorf("create readback target: %w", err)
	}
	bpr := alignedBytesPerRow(width)
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texquad_readback_staging",
		Size:  uint64(bpr) * uint64(height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		target.Destroy()
		return nil, fmt.Errorf("create readback staging buffer: %w", err)
	}
	return &Readback{
		device:      device,
		target:      target,
		staging:     staging,
		width:       width,
		height:      height,
		bytesPerRow: bpr,
	}, nil
}

// View returns the color attachment the mirrored pass renders into.
func (r *Readback) View() hal.TextureView { return r.target.view }

// Record appends the texture-to-buffer copy to encoder. Must follow the
// mirrored render pass in the same command buffer.
func (r *Readback) Record(encoder hal.CommandEncoder) {
	tex := r.target.Texture()
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(tex, r.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: r.bytesPerRow, RowsPerImage: r.height},
		TextureBase:  hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	r.pending = true
}

// Read waits for the GPU, maps the staging buffer and returns the frame as
// RGBA pixels. Returns nil, nil when no copy was recorded since the last Read.
func (r *Readback) Read() (*stdimage.RGBA, error) {
	if !r.pending {
		return nil, nil
	}
	r.pending = false

	if err := r.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("readback wait: %w", err)
	}
	size := uint64(r.bytesPerRow) * uint64(r.height)
	mapping, err := r.device.MapBuffer(r.staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("map readback buffer: %w", err)
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), size)

	img := stdimage.NewRGBA(stdimage.Rect(0, 0, int(r.width), int(r.height)))
	copyRows(img.Pix, src, int(r.width), int(r.height), int(r.bytesPerRow), r.target.Format())

	if err := r.device.UnmapBuffer(r.staging); err != nil {
		return nil, fmt.Errorf("unmap readback buffer: %w", err)
	}
	return img, nil
}

// copyRows strips row padding from src into the tightly packed dst,
// swizzling BGRA formats to RGBA.
func copyRows(dst, src []byte, width, height, srcStride int, format gputypes.TextureFormat) {
	rowBytes := width * 4
	bgra := format == gputypes.TextureFormatBGRA8Unorm || format == gputypes.TextureFormatBGRA8UnormSrgb
	for y := range height {
		s := src[y*srcStride : y*srcStride+rowBytes]
		d := dst[y*rowBytes : (y+1)*rowBytes]
		if !bgra {
			copy(d, s)
			continue
		}
		for x := 0; x < rowBytes; x += 4 {
			d[x] = s[x+2]
			d[x+1] = s[x+1]
			d[x+2] = s[x]
			d[x+3] = s[x+3]
		}
	}
}

// Destroy releases the staging buffer and the mirror texture.
func (r *Readback) Destroy() {
	if r.staging != nil {
		r.device.DestroyBuffer(r.staging)
		r.staging = nil
	}
	if r.target != nil {
		r.target.Destroy()
		r.target = nil
	}
}
