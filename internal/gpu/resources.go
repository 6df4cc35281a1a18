package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texquad/internal/image"
)

// QuadVertices are the two clip-space triangles covering [-1,1]x[-1,1].
var QuadVertices = [...]float32{
	-1, 1,
	1, 1,
	-1, -1,

	-1, -1,
	1, -1,
	1, 1,
}

const (
	// QuadVertexCount is the number of vertices drawn per frame.
	QuadVertexCount = len(QuadVertices) / 2

	// VertexStride is the size of one float32x2 position.
	VertexStride = 2 * 4

	// UniformSize is the byte size of Uniforms. It must equal the shader's
	// uniform block size.
	UniformSize = 16

	// timeOffset is where {time, deltaTime} start inside the uniform block.
	timeOffset = 8
)

// Uniforms mirrors the shader's uniform block.
type Uniforms struct {
	Width     float32
	Height    float32
	Time      float32
	DeltaTime float32
}

// Bytes encodes u as the 16-byte little-endian block the shader reads.
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(u.Width))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(u.Height))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(u.Time))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(u.DeltaTime))
	return buf
}

// DecodeUniforms is the inverse of Uniforms.Bytes.
func DecodeUniforms(b []byte) (Uniforms, error) {
	if len(b) < UniformSize {
		return Uniforms{}, fmt.Errorf("decode uniforms: %d bytes, want %d", len(b), UniformSize)
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	return Uniforms{Width: f(0), Height: f(4), Time: f(8), DeltaTime: f(12)}, nil
}

func quadVertexBytes() []byte {
	buf := make([]byte, len(QuadVertices)*4)
	for i, v := range QuadVertices {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// ResourceSet owns the GPU objects the quad samples and reads: the static
// vertex buffer, the per-frame uniform buffer, the texture and its sampler.
type ResourceSet struct {
	device hal.Device
	queue  hal.Queue

	vertexBuf   hal.Buffer
	uniformBuf  hal.Buffer
	texture     hal.Texture
	textureView hal.TextureView
	sampler     hal.Sampler

	width, height int
	mipLevels     uint32
}

// NewResourceSet creates every resource and uploads the quad, the initial
// uniforms {width, height, 0, 0} and the full mipmap chain of img.
// On error, whatever was created is destroyed.
func NewResourceSet(device hal.Device, queue hal.Queue, img *image.ImageBuf, width, height float32) (*ResourceSet, error) {
	if img.IsEmpty() {
		return nil, fmt.Errorf("create texture: %w", image.ErrInvalidDimensions)
	}

	r := &ResourceSet{device: device, queue: queue}
	if err := r.create(img, width, height); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *ResourceSet) create(img *image.ImageBuf, width, height float32) error {
	vertices := quadVertexBytes()
	vertexBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texquad_vertices",
		Size:  uint64(len(vertices)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	r.vertexBuf = vertexBuf
	if err := r.queue.WriteBuffer(vertexBuf, 0, vertices); err != nil {
		return fmt.Errorf("upload vertex buffer: %w", err)
	}

	uniformBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texquad_uniforms",
		Size:  UniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	r.uniformBuf = uniformBuf
	initial := Uniforms{Width: width, Height: height}
	if err := r.queue.WriteBuffer(uniformBuf, 0, initial.Bytes()); err != nil {
		return fmt.Errorf("upload uniform buffer: %w", err)
	}

	if err := r.createTexture(img); err != nil {
		return err
	}

	sampler, err := r.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "texquad_sampler",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		LodMinClamp:  0,
		LodMaxClamp:  32,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	r.sampler = sampler
	return nil
}

// createTexture uploads img with its full mipmap chain.
func (r *ResourceSet) createTexture(img *image.ImageBuf) error {
	chain := image.GenerateMipmaps(img)
	r.width, r.height = img.Bounds()
	r.mipLevels = uint32(chain.NumLevels()) //nolint:gosec // at most 32 levels

	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: "texquad_texture",
		Size: hal.Extent3D{
			Width:              uint32(r.width),  //nolint:gosec // image dimensions are positive
			Height:             uint32(r.height), //nolint:gosec // image dimensions are positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: r.mipLevels,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create texture %dx%d: %w", r.width, r.height, err)
	}
	r.texture = tex

	for level := range chain.NumLevels() {
		mip := chain.Level(level)
		w, h := mip.Bounds()
		err := r.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  tex,
				MipLevel: uint32(level), //nolint:gosec // bounded by mipLevels
				Aspect:   gputypes.TextureAspectAll,
			},
			mip.Data(),
			&hal.ImageDataLayout{
				BytesPerRow:  uint32(mip.Stride()), //nolint:gosec // row bytes of a bounded image
				RowsPerImage: uint32(h),            //nolint:gosec // bounded image
			},
			&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}, //nolint:gosec // bounded image
		)
		if err != nil {
			return fmt.Errorf("upload texture level %d: %w", level, err)
		}
	}

	view, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "texquad_texture_view",
		Format:          gputypes.TextureFormatRGBA8Unorm,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   r.mipLevels,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create texture view: %w", err)
	}
	r.textureView = view

	slogger().Debug("gpu: texture uploaded", "width", r.width, "height", r.height, "mip_levels", r.mipLevels)
	return nil
}

// WriteTime updates only the time and deltaTime fields (bytes 8..16).
// Width and height stay as initialised.
func (r *ResourceSet) WriteTime(t, dt float32) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(t))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(dt))
	if err := r.queue.WriteBuffer(r.uniformBuf, timeOffset, buf[:]); err != nil {
		return fmt.Errorf("write uniforms: %w", err)
	}
	return nil
}

// VertexBuffer returns the quad vertex buffer.
func (r *ResourceSet) VertexBuffer() hal.Buffer { return r.vertexBuf }

// UniformBuffer returns the uniform buffer.
func (r *ResourceSet) UniformBuffer() hal.Buffer { return r.uniformBuf }

// TextureView returns a view over every mip level of the texture.
func (r *ResourceSet) TextureView() hal.TextureView { return r.textureView }

// Sampler returns the repeat/linear sampler.
func (r *ResourceSet) Sampler() hal.Sampler { return r.sampler }

// MipLevels returns the number of uploaded mip levels.
func (r *ResourceSet) MipLevels() uint32 { return r.mipLevels }

// TextureSize returns the texture dimensions of level 0.
func (r *ResourceSet) TextureSize() (width, height int) { return r.width, r.height }

// Destroy releases every resource in reverse creation order.
func (r *ResourceSet) Destroy() {
	if r.sampler != nil {
		r.device.DestroySampler(r.sampler)
		r.sampler = nil
	}
	if r.textureView != nil {
		r.device.DestroyTextureView(r.textureView)
		r.textureView = nil
	}
	if r.texture != nil {
		r.device.DestroyTexture(r.texture)
		r.texture = nil
	}
	if r.uniformBuf != nil {
		r.device.DestroyBuffer(r.uniformBuf)
		r.uniformBuf = nil
	}
	if r.vertexBuf != nil {
		r.device.DestroyBuffer(r.vertexBuf)
		r.vertexBuf = nil
	}
}
