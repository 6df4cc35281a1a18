// Package image holds the CPU-side texture source for texquad: an RGBA8
// pixel buffer, decoders for the supported file formats and the mipmap
// chain uploaded to the GPU.
package image

import (
	"errors"
	"image"
	"image/color"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Common errors for image operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrOutOfBounds is returned when pixel coordinates are outside image bounds.
	ErrOutOfBounds = errors.New("image: coordinates out of bounds")
)

// ImageBuf is a tightly packed, non-premultiplied RGBA8 pixel buffer.
//
// The layout matches what the GPU expects for an RGBA8Unorm texture upload:
// rows are Stride() bytes apart and Stride() == Width()*4.
type ImageBuf struct {
	data   []byte
	width  int
	height int
	stride int
}

// NewImageBuf creates a zeroed buffer of the given dimensions.
func NewImageBuf(width, height int) (*ImageBuf, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	stride := width * BytesPerPixel
	return &ImageBuf{
		data:   make([]byte, stride*height),
		width:  width,
		height: height,
		stride: stride,
	}, nil
}

// Width returns the image width in pixels.
func (b *ImageBuf) Width() int { return b.width }

// Height returns the image height in pixels.
func (b *ImageBuf) Height() int { return b.height }

// Stride returns the number of bytes per row.
func (b *ImageBuf) Stride() int { return b.stride }

// Bounds returns the image dimensions as (width, height).
func (b *ImageBuf) Bounds() (int, int) { return b.width, b.height }

// Data returns the raw pixel data slice.
func (b *ImageBuf) Data() []byte { return b.data }

// ByteSize returns the total size of the image data in bytes.
func (b *ImageBuf) ByteSize() int { return len(b.data) }

// IsEmpty reports whether the buffer has no pixels.
func (b *ImageBuf) IsEmpty() bool {
	return b == nil || b.width == 0 || b.height == 0
}

// RowBytes returns the pixel data for row y, or nil if y is out of bounds.
func (b *ImageBuf) RowBytes(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	start := y * b.stride
	return b.data[start : start+b.width*BytesPerPixel]
}

// PixelOffset returns the byte offset of pixel (x, y), or -1 when out of bounds.
func (b *ImageBuf) PixelOffset(x, y int) int {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return -1
	}
	return y*b.stride + x*BytesPerPixel
}

// GetRGBA returns the color at (x, y). Out of bounds reads return zeros.
func (b *ImageBuf) GetRGBA(x, y int) (r, g, bl, a uint8) {
	off := b.PixelOffset(x, y)
	if off < 0 {
		return 0, 0, 0, 0
	}
	p := b.data[off : off+BytesPerPixel]
	return p[0], p[1], p[2], p[3]
}

// SetRGBA sets the color at (x, y).
func (b *ImageBuf) SetRGBA(x, y int, r, g, bl, a uint8) error {
	off := b.PixelOffset(x, y)
	if off < 0 {
		return ErrOutOfBounds
	}
	b.data[off] = r
	b.data[off+1] = g
	b.data[off+2] = bl
	b.data[off+3] = a
	return nil
}

// FromStdImage converts any image.Image to an RGBA8 buffer.
func FromStdImage(img image.Image) *ImageBuf {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	buf, err := NewImageBuf(width, height)
	if err != nil {
		return &ImageBuf{}
	}

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := range height {
			start := nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(buf.RowBytes(y), nrgba.Pix[start:start+width*BytesPerPixel])
		}
		return buf
	}

	for y := range height {
		for x := range width {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			_ = buf.SetRGBA(x, y, c.R, c.G, c.B, c.A)
		}
	}
	return buf
}
