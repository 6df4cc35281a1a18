package image

import "math/bits"

// MipmapChain holds pre-computed downscaled versions of an image.
//
// Level 0 is the original image. Each following level halves both
// dimensions (rounding down, never below 1) until a 1x1 level is reached,
// which is the full chain a GPU texture with linear mipmap filtering expects.
type MipmapChain struct {
	levels []*ImageBuf
}

// MipLevelCount returns the number of levels in a full chain for a
// width x height image.
func MipLevelCount(width, height int) int {
	maxDim := max(width, height)
	if maxDim <= 0 {
		return 0
	}
	return bits.Len(uint(maxDim))
}

// GenerateMipmaps creates a mipmap chain from src using a 2x2 box filter.
// The source becomes level 0 and is not copied. Returns nil for an empty src.
func GenerateMipmaps(src *ImageBuf) *MipmapChain {
	if src.IsEmpty() {
		return nil
	}

	n := MipLevelCount(src.Width(), src.Height())
	chain := &MipmapChain{levels: make([]*ImageBuf, n)}
	chain.levels[0] = src
	for i := 1; i < n; i++ {
		chain.levels[i] = downsample(chain.levels[i-1])
	}
	return chain
}

// downsample halves src with a 2x2 box filter. Odd edges reuse the last
// row or column.
func downsample(src *ImageBuf) *ImageBuf {
	w, h := max(1, src.width/2), max(1, src.height/2)
	dst, err := NewImageBuf(w, h)
	if err != nil {
		return nil
	}
	for y := range h {
		top := src.RowBytes(min(2*y, src.height-1))
		bottom := src.RowBytes(min(2*y+1, src.height-1))
		out := dst.RowBytes(y)
		for x := range w {
			l := 2 * x * BytesPerPixel
			r := min(2*x+1, src.width-1) * BytesPerPixel
			o := x * BytesPerPixel
			for c := range BytesPerPixel {
				sum := uint16(top[l+c]) + uint16(top[r+c]) + uint16(bottom[l+c]) + uint16(bottom[r+c])
				out[o+c] = byte(sum / 4)
			}
		}
	}
	return dst
}

// Level returns the mipmap at the specified level, or nil if out of range.
func (m *MipmapChain) Level(n int) *ImageBuf {
	if m == nil || n < 0 || n >= len(m.levels) {
		return nil
	}
	return m.levels[n]
}

// NumLevels returns the number of levels in the chain.
func (m *MipmapChain) NumLevels() int {
	if m == nil {
		return 0
	}
	return len(m.levels)
}
