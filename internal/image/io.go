package image

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrImageLoad wraps every failure to fetch or decode a texture source.
	ErrImageLoad = errors.New("image: load failed")

	// ErrEmptyData is returned when an in-memory image has no pixels.
	ErrEmptyData = errors.New("image: empty data")
)

// MaxImageBytes bounds how much data is read from a single source.
const MaxImageBytes = 64 << 20

// HTTPClient is used by LoadURL.
var HTTPClient = http.DefaultClient

// Load fetches and decodes src, which is either a file path or an http(s) URL.
func Load(ctx context.Context, src string) (*ImageBuf, error) {
	if isURL(src) {
		return LoadURL(ctx, src)
	}
	return LoadFile(src)
}

// LoadFile loads an image from the given file path, detecting the format
// from its content.
func LoadFile(path string) (*ImageBuf, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrImageLoad, path, err)
	}
	defer func() { _ = f.Close() }()

	img, err := Decode(io.LimitReader(f, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadURL downloads and decodes an image over HTTP.
func LoadURL(ctx context.Context, rawURL string) (*ImageBuf, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrImageLoad, err)
	}
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrImageLoad, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %s", ErrImageLoad, rawURL, resp.Status)
	}

	img, err := Decode(io.LimitReader(resp.Body, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	return img, nil
}

// Decode decodes an image from r using any registered format.
func Decode(r io.Reader) (*ImageBuf, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrImageLoad, err)
	}
	buf := FromStdImage(img)
	if buf.IsEmpty() {
		return nil, fmt.Errorf("%w: decode: %w", ErrImageLoad, ErrInvalidDimensions)
	}
	return buf, nil
}

func isURL(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
