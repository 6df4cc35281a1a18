package texquad

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texquad/internal/platform"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.fps != DefaultFPS {
		t.Errorf("fps = %d, want %d", o.fps, DefaultFPS)
	}
	if o.captureDuration != 10*time.Second {
		t.Errorf("captureDuration = %v, want 10s", o.captureDuration)
	}
	if o.logicalW != platform.DefaultWidth || o.logicalH != platform.DefaultHeight {
		t.Errorf("logical size = %dx%d, want 960x540", o.logicalW, o.logicalH)
	}
	if o.backendVariant != gputypes.BackendVulkan {
		t.Errorf("backend = %v, want Vulkan", o.backendVariant)
	}
	if _, ok := o.clock.(SystemClock); !ok {
		t.Errorf("clock = %T, want SystemClock", o.clock)
	}
}

func TestOptionsIgnoreInvalid(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{WithFPS(0), WithFPS(-3), WithLogicalSize(0, 10), WithClock(nil)} {
		opt(&o)
	}
	if o.fps != DefaultFPS || o.logicalW != platform.DefaultWidth || o.clock == nil {
		t.Errorf("invalid options changed defaults: fps=%d width=%d clock=%v", o.fps, o.logicalW, o.clock)
	}
}

func TestImageAndShaderOptionsOverride(t *testing.T) {
	o := defaultOptions()
	WithImageData(solidImage(2, 2))(&o)
	WithImage("photo.png")(&o)
	if o.imageData != nil || o.imageSource != "photo.png" {
		t.Errorf("WithImage did not replace image data")
	}
	WithShaderFile("a.wgsl")(&o)
	WithShaderSource("src")(&o)
	if o.shaderFile != "" || o.shaderSource != "src" {
		t.Errorf("WithShaderSource did not replace shader file")
	}
}

func TestWithWindowClearsHeadless(t *testing.T) {
	o := defaultOptions()
	WithHeadless(2)(&o)
	WithWindow(&fakeWindow{})(&o)
	if o.headless || o.window == nil {
		t.Errorf("WithWindow: headless = %v, window = %v", o.headless, o.window)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    gputypes.Backend
		wantErr bool
	}{
		{"vulkan", gputypes.BackendVulkan, false},
		{"VK", gputypes.BackendVulkan, false},
		{"noop", gputypes.BackendEmpty, false},
		{"empty", gputypes.BackendEmpty, false},
		{"dx12", gputypes.BackendEmpty, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
