package texquad

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshaling ("10s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the file form of the app options. Zero fields keep defaults.
//
//	image: https://example.com/photo.jpg
//	shader: ripple.wgsl
//	backend: vulkan
//	fps: 60
//	capture: 10s
//	run: 0s
//	headless: false
//	output: video.avi
//	window:
//	  width: 960
//	  height: 540
type Config struct {
	Image    string   `yaml:"image"`
	Shader   string   `yaml:"shader"`
	Backend  string   `yaml:"backend"`
	FPS      int      `yaml:"fps"`
	Capture  Duration `yaml:"capture"`
	Run      Duration `yaml:"run"`
	Headless bool     `yaml:"headless"`
	Output   string   `yaml:"output"`
	Window   struct {
		Width  int     `yaml:"width"`
		Height int     `yaml:"height"`
		Scale  float64 `yaml:"scale"`
	} `yaml:"window"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data and validates it.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("parsing config file: negative fps %d", cfg.FPS)
	}
	if cfg.Capture < 0 || cfg.Run < 0 {
		return nil, fmt.Errorf("parsing config file: negative duration")
	}
	if cfg.Backend != "" {
		if _, err := ParseBackend(cfg.Backend); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	return &cfg, nil
}

// Options converts the file values into app options. Only non-zero fields
// produce an option, so the result can be followed by flag overrides.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Image != "" {
		opts = append(opts, WithImage(c.Image))
	}
	if c.Shader != "" {
		opts = append(opts, WithShaderFile(c.Shader))
	}
	if c.Backend != "" {
		b, _ := ParseBackend(c.Backend) // validated by ParseConfig
		opts = append(opts, WithBackend(b))
	}
	if c.FPS > 0 {
		opts = append(opts, WithFPS(c.FPS))
	}
	if c.Capture > 0 {
		opts = append(opts, WithCaptureDuration(c.Capture.Duration()))
	}
	if c.Run > 0 {
		opts = append(opts, WithRunFor(c.Run.Duration()))
	}
	if c.Headless {
		opts = append(opts, WithHeadless(c.Window.Scale))
	}
	if c.Window.Width > 0 && c.Window.Height > 0 {
		opts = append(opts, WithLogicalSize(c.Window.Width, c.Window.Height))
	}
	return opts
}
