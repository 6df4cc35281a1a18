// Command texquad renders an image on a fullscreen quad with a WGSL shader
// and saves the first seconds of output as a Motion-JPEG AVI.
//
// Usage:
//
//	texquad -image photo.jpg [-shader ripple.wgsl] [-out video.avi]
//	texquad -config texquad.yaml -headless -run 12s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/gogpu/texquad"
	"github.com/gogpu/texquad/capture"

	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "texquad:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		imageSrc = flag.String("image", "", "image file or http(s) URL")
		shader   = flag.String("shader", "", "WGSL shader file (default: built-in quad shader)")
		config   = flag.String("config", "", "YAML config file; flags override its values")
		output   = flag.String("out", "video.avi", "output video file")
		capDur   = flag.Duration("capture", texquad.DefaultCaptureDuration, "recording length, 0 disables capture")
		fps      = flag.Int("fps", texquad.DefaultFPS, "frame rate")
		headless = flag.Bool("headless", false, "render offscreen without a window")
		runFor   = flag.Duration("run", 0, "stop after this long, 0 runs until the window closes")
		backend  = flag.String("backend", "vulkan", "GPU backend: vulkan or noop")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	texquad.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var opts []texquad.Option
	if *config != "" {
		cfg, err := texquad.LoadConfig(*config)
		if err != nil {
			return err
		}
		opts = append(opts, cfg.Options()...)
		if cfg.Output != "" && !isSet("out") {
			*output = cfg.Output
		}
	}

	// Explicit flags win over the config file.
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "image":
			opts = append(opts, texquad.WithImage(*imageSrc))
		case "shader":
			opts = append(opts, texquad.WithShaderFile(*shader))
		case "capture":
			opts = append(opts, texquad.WithCaptureDuration(*capDur))
		case "fps":
			opts = append(opts, texquad.WithFPS(*fps))
		case "headless":
			if *headless {
				opts = append(opts, texquad.WithHeadless(1))
			}
		case "run":
			opts = append(opts, texquad.WithRunFor(*runFor))
		case "backend":
			b, err := texquad.ParseBackend(*backend)
			if err != nil {
				flagErr = err
				return
			}
			opts = append(opts, texquad.WithBackend(b))
		}
	})
	if flagErr != nil {
		return flagErr
	}

	saved := make(chan error, 1)
	opts = append(opts, texquad.WithOnVideo(func(v *capture.Video, err error) {
		if err != nil {
			saved <- fmt.Errorf("capture: %w", err)
			return
		}
		saved <- saveVideo(v, *output)
	}))

	app, err := texquad.New(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		return err
	}

	// Run delivers the video before returning when capture was started.
	select {
	case err := <-saved:
		return err
	default:
		return nil
	}
}

// saveVideo copies the recording to path with a progress bar and removes
// the temporary file.
func saveVideo(v *capture.Video, path string) error {
	size, err := v.Size()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	bar := progressbar.DefaultBytes(size, "saving "+path)
	if _, err := v.SaveTo(io.MultiWriter(f, bar)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	texquad.Logger().Info("video saved", "path", path, "frames", v.Frames, "fps", v.FPS, "duration", v.Duration)
	return v.Remove()
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
