package texquad

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/texquad/capture"
	"github.com/gogpu/texquad/internal/gpu"
	"github.com/gogpu/texquad/internal/image"
	"github.com/gogpu/texquad/internal/platform"
)

// App renders the textured quad and records its first seconds.
//
// App owns the GPU context, the recorder and the capture timer. Run drives
// frames on the calling goroutine; with a glfw window that must be the main
// thread.
type App struct {
	opts options

	mu      sync.Mutex
	closed  bool
	running bool
	ran     bool

	gctx       *gpu.Context
	window     Window
	ownsWindow bool

	recorder  *capture.Recorder
	captureWG sync.WaitGroup
	timer     Timer
	capturing atomic.Bool // recording session open
	sinkOn    bool        // scheduler delivers frames to the recorder
	origin    time.Time
}

// New validates the options and returns an App. No GPU work happens until
// Run.
func New(opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.imageSource == "" && o.imageData == nil {
		return nil, ErrNoImage
	}
	return &App{
		opts:     o,
		recorder: capture.NewRecorder(capture.WithClock(o.clock.Now)),
	}, nil
}

// Run builds the GPU context, then renders until ctx is cancelled, the
// window closes or the WithRunFor duration elapses. Setup failures are
// returned before any frame is drawn. Run returns nil on a clean shutdown.
//
// A capture in progress when Run returns is stopped and delivered first.
// An App runs once: after a Run that reached the frame loop, later calls
// return ErrAlreadyRan. A Run that failed during setup may be retried.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.running:
		a.mu.Unlock()
		return ErrRunning
	case a.ran:
		a.mu.Unlock()
		return ErrAlreadyRan
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.gctx == nil {
		if err := a.setup(ctx); err != nil {
			return err
		}
	}
	a.mu.Lock()
	a.ran = true
	a.mu.Unlock()
	return a.loop(ctx)
}

// setup loads the inputs and builds the GPU context. Every error is fatal.
func (a *App) setup(ctx context.Context) error {
	o := &a.opts

	img, err := a.loadImage(ctx)
	if err != nil {
		return err
	}
	source, err := a.loadShader()
	if err != nil {
		return err
	}

	if err := a.openWindow(); err != nil {
		return err
	}
	var provider gpucontext.WindowProvider = platform.NewHeadless(o.logicalW, o.logicalH, o.headlessScale)
	var window gpu.NativeWindow
	if a.window != nil {
		provider, window = a.window, a.window
	}
	pw, ph := platform.PhysicalSize(provider)
	if fb, ok := provider.(interface{ FramebufferSize() (uint32, uint32) }); ok {
		pw, ph = fb.FramebufferSize()
	}

	device := o.device
	device.Width, device.Height = pw, ph
	lw, lh := provider.Size()

	gctx, err := gpu.NewContext(gpu.ContextConfig{
		Backend:       a.backend(),
		Window:        window,
		Device:        device,
		Image:         img,
		ShaderSource:  source,
		LogicalWidth:  float32(lw),
		LogicalHeight: float32(lh),
	})
	if err != nil {
		a.closeWindow()
		return fmt.Errorf("setup: %w", err)
	}
	a.mu.Lock()
	a.gctx = gctx
	a.mu.Unlock()

	info := gctx.AdapterInfo()
	Logger().Info("texquad: ready",
		"adapter", info.Name,
		"format", gctx.DeviceContext().Format(),
		"size", fmt.Sprintf("%dx%d", pw, ph),
		"headless", window == nil)
	return nil
}

func (a *App) loadImage(ctx context.Context) (*image.ImageBuf, error) {
	if a.opts.imageData != nil {
		buf := image.FromStdImage(a.opts.imageData)
		if buf.IsEmpty() {
			return nil, fmt.Errorf("load image: %w", image.ErrEmptyData)
		}
		return buf, nil
	}
	buf, err := image.Load(ctx, a.opts.imageSource)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	Logger().Debug("texquad: image loaded", "src", a.opts.imageSource, "width", buf.Width(), "height", buf.Height())
	return buf, nil
}

func (a *App) loadShader() (string, error) {
	if a.opts.shaderFile == "" {
		return a.opts.shaderSource, nil
	}
	data, err := os.ReadFile(a.opts.shaderFile)
	if err != nil {
		return "", fmt.Errorf("load shader: %w", err)
	}
	return string(data), nil
}

func (a *App) openWindow() error {
	switch {
	case a.opts.window != nil:
		a.window = a.opts.window
	case a.opts.headless:
	default:
		w, err := platform.NewWindow(a.opts.title, a.opts.logicalW, a.opts.logicalH)
		if err != nil {
			return fmt.Errorf("open window: %w", err)
		}
		a.window, a.ownsWindow = w, true
	}
	return nil
}

func (a *App) closeWindow() {
	if a.ownsWindow {
		if d, ok := a.window.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	a.window, a.ownsWindow = nil, false
}

func (a *App) backend() hal.Backend {
	if a.opts.backend != nil {
		return a.opts.backend
	}
	b, ok := hal.GetBackend(a.opts.backendVariant)
	if !ok {
		return nil
	}
	return b
}

// loop is the frame driver.
func (a *App) loop(ctx context.Context) error {
	o := &a.opts
	sched := a.gctx.Scheduler()
	sched.Start()
	defer sched.Stop()

	a.origin = o.clock.Now()
	ticker := o.clock.NewTicker(time.Second / time.Duration(o.fps))
	defer ticker.Stop()
	defer a.finishCapture()

	a.startCapture()
	a.frame(a.origin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if a.window != nil {
				a.window.PollEvents()
				if a.window.ShouldClose() {
					Logger().Info("texquad: window closed")
					return nil
				}
			}
			a.frame(now)
			if o.runFor > 0 && now.Sub(a.origin) >= o.runFor {
				return nil
			}
		}
	}
}

// frame renders one tick. Per-frame errors are logged and the loop goes on;
// the next deltaTime absorbs the gap.
func (a *App) frame(now time.Time) {
	sched := a.gctx.Scheduler()
	if a.sinkOn && !a.capturing.Load() {
		a.detachSink()
	}
	if err := sched.Tick(now.Sub(a.origin)); err != nil {
		Logger().Warn("texquad: frame failed", "frame", sched.Frames(), "err", err)
	}
}

// startCapture opens a recording session and arms the stop timer. It runs
// before the first frame so frame zero is recorded.
func (a *App) startCapture() {
	o := &a.opts
	if o.captureDuration <= 0 {
		return
	}
	cfg := o.videoConfig
	if cfg.FPS == 0 {
		cfg.FPS = o.fps
	}
	if err := a.recorder.Start(cfg); err != nil {
		Logger().Warn("texquad: capture not started", "err", err)
		return
	}
	if err := a.gctx.Scheduler().SetFrameSink(a.recorder); err != nil {
		Logger().Warn("texquad: capture not started", "err", err)
		a.deliver(a.recorder.Stop(context.Background()))
		return
	}
	a.sinkOn = true
	a.capturing.Store(true)
	a.captureWG.Add(1)
	a.timer = o.clock.AfterFunc(o.captureDuration, func() {
		defer a.captureWG.Done()
		a.stopCapture()
	})
	Logger().Info("texquad: capture started", "duration", o.captureDuration)
}

// stopCapture ends the session and hands the video to the callback. It
// runs on the timer goroutine and touches only the recorder.
func (a *App) stopCapture() {
	a.capturing.Store(false)
	a.deliver(a.recorder.Stop(context.Background()))
}

// finishCapture stops a session the timer has not ended yet, waits for the
// timer callback and detaches the frame sink.
func (a *App) finishCapture() {
	if a.timer != nil {
		if a.timer.Stop() {
			a.stopCapture()
			a.captureWG.Done()
		}
		a.timer = nil
	}
	a.captureWG.Wait()
	if a.sinkOn {
		a.detachSink()
	}
}

func (a *App) detachSink() {
	if err := a.gctx.Scheduler().SetFrameSink(nil); err != nil {
		Logger().Warn("texquad: detach frame sink", "err", err)
	}
	a.sinkOn = false
}

func (a *App) deliver(video *capture.Video, err error) {
	if a.opts.onVideo != nil {
		a.opts.onVideo(video, err)
		return
	}
	switch {
	case errors.Is(err, capture.ErrNoFrames):
		Logger().Warn("texquad: capture recorded no frames")
	case err != nil:
		Logger().Warn("texquad: capture failed", "err", err)
	default:
		Logger().Info("texquad: video ready", "path", video.Path, "frames", video.Frames, "fps", video.FPS)
	}
}

// GPUContext is the device bundle built by Run. It implements
// gpucontext.DeviceProvider.
type GPUContext = gpu.Context

// Context returns the GPU context, nil before Run or after Close.
func (a *App) Context() *GPUContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gctx
}

// Close releases the GPU context and the window the app created. Safe to
// call more than once. It must not be called while Run is active.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	if a.gctx != nil {
		err = a.gctx.Close()
		a.gctx = nil
	}
	a.closeWindow()
	return err
}
