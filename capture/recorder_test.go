package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestRecorderRecordsVideo(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	r := NewRecorder(WithClock(clock.Now))

	if err := r.Start(VideoConfig{Dir: dir}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.Recording() {
		t.Fatal("Recording() = false after Start")
	}
	for i := range 30 {
		shade := uint8(i * 8)
		r.AddFrame(solidFrame(32, 16, color.RGBA{R: shade, G: 64, B: 255 - shade, A: 255}), time.Duration(i)*33*time.Millisecond)
	}
	clock.Advance(time.Second)

	video, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	defer video.Remove()

	if r.Recording() {
		t.Error("Recording() = true after Stop")
	}
	if video.Frames != 30 {
		t.Errorf("Frames = %d, want 30", video.Frames)
	}
	if video.FPS != 30 {
		t.Errorf("FPS = %d, want 30", video.FPS)
	}
	if video.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", video.Duration)
	}
	if video.Width != 32 || video.Height != 16 {
		t.Errorf("size = %dx%d, want 32x16", video.Width, video.Height)
	}

	data, err := os.ReadFile(video.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Errorf("video header = %q, want RIFF....AVI ", data[:min(12, len(data))])
	}
	if !bytes.Contains(data, []byte{0xFF, 0xD8}) {
		t.Error("video contains no JPEG start-of-image marker")
	}

	// Only the finished video remains; the spool is gone.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("files in dir = %d, want 1", len(entries))
	}
}

func TestRecorderStopTwice(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.AddFrame(solidFrame(8, 8, color.RGBA{A: 255}), 0)

	video, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	defer video.Remove()

	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second Stop() error = %v, want ErrNotRecording", err)
	}
}

func TestRecorderStartTwice(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(VideoConfig{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRecording", err)
	}
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Stop() error = %v, want ErrNoFrames", err)
	}
}

func TestRecorderNoFramesCleansUp(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: dir}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("Stop() error = %v, want ErrNoFrames", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("files left in dir = %d, want 0", len(entries))
	}
}

func TestRecorderDropsFramesWhenIdle(t *testing.T) {
	r := NewRecorder()
	r.AddFrame(solidFrame(4, 4, color.RGBA{A: 255}), 0)
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop() error = %v, want ErrNotRecording", err)
	}
}

func TestRecorderDropsOutOfOrderFrames(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frame := solidFrame(8, 8, color.RGBA{G: 255, A: 255})
	r.AddFrame(frame, 100*time.Millisecond)
	r.AddFrame(frame, 50*time.Millisecond)
	r.AddFrame(frame, 100*time.Millisecond)
	r.AddFrame(frame, 150*time.Millisecond)

	video, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	defer video.Remove()
	if video.Frames != 3 {
		t.Errorf("Frames = %d, want 3", video.Frames)
	}
}

func TestRecorderScalesToConfiguredSize(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir(), Width: 16, Height: 8}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.AddFrame(solidFrame(64, 32, color.RGBA{R: 255, A: 255}), 0)
	r.AddFrame(solidFrame(16, 8, color.RGBA{B: 255, A: 255}), time.Millisecond)

	video, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	defer video.Remove()
	if video.Width != 16 || video.Height != 8 || video.Frames != 2 {
		t.Errorf("video = %dx%d with %d frames, want 16x8 with 2", video.Width, video.Height, video.Frames)
	}
}

func TestRecorderConcurrentStop(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir(), QueueSize: 2}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frame := solidFrame(8, 8, color.RGBA{A: 255})
	r.AddFrame(frame, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			r.AddFrame(frame, time.Duration(i)*time.Millisecond)
		}
	}()

	video, err := r.Stop(context.Background())
	wg.Wait()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	defer video.Remove()
	if video.Frames < 1 || video.Frames > 201 {
		t.Errorf("Frames = %d, want 1..201", video.Frames)
	}
}

func TestRecorderStopContextCancelled(t *testing.T) {
	r := NewRecorder()
	if err := r.Start(VideoConfig{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Stop(ctx)
	// The encoder may finish before the cancellation is observed.
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoFrames) {
		t.Errorf("Stop(cancelled) error = %v, want context.Canceled or ErrNoFrames", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after Stop")
	}
}

func TestFrameRate(t *testing.T) {
	tests := []struct {
		frames  int
		elapsed time.Duration
		def     int
		want    int
	}{
		{600, 10 * time.Second, 60, 60},
		{300, 10 * time.Second, 60, 30},
		{599, 10 * time.Second, 60, 60},
		{1, 10 * time.Second, 60, 1},
		{10, 0, 24, 24},
		{45, 1500 * time.Millisecond, 60, 30},
	}
	for _, tt := range tests {
		if got := frameRate(tt.frames, tt.elapsed, tt.def); got != tt.want {
			t.Errorf("frameRate(%d, %v, %d) = %d, want %d", tt.frames, tt.elapsed, tt.def, got, tt.want)
		}
	}
}

func TestVideoConfigDefaults(t *testing.T) {
	got := VideoConfig{Quality: 200}.withDefaults()
	if got.Quality != DefaultQuality || got.FPS != DefaultFPS || got.QueueSize != DefaultQueueSize {
		t.Errorf("withDefaults() = %+v, want default quality, fps and queue size", got)
	}
}
