// Package capture records rendered frames into a Motion-JPEG AVI file.
//
// A Recorder session is opened with Start, fed with AddFrame from the render
// loop and closed with Stop, which returns the finished Video. Frames are
// JPEG-encoded on a background goroutine and spooled to disk; Stop derives
// the container frame rate from the number of frames and the elapsed time so
// playback length matches recording length.
package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/icza/mjpeg"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by Start to zero VideoConfig fields.
const (
	DefaultQuality   = 85
	DefaultQueueSize = 8
	DefaultFPS       = 60
)

// VideoConfig configures one recording session.
type VideoConfig struct {
	// Width and Height of the output video. Zero takes the size of the
	// first frame. Frames of another size are scaled to fit.
	Width, Height int

	// Quality is the JPEG quality, 1 to 100.
	Quality int

	// FPS is the frame rate written when the elapsed time is zero.
	FPS int

	// Dir holds the spool and output files. Empty uses os.TempDir.
	Dir string

	// QueueSize bounds the frames waiting to be encoded. AddFrame blocks
	// while the queue is full.
	QueueSize int
}

func (c VideoConfig) withDefaults() VideoConfig {
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Recorder captures frames into a video. It is safe for concurrent use:
// the render loop calls AddFrame while a timer goroutine calls Stop.
type Recorder struct {
	mu      sync.Mutex
	session *session
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the time source used to measure session length.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates an idle Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is one Start..Stop recording. The encoder goroutine owns every
// field below frames until g.Wait returns.
type session struct {
	cfg     VideoConfig
	started time.Time
	frames  chan image.Image
	g       errgroup.Group

	spool   *os.File
	sizes   []int64
	width   int
	height  int
	dropped int

	// guarded by Recorder.mu
	last   time.Duration
	queued int
}

// Start opens a new session. Returns ErrAlreadyRecording if one is active.
func (r *Recorder) Start(cfg VideoConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return ErrAlreadyRecording
	}

	cfg = cfg.withDefaults()
	spool, err := os.CreateTemp(cfg.Dir, "texquad-*.mjpg")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}

	s := &session{
		cfg:     cfg,
		started: r.now(),
		frames:  make(chan image.Image, cfg.QueueSize),
		spool:   spool,
		width:   cfg.Width,
		height:  cfg.Height,
	}
	s.g.Go(s.encodeLoop)
	r.session = s

	slogger().Info("capture: recording started", "spool", spool.Name())
	return nil
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// AddFrame queues img for encoding. at is the frame's timestamp on the
// render clock. Frames arriving while no session is active, or older than
// the previous frame, are dropped.
func (r *Recorder) AddFrame(img image.Image, at time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	if s == nil {
		return
	}
	if s.queued > 0 && at < s.last {
		slogger().Debug("capture: out of order frame dropped", "at", at, "last", s.last)
		return
	}
	s.last = at
	s.queued++
	s.frames <- img
}

// Stop ends the session, waits for queued frames to be encoded and writes
// the AVI container. The session is closed even when an error is returned.
func (r *Recorder) Stop(ctx context.Context) (*Video, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s == nil {
		return nil, ErrNotRecording
	}

	elapsed := r.now().Sub(s.started)
	close(s.frames)

	done := make(chan error, 1)
	go func() { done <- s.g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			s.discard()
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			<-done
			s.discard()
		}()
		return nil, fmt.Errorf("stop recording: %w", ctx.Err())
	}

	video, err := s.finish(elapsed)
	s.discard()
	if err != nil {
		return nil, err
	}
	slogger().Info("capture: recording finished",
		"path", video.Path,
		"frames", video.Frames,
		"fps", video.FPS,
		"duration", video.Duration)
	return video, nil
}

// encodeLoop drains the queue until it is closed. After the first failure
// it keeps draining so AddFrame never blocks on a dead consumer.
func (s *session) encodeLoop() error {
	var (
		firstErr error
		buf      bytes.Buffer
	)
	for img := range s.frames {
		if firstErr != nil {
			s.dropped++
			continue
		}
		buf.Reset()
		if err := s.encode(&buf, img); err != nil {
			firstErr = fmt.Errorf("encode frame %d: %w", len(s.sizes), err)
			continue
		}
		if err := s.spoolFrame(buf.Bytes()); err != nil {
			firstErr = fmt.Errorf("spool frame %d: %w", len(s.sizes), err)
		}
	}
	if s.dropped > 0 {
		slogger().Warn("capture: frames dropped after error", "dropped", s.dropped)
	}
	return firstErr
}

// encode writes img as JPEG, scaled to the session size.
func (s *session) encode(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if s.width == 0 || s.height == 0 {
		s.width, s.height = b.Dx(), b.Dy()
	}
	if b.Dx() != s.width || b.Dy() != s.height {
		scaled := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		img = scaled
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: s.cfg.Quality})
}

// spoolFrame stores one JPEG as a length-prefixed record in the spool.
func (s *session) spoolFrame(data []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(data))) //nolint:gosec // a JPEG frame is far below 4 GiB
	if _, err := s.spool.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.spool.Write(data); err != nil {
		return err
	}
	s.sizes = append(s.sizes, int64(len(data)))
	return nil
}

// finish replays the spool into an AVI at the measured frame rate.
func (s *session) finish(elapsed time.Duration) (*Video, error) {
	n := len(s.sizes)
	if n == 0 {
		return nil, ErrNoFrames
	}
	fps := frameRate(n, elapsed, s.cfg.FPS)

	out, err := os.CreateTemp(s.cfg.Dir, "texquad-*.avi")
	if err != nil {
		return nil, fmt.Errorf("create video file: %w", err)
	}
	path := out.Name()
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("create video file: %w", err)
	}

	aw, err := mjpeg.New(path, int32(s.width), int32(s.height), int32(fps)) //nolint:gosec // frame sizes and rates fit in int32
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open avi writer: %w", err)
	}
	if err := s.replay(aw); err != nil {
		_ = aw.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := aw.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("finalize avi: %w", err)
	}

	return &Video{
		Path:     path,
		Frames:   n,
		Duration: elapsed,
		FPS:      fps,
		Width:    s.width,
		Height:   s.height,
	}, nil
}

func (s *session) replay(aw mjpeg.AviWriter) error {
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}
	var hdr [4]byte
	for i, size := range s.sizes {
		if _, err := io.ReadFull(s.spool, hdr[:]); err != nil {
			return fmt.Errorf("read frame %d header: %w", i, err)
		}
		if got := int64(binary.LittleEndian.Uint32(hdr[:])); got != size {
			return fmt.Errorf("frame %d: spool size %d, want %d", i, got, size)
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(s.spool, frame); err != nil {
			return fmt.Errorf("read frame %d: %w", i, err)
		}
		if err := aw.AddFrame(frame); err != nil {
			return fmt.Errorf("add frame %d: %w", i, err)
		}
	}
	return nil
}

// discard closes and removes the spool file.
func (s *session) discard() {
	name := s.spool.Name()
	_ = s.spool.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		slogger().Warn("capture: remove spool", "path", name, "err", err)
	}
}

// frameRate is frames per second of elapsed, rounded, at least 1.
// A zero elapsed time falls back to def.
func frameRate(frames int, elapsed time.Duration, def int) int {
	if elapsed <= 0 {
		return def
	}
	fps := int(math.Round(float64(frames) / elapsed.Seconds()))
	return max(fps, 1)
}
