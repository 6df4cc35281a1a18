package gpu

import (
	"errors"
	stdimage "image"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func newTestContext(t *testing.T, window NativeWindow) *Context {
	t.Helper()
	ctx, err := NewContext(ContextConfig{
		Backend:       noop.API{},
		Window:        window,
		Device:        DeviceOptions{Width: 32, Height: 18},
		Image:         testImage(t, 16, 16),
		LogicalWidth:  960,
		LogicalHeight: 540,
	})
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func uniformsOf(t *testing.T, ctx *Context) Uniforms {
	t.Helper()
	data := readBuffer(t, ctx.DeviceContext().Device(), ctx.Resources().UniformBuffer(), UniformSize)
	u, err := DecodeUniforms(data)
	if err != nil {
		t.Fatalf("DecodeUniforms() error = %v", err)
	}
	return u
}

func TestSchedulerStartsStopped(t *testing.T) {
	ctx := newTestContext(t, nil)
	s := ctx.Scheduler()

	if s.State() != Stopped {
		t.Fatalf("State() = %v, want %v", s.State(), Stopped)
	}
	if err := s.Tick(100 * time.Millisecond); err != nil {
		t.Fatalf("Tick() while stopped error = %v", err)
	}
	if s.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", s.Frames())
	}
	if u := uniformsOf(t, ctx); u.Time != 0 || u.DeltaTime != 0 {
		t.Errorf("uniforms after stopped tick = %+v, want zero time", u)
	}
}

func TestSchedulerTickSequence(t *testing.T) {
	ctx := newTestContext(t, nil)
	s := ctx.Scheduler()
	s.Start()

	ticks := []struct {
		at        time.Duration
		wantDelta time.Duration
	}{
		{16 * time.Millisecond, 16 * time.Millisecond},
		{33 * time.Millisecond, 17 * time.Millisecond},
		{50 * time.Millisecond, 17 * time.Millisecond},
		{1 * time.Second, 950 * time.Millisecond},
	}
	for i, tk := range ticks {
		if err := s.Tick(tk.at); err != nil {
			t.Fatalf("Tick(%v) error = %v", tk.at, err)
		}
		last := s.Last()
		if last.Timestamp != tk.at || last.Delta != tk.wantDelta {
			t.Errorf("tick %d: Last() = %+v, want {%v %v}", i, last, tk.at, tk.wantDelta)
		}
		u := uniformsOf(t, ctx)
		want := Uniforms{Width: 960, Height: 540, Time: millis(tk.at), DeltaTime: millis(tk.wantDelta)}
		if u != want {
			t.Errorf("tick %d: uniforms = %+v, want %+v", i, u, want)
		}
	}
	if s.Frames() != uint64(len(ticks)) {
		t.Errorf("Frames() = %d, want %d", s.Frames(), len(ticks))
	}
}

func TestSchedulerStopStart(t *testing.T) {
	ctx := newTestContext(t, nil)
	s := ctx.Scheduler()

	s.Start()
	if err := s.Tick(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if s.State() != Stopped {
		t.Fatalf("State() = %v, want stopped", s.State())
	}
	if err := s.Tick(20 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := s.Last().Timestamp; got != 10*time.Millisecond {
		t.Errorf("Last().Timestamp after stopped tick = %v, want 10ms", got)
	}

	s.Start()
	if err := s.Tick(30 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := s.Last().Delta; got != 20*time.Millisecond {
		t.Errorf("Last().Delta = %v, want 20ms", got)
	}
}

func TestSchedulerWindowed(t *testing.T) {
	ctx := newTestContext(t, fakeWindow{})
	s := ctx.Scheduler()
	s.Start()
	for i := 1; i <= 3; i++ {
		if err := s.Tick(time.Duration(i) * 16 * time.Millisecond); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if s.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", s.Frames())
	}
}

// notReadySurface never has an image available.
type notReadySurface struct{ *noop.Surface }

func (notReadySurface) AcquireTexture(hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	return nil, hal.ErrNotReady
}

func TestSchedulerSkipsWhenNotReady(t *testing.T) {
	ctx := newTestContext(t, nil)
	dc := ctx.DeviceContext()
	target := &SurfaceTarget{
		device:  dc.Device(),
		queue:   dc.Queue(),
		surface: notReadySurface{&noop.Surface{}},
		format:  dc.Format(),
		width:   32,
		height:  18,
	}
	s := NewScheduler(dc.Device(), dc.Queue(), target, ctx.Resources(), ctx.Binding(), ctx.Pipeline())
	s.Start()

	if err := s.Tick(16 * time.Millisecond); err != nil {
		t.Fatalf("Tick() error = %v, want nil for skipped frame", err)
	}
	if s.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", s.Frames())
	}
	if u := uniformsOf(t, ctx); u.Time != 16 {
		t.Errorf("uniform time = %v, want 16 even for a skipped frame", u.Time)
	}
}

// recordingDevice hands out encoders that record the render passes.
// With failEnd set, EndEncoding fails.
type recordingDevice struct {
	hal.Device
	passes   []*recordingPass
	failEnd  bool
	discards int
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, dev: d}, nil
}

type recordingEncoder struct {
	hal.CommandEncoder
	dev *recordingDevice
}

var errEndEncoding = errors.New("end encoding failed")

func (e *recordingEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.dev.failEnd {
		return nil, errEndEncoding
	}
	return e.CommandEncoder.EndEncoding()
}

func (e *recordingEncoder) DiscardEncoding() {
	e.dev.discards++
	e.CommandEncoder.DiscardEncoding()
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), desc: desc}
	e.dev.passes = append(e.dev.passes, p)
	return p
}

type recordingPass struct {
	hal.RenderPassEncoder
	desc         *hal.RenderPassDescriptor
	pipeline     hal.RenderPipeline
	vertexSlot   int
	groupIndex   int
	vertexCount  uint32
	instances    uint32
	draws, ended int
}

func (p *recordingPass) SetPipeline(pl hal.RenderPipeline) {
	p.pipeline = pl
	p.RenderPassEncoder.SetPipeline(pl)
}

func (p *recordingPass) SetVertexBuffer(slot uint32, buf hal.Buffer, offset uint64) {
	p.vertexSlot = int(slot)
	p.RenderPassEncoder.SetVertexBuffer(slot, buf, offset)
}

func (p *recordingPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.groupIndex = int(index)
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

func (p *recordingPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.draws++
	p.vertexCount = vertexCount
	p.instances = instanceCount
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *recordingPass) End() {
	p.ended++
	p.RenderPassEncoder.End()
}

func TestSchedulerRecordsQuadDraw(t *testing.T) {
	ctx := newTestContext(t, nil)
	dc := ctx.DeviceContext()
	dev := &recordingDevice{Device: dc.Device()}
	s := NewScheduler(dev, dc.Queue(), ctx.Target(), ctx.Resources(), ctx.Binding(), ctx.Pipeline())
	s.Start()

	if err := s.Tick(16 * time.Millisecond); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(dev.passes) != 1 {
		t.Fatalf("render passes = %d, want 1", len(dev.passes))
	}
	p := dev.passes[0]
	if p.draws != 1 || p.vertexCount != 6 || p.instances != 1 {
		t.Errorf("draws = %d (%d vertices, %d instances), want 1 (6, 1)", p.draws, p.vertexCount, p.instances)
	}
	if p.vertexSlot != 0 || p.groupIndex != 0 {
		t.Errorf("vertex slot %d, bind group %d, want 0 and 0", p.vertexSlot, p.groupIndex)
	}
	if p.pipeline != ctx.Pipeline().Raw() {
		t.Error("pass did not bind the quad pipeline")
	}
	if p.ended != 1 {
		t.Errorf("End() calls = %d, want 1", p.ended)
	}
	ca := p.desc.ColorAttachments
	if len(ca) != 1 {
		t.Fatalf("color attachments = %d, want 1", len(ca))
	}
	if ca[0].LoadOp != gputypes.LoadOpClear || ca[0].StoreOp != gputypes.StoreOpStore {
		t.Errorf("load/store = %v/%v, want clear/store", ca[0].LoadOp, ca[0].StoreOp)
	}
	if ca[0].ClearValue != (gputypes.Color{R: 0, G: 0, B: 0, A: 1}) {
		t.Errorf("ClearValue = %+v, want opaque black", ca[0].ClearValue)
	}
}

func TestSchedulerEndEncodingFailure(t *testing.T) {
	ctx := newTestContext(t, nil)
	dc := ctx.DeviceContext()
	dev := &recordingDevice{Device: dc.Device(), failEnd: true}
	s := NewScheduler(dev, dc.Queue(), ctx.Target(), ctx.Resources(), ctx.Binding(), ctx.Pipeline())
	s.Start()

	if err := s.Tick(16 * time.Millisecond); !errors.Is(err, errEndEncoding) {
		t.Fatalf("Tick() error = %v, want %v", err, errEndEncoding)
	}
	if dev.discards != 1 {
		t.Errorf("DiscardEncoding() calls = %d, want 1", dev.discards)
	}
	if s.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", s.Frames())
	}

	dev.failEnd = false
	if err := s.Tick(32 * time.Millisecond); err != nil {
		t.Fatalf("Tick() after recovery error = %v", err)
	}
	if s.Frames() != 1 || dev.discards != 1 {
		t.Errorf("Frames() = %d, discards = %d, want 1 and 1", s.Frames(), dev.discards)
	}
}

// presentFailTarget fails every Present.
type presentFailTarget struct{ Target }

var errPresent = errors.New("present failed")

func (presentFailTarget) Present(*TargetFrame) error { return errPresent }

func TestSchedulerPresentFailureNotCounted(t *testing.T) {
	ctx := newTestContext(t, nil)
	dc := ctx.DeviceContext()
	s := NewScheduler(dc.Device(), dc.Queue(), presentFailTarget{ctx.Target()}, ctx.Resources(), ctx.Binding(), ctx.Pipeline())
	defer s.Destroy()
	s.Start()

	for i := 1; i <= 2; i++ {
		if err := s.Tick(time.Duration(i) * 16 * time.Millisecond); !errors.Is(err, errPresent) {
			t.Fatalf("Tick() error = %v, want %v", err, errPresent)
		}
	}
	if s.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", s.Frames())
	}
}

func TestSchedulerClosed(t *testing.T) {
	ctx := newTestContext(t, nil)
	s := ctx.Scheduler()
	s.Start()
	if err := s.Tick(16 * time.Millisecond); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Tick(32 * time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("Tick() after Close error = %v, want %v", err, ErrClosed)
	}
	if err := s.SetFrameSink(&collectSink{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SetFrameSink() after Close error = %v, want %v", err, ErrClosed)
	}
	s.Start()
	if s.State() != Stopped {
		t.Errorf("State() after Close and Start = %v, want %v", s.State(), Stopped)
	}
	if s.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", s.Frames())
	}
}

// collectSink stores delivered frames.
type collectSink struct {
	mu     sync.Mutex
	frames []stdimage.Image
	at     []time.Duration
}

func (c *collectSink) AddFrame(img stdimage.Image, at time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, img)
	c.at = append(c.at, at)
}

func TestSchedulerFrameSink(t *testing.T) {
	ctx := newTestContext(t, fakeWindow{})
	dc := ctx.DeviceContext()
	dev := &recordingDevice{Device: dc.Device()}
	s := NewScheduler(dev, dc.Queue(), ctx.Target(), ctx.Resources(), ctx.Binding(), ctx.Pipeline())
	defer s.Destroy()
	s.Start()

	sink := &collectSink{}
	if err := s.SetFrameSink(sink); err != nil {
		t.Fatalf("SetFrameSink() error = %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.Tick(time.Duration(i) * 16 * time.Millisecond); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if len(sink.frames) != 3 {
		t.Fatalf("sink frames = %d, want 3", len(sink.frames))
	}
	if got := sink.frames[0].Bounds(); got != stdimage.Rect(0, 0, 32, 18) {
		t.Errorf("frame bounds = %v, want 32x18", got)
	}
	if sink.at[2] != 48*time.Millisecond {
		t.Errorf("third frame at = %v, want 48ms", sink.at[2])
	}
	// Each tick records the presented pass and the mirrored capture pass.
	if len(dev.passes) != 6 {
		t.Errorf("render passes = %d, want 6", len(dev.passes))
	}

	if err := s.SetFrameSink(nil); err != nil {
		t.Fatalf("SetFrameSink(nil) error = %v", err)
	}
	if err := s.Tick(64 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 3 {
		t.Errorf("sink frames after detach = %d, want 3", len(sink.frames))
	}
	if len(dev.passes) != 7 {
		t.Errorf("render passes after detach = %d, want 7", len(dev.passes))
	}
}

func TestStateString(t *testing.T) {
	if Running.String() != "running" || Stopped.String() != "stopped" {
		t.Errorf("State strings = %q/%q, want running/stopped", Running, Stopped)
	}
}
