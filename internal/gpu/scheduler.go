package gpu

import (
	"fmt"
	stdimage "image"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// Stopped ignores ticks. A new Scheduler starts here.
	Stopped State = iota
	// Running renders a frame per tick.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Frame is the timing of one tick.
type Frame struct {
	// Timestamp is the time since the driver's origin.
	Timestamp time.Duration
	// Delta is Timestamp minus the previous tick's Timestamp.
	Delta time.Duration
}

// FrameSink receives a CPU copy of every rendered frame.
type FrameSink interface {
	AddFrame(img stdimage.Image, at time.Duration)
}

// clearColor is opaque black.
var clearColor = gputypes.Color{R: 0, G: 0, B: 0, A: 1}

// inflight is a submitted command buffer not yet known to be complete.
type inflight struct {
	index uint64
	cmd   hal.CommandBuffer
}

// Scheduler records and submits one quad draw per Tick. It is driven by
// the caller and never spawns goroutines. Tick must be called from a single
// goroutine; Start, Stop and State may be called from any goroutine.
type Scheduler struct {
	device   hal.Device
	queue    hal.Queue
	target   Target
	res      *ResourceSet
	binding  *BindingContract
	pipeline *Pipeline

	state     atomic.Int32
	destroyed atomic.Bool
	previous  time.Duration
	last      Frame
	frames    uint64

	sink     FrameSink
	readback *Readback

	pending []inflight
}

// NewScheduler wires the per-frame loop to already built resources.
// The scheduler does not own them.
func NewScheduler(device hal.Device, queue hal.Queue, target Target, res *ResourceSet, binding *BindingContract, pipeline *Pipeline) *Scheduler {
	return &Scheduler{
		device:   device,
		queue:    queue,
		target:   target,
		res:      res,
		binding:  binding,
		pipeline: pipeline,
	}
}

// Start enters Running. It does nothing after Destroy.
func (s *Scheduler) Start() {
	if s.destroyed.Load() {
		return
	}
	if State(s.state.Swap(int32(Running))) != Running {
		slogger().Debug("gpu: scheduler started")
	}
}

// Stop enters Stopped. Later ticks are no-ops until Start.
func (s *Scheduler) Stop() {
	if State(s.state.Swap(int32(Stopped))) != Stopped {
		slogger().Debug("gpu: scheduler stopped", "frames", s.frames)
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Last returns the timing of the most recent rendered tick.
func (s *Scheduler) Last() Frame { return s.last }

// Frames returns the number of frames presented.
func (s *Scheduler) Frames() uint64 { return s.frames }

// SetFrameSink attaches sink so every later frame is also rendered into a
// readback texture and delivered to it. A nil sink detaches and frees the
// readback resources.
func (s *Scheduler) SetFrameSink(sink FrameSink) error {
	if sink == nil {
		s.sink = nil
		if s.readback != nil {
			s.waitAll()
			s.readback.Destroy()
			s.readback = nil
		}
		return nil
	}
	if s.destroyed.Load() {
		return ErrClosed
	}
	if s.readback == nil {
		w, h := s.target.Size()
		rb, err := NewReadback(s.device, s.target.Format(), w, h)
		if err != nil {
			return err
		}
		s.readback = rb
	}
	s.sink = sink
	return nil
}

// Tick renders one frame at timestamp t. A tick while Stopped does nothing.
// When the target has no image ready the frame is skipped and nil returned;
// time still advances so the next Delta absorbs the gap. After Destroy it
// returns ErrClosed.
func (s *Scheduler) Tick(t time.Duration) error {
	if s.destroyed.Load() {
		return ErrClosed
	}
	if s.State() != Running {
		return nil
	}

	frame := Frame{Timestamp: t, Delta: t - s.previous}
	s.previous = t
	s.last = frame

	if err := s.res.WriteTime(millis(frame.Timestamp), millis(frame.Delta)); err != nil {
		return err
	}

	acquired, err := s.target.Acquire()
	if err != nil {
		return err
	}
	if acquired == nil {
		slogger().Debug("gpu: no image ready, frame skipped", "t", t)
		return nil
	}

	index, err := s.encodeSubmit(acquired.View)
	if err != nil {
		s.target.Discard(acquired)
		return err
	}

	if err := s.target.Present(acquired); err != nil {
		return err
	}
	s.frames++
	s.reclaim()

	if s.sink != nil {
		pixels, err := s.readback.Read()
		if err != nil {
			return fmt.Errorf("read frame %d: %w", index, err)
		}
		if pixels != nil {
			s.sink.AddFrame(pixels, t)
		}
	}
	return nil
}

// encodeSubmit records the quad pass into view, plus the mirrored pass and
// copy when a sink is attached, and submits the command buffer.
func (s *Scheduler) encodeSubmit(view hal.TextureView) (uint64, error) {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "texquad_frame_encoder",
	})
	if err != nil {
		return 0, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("texquad_frame"); err != nil {
		return 0, fmt.Errorf("begin encoding: %w", err)
	}

	s.recordPass(encoder, view)
	if s.sink != nil {
		s.recordPass(encoder, s.readback.View())
		s.readback.Record(encoder)
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return 0, fmt.Errorf("end encoding: %w", err)
	}
	index, err := s.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		s.device.FreeCommandBuffer(cmdBuf)
		return 0, fmt.Errorf("submit: %w", err)
	}
	s.pending = append(s.pending, inflight{index: index, cmd: cmdBuf})
	return index, nil
}

// recordPass clears view to opaque black and draws the quad.
func (s *Scheduler) recordPass(encoder hal.CommandEncoder, view hal.TextureView) {
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "texquad_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearColor,
		}},
	})
	rp.SetPipeline(s.pipeline.Raw())
	rp.SetVertexBuffer(0, s.res.VertexBuffer(), 0)
	rp.SetBindGroup(0, s.binding.Group(), nil)
	rp.Draw(uint32(QuadVertexCount), 1, 0, 0)
	rp.End()
}

// reclaim frees command buffers whose submission the queue reports done.
func (s *Scheduler) reclaim() {
	done := s.queue.PollCompleted()
	n := 0
	for _, f := range s.pending {
		if f.index <= done {
			s.device.FreeCommandBuffer(f.cmd)
			continue
		}
		s.pending[n] = f
		n++
	}
	s.pending = s.pending[:n]
}

// waitAll blocks until the device is idle and frees every pending buffer.
func (s *Scheduler) waitAll() {
	if len(s.pending) == 0 {
		return
	}
	if err := s.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle failed", "err", err)
	}
	for _, f := range s.pending {
		s.device.FreeCommandBuffer(f.cmd)
	}
	s.pending = s.pending[:0]
}

// Destroy stops the scheduler, waits for in-flight frames and frees the
// readback resources. The shared resources are left to their owner.
func (s *Scheduler) Destroy() {
	s.Stop()
	s.destroyed.Store(true)
	s.waitAll()
	if s.readback != nil {
		s.readback.Destroy()
		s.readback = nil
	}
	s.sink = nil
}

// millis converts d to float32 milliseconds.
func millis(d time.Duration) float32 {
	return float32(float64(d) / float64(time.Millisecond))
}
