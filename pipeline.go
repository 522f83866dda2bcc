package toys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/toys/gpucore"
)

// State is the lifecycle state of a Pipeline.
type State int

// Pipeline states.
const (
	// Idle: no buffers or kernels are ready. Reached after Teardown.
	Idle State = iota

	// Ready: setup is complete and no frame has been issued since the
	// pipeline was created or resized.
	Ready

	// Running: at least one frame has been issued.
	Running
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NoFrameIndex disables the per-pass frame index argument.
const NoFrameIndex = -1

// PipelineConfig describes one toy's frame: which kernels to dispatch over
// how many work-items, and which buffer holds the displayed image.
type PipelineConfig struct {
	// Queue is the index of the session queue used for every operation.
	Queue int

	// Accumulate is dispatched Budget.Passes() times per frame.
	Accumulate *Kernel

	// FrameIndexSlot is the Accumulate argument that receives the sample
	// index, incremented after every pass. NoFrameIndex disables it.
	FrameIndexSlot int

	// Extent returns the number of work-items of one Accumulate pass
	// before rounding to the work-group size.
	Extent func() int

	// PostProcess, when set, is dispatched once after the passes, e.g. to
	// tone map the accumulator into the display buffer.
	PostProcess *Kernel

	// PostExtent returns the PostProcess work-items. Defaults to Extent.
	PostExtent func() int

	// Display is read back at the end of every frame.
	Display *Buffer

	// Samples returns the number of samples one pass produces, normally
	// the pixel count. Defaults to Extent.
	Samples func() int

	// Mirrors are uploaded before the passes when dirty.
	Mirrors []*Mirror

	// Budget tunes the pass-count controller.
	Budget BudgetConfig

	// Caption formats the frame caption. Defaults to ProgressiveCaption.
	Caption func(FrameStats) string

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// FrameStats describes a completed frame.
type FrameStats struct {
	// Frame counts frames since the pipeline was created, from 1.
	Frame uint64

	// Passes is the number of Accumulate dispatches issued.
	Passes int

	// NextPasses is the pass count chosen for the next frame.
	NextPasses int

	// SampleIndex is the frame index the next pass will receive.
	SampleIndex uint32

	// Elapsed is the wall-clock time from the first pass to the end of
	// the read-back.
	Elapsed time.Duration

	// Throughput is the smoothed samples per second.
	Throughput float64

	// Uploads is the number of mirrors uploaded for this frame.
	Uploads int

	// Global is the rounded work-item count of one pass.
	Global int
}

// Frame is the result of AdvanceFrame.
type Frame struct {
	// Pixels is the downloaded display buffer. It is reused by the next
	// frame.
	Pixels []byte

	Caption string
	Stats   FrameStats
}

// Pipeline is the frame pipeline controller: per frame it uploads dirty
// host state, issues the accumulation passes and the post-process, reads
// back the display buffer and adapts the pass count.
//
// A Pipeline is driven by a single goroutine.
type Pipeline struct {
	s      *Session
	cfg    PipelineConfig
	queue  gpucore.Queue
	state  State
	budget *Budget

	sample uint32
	frames uint64
	host   []byte
}

// NewPipeline validates cfg and returns a Ready pipeline.
func NewPipeline(s *Session, cfg PipelineConfig) (*Pipeline, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	switch {
	case cfg.Accumulate == nil:
		return nil, errors.New("toys: pipeline needs an accumulation kernel")
	case cfg.Extent == nil:
		return nil, errors.New("toys: pipeline needs an extent")
	case cfg.Display == nil:
		return nil, errors.New("toys: pipeline needs a display buffer")
	case cfg.Queue < 0 || cfg.Queue >= len(s.queues):
		return nil, fmt.Errorf("toys: pipeline queue %d out of range", cfg.Queue)
	case cfg.FrameIndexSlot < NoFrameIndex:
		return nil, fmt.Errorf("toys: invalid frame index slot %d", cfg.FrameIndexSlot)
	}
	if cfg.Budget == (BudgetConfig{}) {
		cfg.Budget = DefaultBudgetConfig()
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, err
	}
	if cfg.PostExtent == nil {
		cfg.PostExtent = cfg.Extent
	}
	if cfg.Samples == nil {
		cfg.Samples = cfg.Extent
	}
	if cfg.Caption == nil {
		cfg.Caption = ProgressiveCaption
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		s:      s,
		cfg:    cfg,
		queue:  s.queues[cfg.Queue],
		state:  Ready,
		budget: NewBudget(cfg.Budget),
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Budget returns the frame budget state.
func (p *Pipeline) Budget() *Budget { return p.budget }

// SampleIndex returns the frame index the next pass will receive.
func (p *Pipeline) SampleIndex() uint32 { return p.sample }

// RestartAccumulation makes the next pass start a new progressive image.
func (p *Pipeline) RestartAccumulation() { p.sample = 0 }

// AdvanceFrame renders one displayed frame. The context is checked before
// the frame starts; a frame in flight always runs to completion.
func (p *Pipeline) AdvanceFrame(ctx context.Context) (Frame, error) {
	if p.state == Idle {
		return Frame{}, fmt.Errorf("%w: advance in state %v", ErrInvalidState, p.state)
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	var st FrameStats
	for _, m := range p.cfg.Mirrors {
		uploaded, restart, err := m.sync(p.s.buffers)
		if err != nil {
			return Frame{}, err
		}
		if uploaded {
			st.Uploads++
		}
		if restart {
			p.budget.Reset()
			p.sample = 0
		}
	}
	p.state = Running

	t0 := p.cfg.Now()

	passes := p.budget.Passes()
	extent := p.cfg.Extent()
	for range passes {
		if p.cfg.FrameIndexSlot != NoFrameIndex {
			if err := p.cfg.Accumulate.SetArg(p.cfg.FrameIndexSlot, Uint32Arg(p.sample)); err != nil {
				return Frame{}, err
			}
		}
		global, err := p.cfg.Accumulate.Dispatch(p.queue, extent)
		if err != nil {
			return Frame{}, err
		}
		st.Global = global
		p.sample++
	}

	if p.cfg.PostProcess != nil {
		if _, err := p.cfg.PostProcess.Dispatch(p.queue, p.cfg.PostExtent()); err != nil {
			return Frame{}, err
		}
	}

	if size := p.cfg.Display.Size(); len(p.host) != size {
		p.host = make([]byte, size)
	}
	if err := p.download(); err != nil {
		return Frame{}, err
	}

	elapsed := p.cfg.Now().Sub(t0)
	p.budget.Observe(elapsed, p.cfg.Samples())
	p.frames++

	st.Frame = p.frames
	st.Passes = passes
	st.NextPasses = p.budget.Passes()
	st.SampleIndex = p.sample
	st.Elapsed = elapsed
	st.Throughput = p.budget.Throughput()

	p.s.log.Debug("toys: frame",
		"frame", st.Frame,
		"passes", st.Passes,
		"elapsed", elapsed,
		"next_passes", st.NextPasses)

	return Frame{Pixels: p.host, Caption: p.cfg.Caption(st), Stats: st}, nil
}

func (p *Pipeline) download() error {
	b := p.cfg.Display
	if b.Released() {
		return &TransferError{Buffer: b.name, Op: "download", Err: ErrBufferReleased}
	}
	if err := p.queue.ReadBuffer(b.raw, p.host, true); err != nil {
		return &TransferError{Buffer: b.name, Op: "download", Err: err}
	}
	return nil
}

// Resize runs realloc, which frees and reallocates the size-dependent
// buffers and updates host state, then returns the pipeline to Ready with
// one pass per frame and a fresh accumulation. Kernels pick up resized
// buffers on their next dispatch.
func (p *Pipeline) Resize(realloc func() error) error {
	if p.state == Idle {
		return fmt.Errorf("%w: resize in state %v", ErrInvalidState, p.state)
	}
	if err := p.queue.Finish(); err != nil {
		return &TransferError{Buffer: "*", Op: "finish", Err: err}
	}
	if realloc != nil {
		if err := realloc(); err != nil {
			return err
		}
	}
	p.budget.Reset()
	p.sample = 0
	p.state = Ready
	return nil
}

// Teardown waits for in-flight work and moves the pipeline to Idle. The
// session still owns and releases the buffers and kernels.
func (p *Pipeline) Teardown() error {
	if p.state == Idle {
		return nil
	}
	p.state = Idle
	p.host = nil
	if err := p.queue.Finish(); err != nil {
		return &TransferError{Buffer: "*", Op: "finish", Err: err}
	}
	return nil
}
