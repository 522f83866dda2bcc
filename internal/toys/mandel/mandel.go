// Package mandel is the Mandelbrot toy: one dispatch per frame over a
// packed 8-bit luminance frame buffer.
package mandel

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/toys/common"
	"github.com/gogpu/toys/pixels"
)

// EntryPoint is the kernel the toy dispatches.
const EntryPoint = "mandelGPU"

var (
	//go:embed mandel.wgsl
	wgslSource string

	//go:embed mandel.cl
	openclSource string
)

// Navigation steps.
const (
	ScaleStep      float32 = 0.1
	OffsetStep     float32 = 0.025
	IterationsStep int32   = 32
)

// Params is the view of the set.
type Params struct {
	Scale            float32
	OffsetX, OffsetY float32
	MaxIterations    int32
}

// DefaultParams frames the whole set.
func DefaultParams() Params {
	return Params{Scale: 3.5, OffsetX: -0.5, MaxIterations: 256}
}

// AlignWidth rounds w up to a multiple of 4 so rows pack into whole words.
func AlignWidth(w int) int {
	if w%4 != 0 {
		w = (w/4 + 1) * 4
	}
	return w
}

// Words returns the number of packed words, and work-items, of a frame.
func Words(w, h int) int { return w*h/4 + 1 }

// Mandel is the toy state.
type Mandel struct {
	Params Params

	width, height int
	pixels        *toys.Buffer
	kernel        *toys.Kernel
}

// New builds the toy on s.
func New(s *toys.Session, opts common.Options) (*toys.Toy, *Mandel, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	m := &Mandel{
		Params: DefaultParams(),
		width:  AlignWidth(opts.Width),
		height: opts.Height,
	}

	var err error
	m.pixels, err = s.Buffers().AllocateWriteOnly(4*Words(m.width, m.height), "FrameBuffer")
	if err != nil {
		return nil, nil, err
	}

	sources, err := common.Select(s, common.Sources{
		WGSL:   []string{wgslSource},
		OpenCL: []string{openclSource},
	}, opts.KernelPath)
	if err != nil {
		return nil, nil, err
	}
	progs, err := common.Compile(s, sources, opts.Compile, EntryPoint)
	if err != nil {
		return nil, nil, err
	}
	if m.kernel, err = progs.Prepare(EntryPoint, opts.WorkGroupSize); err != nil {
		return nil, nil, err
	}
	err = m.kernel.Bind(toys.ArgTable{
		argPixels:        toys.BufferArg(m.pixels),
		argWidth:         toys.DynamicArg(func() gpucore.Scalar { return gpucore.Uint32(uint32(m.width)) }),
		argHeight:        toys.DynamicArg(func() gpucore.Scalar { return gpucore.Uint32(uint32(m.height)) }),
		argScale:         toys.DynamicArg(func() gpucore.Scalar { return gpucore.Float32(m.Params.Scale) }),
		argOffsetX:       toys.DynamicArg(func() gpucore.Scalar { return gpucore.Float32(m.Params.OffsetX) }),
		argOffsetY:       toys.DynamicArg(func() gpucore.Scalar { return gpucore.Float32(m.Params.OffsetY) }),
		argMaxIterations: toys.DynamicArg(func() gpucore.Scalar { return gpucore.Int32(m.Params.MaxIterations) }),
	})
	if err != nil {
		return nil, nil, err
	}

	budget := opts.Budget
	if budget == (toys.BudgetConfig{}) {
		budget = toys.FixedBudgetConfig()
	}
	p, err := toys.NewPipeline(s, toys.PipelineConfig{
		Accumulate:     m.kernel,
		FrameIndexSlot: toys.NoFrameIndex,
		Extent:         func() int { return Words(m.width, m.height) },
		Display:        m.pixels,
		Samples:        func() int { return m.width * m.height },
		Budget:         budget,
		Caption:        m.caption,
	})
	if err != nil {
		return nil, nil, err
	}

	t := &toys.Toy{
		Name:       "mandelgpu",
		Session:    s,
		Pipeline:   p,
		Width:      m.width,
		Height:     m.height,
		Format:     pixels.Luma8,
		OnKey:      m.HandleKey,
		OnResize:   m.resize,
		ExportPath: opts.ExportPath,
	}
	return t, m, nil
}

// Size returns the aligned frame size.
func (m *Mandel) Size() (width, height int) { return m.width, m.height }

func (m *Mandel) resize(w, h int) (int, int, error) {
	m.width, m.height = AlignWidth(w), h
	if err := m.pixels.Resize(4 * Words(m.width, m.height)); err != nil {
		return 0, 0, err
	}
	return m.width, m.height, nil
}

// HandleKey applies the navigation keys: +/- change the iteration limit,
// arrows pan and page up/down zoom. Space redraws without a change.
func (m *Mandel) HandleKey(k toys.Key) error {
	p := &m.Params
	switch k {
	case '+':
		p.MaxIterations += IterationsStep
	case '-':
		p.MaxIterations = max(p.MaxIterations-IterationsStep, 1)
	case toys.KeyUp:
		p.OffsetY += p.Scale * OffsetStep
	case toys.KeyDown:
		p.OffsetY -= p.Scale * OffsetStep
	case toys.KeyLeft:
		p.OffsetX -= p.Scale * OffsetStep
	case toys.KeyRight:
		p.OffsetX += p.Scale * OffsetStep
	case toys.KeyPageUp:
		p.Scale *= 1 - ScaleStep
	case toys.KeyPageDown:
		p.Scale *= 1 + ScaleStep
	case ' ':
	default:
		return toys.ErrUnhandledKey
	}
	return nil
}

// caption reports the frame time and the smoothed sample rate.
func (m *Mandel) caption(st toys.FrameStats) string {
	return toys.Captionf("Rendering time: %.3f secs (Sample/sec %.1fK Max. Iterations %d)",
		st.Elapsed.Seconds(), st.Throughput/1000, m.Params.MaxIterations)
}

// String describes the current view.
func (m *Mandel) String() string {
	return fmt.Sprintf("mandel %dx%d scale %g offset (%g, %g) iterations %d",
		m.width, m.height, m.Params.Scale, m.Params.OffsetX, m.Params.OffsetY, m.Params.MaxIterations)
}
