//go:build !nogpu

package wgpu

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/kernelsrc"
)

type computeContext struct {
	device   *device
	hal      hal.Device
	queue    hal.Queue
	released atomic.Bool

	// submit serializes the queues of this context on the hal queue.
	submit sync.Mutex
}

func (c *computeContext) Devices() []gpucore.Device { return []gpucore.Device{c.device} }

func (c *computeContext) CreateQueue(d gpucore.Device) (gpucore.Queue, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if d != gpucore.Device(c.device) {
		return nil, gpucore.ErrForeignResource
	}
	return &queue{ctx: c}, nil
}

func (c *computeContext) CreateBuffer(desc gpucore.BufferDesc) (gpucore.Buffer, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if desc.Size <= 0 {
		return nil, fmt.Errorf("wgpu: buffer %q: invalid size %d", desc.Label, desc.Size)
	}
	if !desc.Access.Valid() {
		return nil, fmt.Errorf("wgpu: buffer %q: invalid access mode %v", desc.Label, desc.Access)
	}
	if desc.Init != nil && len(desc.Init) != desc.Size {
		return nil, fmt.Errorf("wgpu: buffer %q: %w", desc.Label, gpucore.ErrSizeMismatch)
	}

	// Storage bindings and copies work on 4-byte multiples.
	padded := uint64(desc.Size+3) &^ 3
	hb, err := c.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label, Size: padded,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	b := &buffer{ctx: c, label: desc.Label, size: desc.Size, padded: padded, access: desc.Access, hal: hb}
	if desc.Init != nil {
		c.queue.WriteBuffer(hb, 0, pad(desc.Init, padded))
	}
	slogger().Debug("wgpu: buffer allocated", "label", desc.Label, "size", desc.Size, "access", desc.Access)
	return b, nil
}

func (c *computeContext) CreateProgram(d gpucore.Device, source string, opts gpucore.BuildOptions) (gpucore.Program, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if d != gpucore.Device(c.device) {
		return nil, gpucore.ErrForeignResource
	}
	if kernelsrc.Detect(source) != kernelsrc.WGSL {
		return nil, &gpucore.BuildError{Log: "wgpu: only WGSL kernels are supported"}
	}

	src, err := kernelsrc.Preprocess(source, kernelsrc.Options{
		IncludePaths: opts.IncludePaths,
		Defines:      opts.Defines,
	})
	if err != nil {
		return nil, &gpucore.BuildError{Log: err.Error()}
	}
	eps := kernelsrc.EntryPoints(src)
	if len(eps) == 0 {
		return nil, &gpucore.BuildError{Log: "no compute entry points declared"}
	}
	// Compile once up front so syntax and type errors surface at build
	// time rather than on the first dispatch.
	if _, err := compileSPIRV(src); err != nil {
		return nil, &gpucore.BuildError{Log: err.Error()}
	}

	p := &program{ctx: c, source: src, entries: make(map[string]kernelsrc.EntryPoint, len(eps))}
	names := make([]string, 0, len(eps))
	for _, ep := range eps {
		p.entries[ep.Name] = ep
		names = append(names, ep.Name)
	}
	p.log = fmt.Sprintf("wgpu: %d entry points (%s)", len(names), strings.Join(names, ", "))
	slogger().Debug("wgpu: program compiled", "entries", names)
	return p, nil
}

func (c *computeContext) Release() {
	c.released.Store(true)
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

func pad(data []byte, size uint64) []byte {
	if uint64(len(data)) == size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

type buffer struct {
	ctx    *computeContext
	label  string
	size   int
	padded uint64
	access gpucore.AccessMode

	hal     hal.Buffer
	staging hal.Buffer

	released atomic.Bool
}

func (b *buffer) Label() string              { return b.label }
func (b *buffer) Size() int                  { return b.size }
func (b *buffer) Access() gpucore.AccessMode { return b.access }

func (b *buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	// Pending commands may still reference the buffer.
	b.ctx.submit.Lock()
	defer b.ctx.submit.Unlock()
	if b.staging != nil {
		b.ctx.hal.DestroyBuffer(b.staging)
	}
	b.ctx.hal.DestroyBuffer(b.hal)
}

// stagingBuffer returns the map-readable twin of b, creating it on first use.
func (b *buffer) stagingBuffer() (hal.Buffer, error) {
	if b.staging != nil {
		return b.staging, nil
	}
	sb, err := b.ctx.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging", Size: b.padded,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer %q: %w", b.label, err)
	}
	b.staging = sb
	return sb, nil
}

type program struct {
	ctx     *computeContext
	source  string
	entries map[string]kernelsrc.EntryPoint
	log     string
}

func (p *program) Kernel(name string) (gpucore.Kernel, error) {
	ep, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", gpucore.ErrEntryPointNotFound, name)
	}
	return &kernel{program: p, entry: ep, pipelines: make(map[pipelineKey]*pipeline)}, nil
}

func (p *program) BuildLog() string { return p.log }
func (p *program) Release()         {}
