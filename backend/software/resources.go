package software

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/kernelsrc"
)

type computeContext struct {
	backend  *Backend
	devices  []*device
	released atomic.Bool
}

func (c *computeContext) Devices() []gpucore.Device {
	out := make([]gpucore.Device, len(c.devices))
	for i, d := range c.devices {
		out[i] = d
	}
	return out
}

func (c *computeContext) owns(d gpucore.Device) (*device, bool) {
	for _, own := range c.devices {
		if gpucore.Device(own) == d {
			return own, true
		}
	}
	return nil, false
}

func (c *computeContext) CreateQueue(d gpucore.Device) (gpucore.Queue, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	dev, ok := c.owns(d)
	if !ok {
		return nil, gpucore.ErrForeignResource
	}
	return &queue{ctx: c, device: dev}, nil
}

func (c *computeContext) CreateBuffer(desc gpucore.BufferDesc) (gpucore.Buffer, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if desc.Size <= 0 {
		return nil, fmt.Errorf("software: buffer %q: invalid size %d", desc.Label, desc.Size)
	}
	if !desc.Access.Valid() {
		return nil, fmt.Errorf("software: buffer %q: invalid access mode %v", desc.Label, desc.Access)
	}
	if desc.Init != nil && len(desc.Init) != desc.Size {
		return nil, fmt.Errorf("software: buffer %q: %w", desc.Label, gpucore.ErrSizeMismatch)
	}

	b := &buffer{
		ctx:    c,
		label:  desc.Label,
		size:   desc.Size,
		access: desc.Access,
		words:  make([]uint32, (desc.Size+3)/4),
	}
	if desc.Init != nil {
		copy(b.bytes(), desc.Init)
	}
	c.backend.allocations.Add(1)
	slogger().Debug("software: buffer allocated", "label", desc.Label, "size", desc.Size, "access", desc.Access)
	return b, nil
}

func (c *computeContext) CreateProgram(d gpucore.Device, source string, opts gpucore.BuildOptions) (gpucore.Program, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if _, ok := c.owns(d); !ok {
		return nil, gpucore.ErrForeignResource
	}

	src, err := kernelsrc.Preprocess(source, kernelsrc.Options{IncludePaths: opts.IncludePaths})
	if err != nil {
		return nil, &gpucore.BuildError{Log: err.Error()}
	}

	eps := kernelsrc.EntryPoints(src)
	if len(eps) == 0 {
		return nil, &gpucore.BuildError{Log: "no compute entry points declared"}
	}

	p := &program{entries: make(map[string]entry, len(eps))}
	var missing []string
	for _, ep := range eps {
		fn, ok := lookupKernel(ep.Name)
		if !ok {
			missing = append(missing, ep.Name)
			continue
		}
		p.entries[ep.Name] = entry{fn: fn, workGroupSize: ep.WorkGroupSize}
		p.names = append(p.names, ep.Name)
	}
	if len(missing) > 0 {
		var log strings.Builder
		for _, name := range missing {
			fmt.Fprintf(&log, "error: kernel %q has no software implementation\n", name)
		}
		return nil, &gpucore.BuildError{Log: log.String()}
	}

	p.log = fmt.Sprintf("software: %d entry points (%s)", len(p.names), strings.Join(p.names, ", "))
	return p, nil
}

func (c *computeContext) Release() {
	c.released.Store(true)
}

// buffer stores its bytes in a word slice so typed views are aligned.
type buffer struct {
	ctx      *computeContext
	label    string
	size     int
	access   gpucore.AccessMode
	words    []uint32
	released atomic.Bool
}

func (b *buffer) Label() string              { return b.label }
func (b *buffer) Size() int                  { return b.size }
func (b *buffer) Access() gpucore.AccessMode { return b.access }

func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.ctx.backend.releases.Add(1)
		b.words = nil
	}
}

func (b *buffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), b.size)
}

type entry struct {
	fn            KernelFunc
	workGroupSize int
}

type program struct {
	entries map[string]entry
	names   []string
	log     string
}

func (p *program) Kernel(name string) (gpucore.Kernel, error) {
	e, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", gpucore.ErrEntryPointNotFound, name)
	}
	return &kernel{name: name, entry: e}, nil
}

func (p *program) BuildLog() string { return p.log }
func (p *program) Release()         {}

type kernel struct {
	name  string
	entry entry

	mu    sync.Mutex
	slots []slot
	set   []bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) PreferredWorkGroupSize() (int, error) {
	if k.entry.workGroupSize > 0 {
		return k.entry.workGroupSize, nil
	}
	return DefaultWorkGroupSize, nil
}

func (k *kernel) grow(index int) error {
	if index < 0 {
		return fmt.Errorf("software: kernel %s: negative argument index %d", k.name, index)
	}
	for len(k.slots) <= index {
		k.slots = append(k.slots, slot{})
		k.set = append(k.set, false)
	}
	return nil
}

func (k *kernel) SetBuffer(index int, b gpucore.Buffer) error {
	sb, ok := b.(*buffer)
	if !ok {
		return gpucore.ErrForeignResource
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.grow(index); err != nil {
		return err
	}
	k.slots[index] = slot{buf: sb}
	k.set[index] = true
	return nil
}

func (k *kernel) SetScalar(index int, s gpucore.Scalar) error {
	if !s.Valid() {
		return fmt.Errorf("software: kernel %s: argument %d: invalid scalar", k.name, index)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.grow(index); err != nil {
		return err
	}
	k.slots[index] = slot{scalar: s}
	k.set[index] = true
	return nil
}

// snapshot copies the bound arguments, failing on gaps and released buffers.
func (k *kernel) snapshot() (*Args, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, ok := range k.set {
		if !ok {
			return nil, fmt.Errorf("software: kernel %s: argument %d not set", k.name, i)
		}
		if b := k.slots[i].buf; b != nil && b.released.Load() {
			return nil, fmt.Errorf("software: kernel %s: argument %d: buffer %q: %w", k.name, i, b.label, gpucore.ErrReleased)
		}
	}
	return &Args{slots: append([]slot(nil), k.slots...)}, nil
}

func (k *kernel) Release() {}
