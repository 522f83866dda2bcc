//go:build opencl

package opencl

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/toys/gpucore"
)

type computeContext struct {
	cl       *cl.Context
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
	q, err := c.cl.CreateCommandQueue(dev.cl, 0)
	if err != nil {
		return nil, fmt.Errorf("opencl: create command queue: %w", err)
	}
	return &queue{ctx: c, device: dev, cl: q}, nil
}

func memFlags(m gpucore.AccessMode) cl.MemFlag {
	switch m {
	case gpucore.AccessReadOnly:
		return cl.MemReadOnly
	case gpucore.AccessWriteOnly:
		return cl.MemWriteOnly
	default:
		return cl.MemReadWrite
	}
}

func (c *computeContext) CreateBuffer(desc gpucore.BufferDesc) (gpucore.Buffer, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	if desc.Size <= 0 {
		return nil, fmt.Errorf("opencl: buffer %q: invalid size %d", desc.Label, desc.Size)
	}
	if !desc.Access.Valid() {
		return nil, fmt.Errorf("opencl: buffer %q: invalid access mode %v", desc.Label, desc.Access)
	}
	if desc.Init != nil && len(desc.Init) != desc.Size {
		return nil, fmt.Errorf("opencl: buffer %q: %w", desc.Label, gpucore.ErrSizeMismatch)
	}

	mem, err := c.cl.CreateEmptyBuffer(memFlags(desc.Access), desc.Size)
	if err != nil {
		return nil, fmt.Errorf("opencl: create buffer %q: %w", desc.Label, err)
	}
	b := &buffer{ctx: c, label: desc.Label, size: desc.Size, access: desc.Access, mem: mem}
	if desc.Init != nil {
		// Any queue of the context can seed the buffer.
		q, err := c.cl.CreateCommandQueue(c.devices[0].cl, 0)
		if err != nil {
			mem.Release()
			return nil, fmt.Errorf("opencl: create buffer %q: %w", desc.Label, err)
		}
		defer q.Release()
		ev, err := q.EnqueueWriteBuffer(mem, true, 0, desc.Size, unsafe.Pointer(&desc.Init[0]), nil)
		if err != nil {
			mem.Release()
			return nil, fmt.Errorf("opencl: initialize buffer %q: %w", desc.Label, err)
		}
		ev.Release()
	}
	slogger().Debug("opencl: buffer allocated", "label", desc.Label, "size", desc.Size, "access", desc.Access)
	return b, nil
}

func (c *computeContext) CreateProgram(d gpucore.Device, source string, opts gpucore.BuildOptions) (gpucore.Program, error) {
	if c.released.Load() {
		return nil, gpucore.ErrReleased
	}
	dev, ok := c.owns(d)
	if !ok {
		return nil, gpucore.ErrForeignResource
	}

	prog, err := c.cl.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, fmt.Errorf("opencl: create program: %w", err)
	}
	options := buildOptions(opts)
	if err := prog.BuildProgram([]*cl.Device{dev.cl}, options); err != nil {
		prog.Release()
		var be cl.BuildError
		if errors.As(err, &be) {
			return nil, &gpucore.BuildError{Log: string(be)}
		}
		return nil, &gpucore.BuildError{Log: err.Error()}
	}
	slogger().Debug("opencl: program built", "device", dev.info.Name, "options", options)
	return &program{ctx: c, device: dev, cl: prog}, nil
}

// buildOptions renders opts as an OpenCL compiler option string.
func buildOptions(opts gpucore.BuildOptions) string {
	var parts []string
	for _, dir := range opts.IncludePaths {
		parts = append(parts, "-I"+quote(dir))
	}
	names := make([]string, 0, len(opts.Defines))
	for name := range opts.Defines {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if v := opts.Defines[name]; v != "" {
			parts = append(parts, "-D"+name+"="+quote(v))
		} else {
			parts = append(parts, "-D"+name)
		}
	}
	parts = append(parts, opts.Extra...)
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (c *computeContext) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.cl.Release()
	}
}

type buffer struct {
	ctx      *computeContext
	label    string
	size     int
	access   gpucore.AccessMode
	mem      *cl.MemObject
	released atomic.Bool
}

func (b *buffer) Label() string              { return b.label }
func (b *buffer) Size() int                  { return b.size }
func (b *buffer) Access() gpucore.AccessMode { return b.access }

func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.mem.Release()
	}
}

type program struct {
	ctx    *computeContext
	device *device
	cl     *cl.Program
}

func (p *program) Kernel(name string) (gpucore.Kernel, error) {
	k, err := p.cl.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", gpucore.ErrEntryPointNotFound, name, err)
	}
	return &kernel{program: p, name: name, cl: k}, nil
}

// BuildLog is empty: go-opencl only exposes the log of failed builds.
func (p *program) BuildLog() string { return "" }

func (p *program) Release() { p.cl.Release() }

type kernel struct {
	program *program
	name    string
	cl      *cl.Kernel
	// bound holds the buffers set on the kernel so dispatches can reject
	// released ones.
	bound map[int]*buffer
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) PreferredWorkGroupSize() (int, error) {
	n, err := k.cl.WorkGroupSize(k.program.device.cl)
	if err != nil {
		return 0, fmt.Errorf("opencl: kernel %s: query work-group size: %w", k.name, err)
	}
	return n, nil
}

func (k *kernel) SetBuffer(index int, b gpucore.Buffer) error {
	ob, ok := b.(*buffer)
	if !ok || ob.ctx != k.program.ctx {
		return gpucore.ErrForeignResource
	}
	if err := k.cl.SetArgBuffer(index, ob.mem); err != nil {
		return fmt.Errorf("opencl: kernel %s: argument %d: %w", k.name, index, err)
	}
	if k.bound == nil {
		k.bound = make(map[int]*buffer)
	}
	k.bound[index] = ob
	return nil
}

func (k *kernel) SetScalar(index int, s gpucore.Scalar) error {
	var err error
	switch s.Kind {
	case gpucore.ScalarUint32:
		err = k.cl.SetArgUint32(index, s.Uint32())
	case gpucore.ScalarInt32:
		err = k.cl.SetArgInt32(index, s.Int32())
	case gpucore.ScalarFloat32:
		err = k.cl.SetArgFloat32(index, s.Float32())
	default:
		return fmt.Errorf("opencl: kernel %s: argument %d: invalid scalar", k.name, index)
	}
	if err != nil {
		return fmt.Errorf("opencl: kernel %s: argument %d: %w", k.name, index, err)
	}
	delete(k.bound, index)
	return nil
}

func (k *kernel) Release() { k.cl.Release() }
