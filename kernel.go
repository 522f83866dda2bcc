package toys

import (
	"errors"
	"fmt"

	"github.com/gogpu/toys/gpucore"
)

// DefaultWorkGroupSize is used when the device cannot report a preferred
// work-group size for a kernel.
const DefaultWorkGroupSize = 64

// CompileOptions configures Session.Compile.
type CompileOptions struct {
	// IncludePaths are searched for #include directives.
	IncludePaths []string

	// Defines are passed to the kernel compiler.
	Defines map[string]string

	// Extra holds driver-specific compiler options.
	Extra []string

	// Device is the index of the selected device to build for.
	Device int
}

// Program is a compiled kernel source.
type Program struct {
	s       *Session
	device  gpucore.Device
	raw     gpucore.Program
	kernels []*Kernel
}

// Compile builds source for one of the session's devices. A build failure
// is a *KernelCompileError carrying the build log verbatim; it is never
// retried.
func (s *Session) Compile(source string, opts CompileOptions) (*Program, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts.Device < 0 || opts.Device >= len(s.devices) {
		return nil, &SetupError{Op: "compile", Err: fmt.Errorf("device index %d out of range", opts.Device)}
	}
	dev := s.devices[opts.Device]

	raw, err := s.ctx.CreateProgram(dev, source, gpucore.BuildOptions{
		IncludePaths: opts.IncludePaths,
		Defines:      opts.Defines,
		Extra:        opts.Extra,
	})
	if err != nil {
		ce := &KernelCompileError{Device: dev.Info().Name, Err: err}
		var be *gpucore.BuildError
		if errors.As(err, &be) {
			ce.Log = be.Log
		}
		s.log.Error("toys: kernel compilation failed", "device", ce.Device, "log", ce.Log)
		return nil, ce
	}

	p := &Program{s: s, device: dev, raw: raw}
	s.programs = append(s.programs, p)
	s.log.Info("toys: kernel compiled", "device", dev.Info().Name)
	if log := raw.BuildLog(); log != "" {
		s.log.Debug("toys: build log", "log", log)
	}
	return p, nil
}

// BuildLog returns the compiler output of the build.
func (p *Program) BuildLog() string { return p.raw.BuildLog() }

// Release frees the program and its kernels.
func (p *Program) Release() {
	for _, k := range p.kernels {
		k.raw.Release()
	}
	p.kernels = nil
	p.raw.Release()
}

// Resolve returns the kernel entry point called name.
func (p *Program) Resolve(name string) (*Kernel, error) {
	raw, err := p.raw.Kernel(name)
	if err != nil {
		return nil, &SetupError{Op: "resolve kernel " + name, Err: err}
	}
	k := &Kernel{name: name, prog: p, raw: raw}
	p.kernels = append(p.kernels, k)
	return k, nil
}

// Arg is a kernel argument: a buffer, a scalar, or a scalar evaluated at
// dispatch time.
type Arg struct {
	buf    *Buffer
	scalar gpucore.Scalar
	dyn    func() gpucore.Scalar
}

// BufferArg binds a buffer.
func BufferArg(b *Buffer) Arg { return Arg{buf: b} }

// ScalarArg binds a fixed scalar.
func ScalarArg(s gpucore.Scalar) Arg { return Arg{scalar: s} }

// Uint32Arg binds a fixed unsigned scalar.
func Uint32Arg(v uint32) Arg { return ScalarArg(gpucore.Uint32(v)) }

// Int32Arg binds a fixed signed scalar.
func Int32Arg(v int32) Arg { return ScalarArg(gpucore.Int32(v)) }

// Float32Arg binds a fixed float scalar.
func Float32Arg(v float32) Arg { return ScalarArg(gpucore.Float32(v)) }

// DynamicArg binds a scalar that is re-evaluated before every dispatch,
// for values owned by host state such as the image width.
func DynamicArg(fn func() gpucore.Scalar) Arg { return Arg{dyn: fn} }

// ArgTable is the positional argument layout of a kernel. Entry i binds
// slot i.
type ArgTable []Arg

type binding struct {
	set  bool
	buf  *Buffer
	gen  uint64
	kind gpucore.ScalarKind
	dyn  func() gpucore.Scalar
}

// Kernel is a resolved entry point with its argument slots and work-group
// size.
type Kernel struct {
	name string
	prog *Program
	raw  gpucore.Kernel

	slots   []binding
	arity   int
	wgSize  int
	queried int
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// QueryWorkGroupSize returns the device-preferred work-group size, capped at
// the device maximum. DefaultWorkGroupSize is used when the device gives no
// answer.
func (k *Kernel) QueryWorkGroupSize() (int, error) {
	if k.queried > 0 {
		return k.queried, nil
	}
	size, err := k.raw.PreferredWorkGroupSize()
	if err != nil || size <= 0 {
		k.prog.s.log.Warn("toys: work-group size query failed, using default",
			"kernel", k.name, "default", DefaultWorkGroupSize, "err", err)
		size = DefaultWorkGroupSize
	}
	if limit := k.prog.device.Info().MaxWorkGroupSize; limit > 0 && size > limit {
		size = limit
	}
	k.queried = size
	return size, nil
}

// SetWorkGroupSize overrides the queried size. n must be in 1..device max.
func (k *Kernel) SetWorkGroupSize(n int) error {
	limit := k.prog.device.Info().MaxWorkGroupSize
	if n <= 0 || (limit > 0 && n > limit) {
		return fmt.Errorf("%w: %d (device maximum %d)", ErrInvalidWorkGroupSize, n, limit)
	}
	k.wgSize = n
	k.prog.s.log.Info("toys: using work-group size", "kernel", k.name, "size", n, "override", true)
	return nil
}

// WorkGroupSize returns the size dispatches use: the override when set,
// otherwise the queried size.
func (k *Kernel) WorkGroupSize() int {
	if k.wgSize > 0 {
		return k.wgSize
	}
	size, _ := k.QueryWorkGroupSize()
	return size
}

// SetArity declares how many argument slots the kernel has. Dispatch fails
// while any of them is unbound.
func (k *Kernel) SetArity(n int) {
	k.arity = n
	k.grow(n - 1)
}

// Arity returns the number of argument slots that must be bound.
func (k *Kernel) Arity() int { return max(k.arity, len(k.slots)) }

func (k *Kernel) grow(index int) {
	for len(k.slots) <= index {
		k.slots = append(k.slots, binding{})
	}
}

// SetArg binds slot index. Rebinding replaces the previous binding; a
// scalar slot only accepts scalars of the type it was first bound with.
func (k *Kernel) SetArg(index int, a Arg) error {
	if index < 0 {
		return fmt.Errorf("toys: kernel %s: negative argument index %d", k.name, index)
	}
	k.grow(index)
	slot := &k.slots[index]

	switch {
	case a.buf != nil:
		if a.buf.Released() {
			return fmt.Errorf("toys: kernel %s: argument %d: %s: %w", k.name, index, a.buf.name, ErrBufferReleased)
		}
		if err := k.raw.SetBuffer(index, a.buf.raw); err != nil {
			return fmt.Errorf("toys: kernel %s: argument %d: %w", k.name, index, err)
		}
		*slot = binding{set: true, buf: a.buf, gen: a.buf.gen}
	case a.dyn != nil:
		*slot = binding{set: true, kind: slot.kind, dyn: a.dyn}
	default:
		if err := k.setScalar(index, a.scalar); err != nil {
			return err
		}
		slot.set, slot.buf, slot.dyn = true, nil, nil
	}
	return nil
}

func (k *Kernel) setScalar(index int, v gpucore.Scalar) error {
	slot := &k.slots[index]
	if !v.Valid() {
		return fmt.Errorf("toys: kernel %s: argument %d: invalid scalar", k.name, index)
	}
	if slot.kind != 0 && slot.kind != v.Kind {
		return fmt.Errorf("%w: kernel %s argument %d is %v, got %v", ErrArgumentType, k.name, index, slot.kind, v.Kind)
	}
	if err := k.raw.SetScalar(index, v); err != nil {
		return fmt.Errorf("toys: kernel %s: argument %d: %w", k.name, index, err)
	}
	slot.kind = v.Kind
	return nil
}

// Bind applies table to the kernel and declares its arity.
func (k *Kernel) Bind(table ArgTable) error {
	k.SetArity(len(table))
	for i, a := range table {
		if err := k.SetArg(i, a); err != nil {
			return err
		}
	}
	return nil
}

// BufferSlots returns the slots currently bound to buffers, the ones a
// resize has to rebind.
func (k *Kernel) BufferSlots() []int {
	var out []int
	for i, s := range k.slots {
		if s.set && s.buf != nil {
			out = append(out, i)
		}
	}
	return out
}

// prepare checks that every slot is bound, rebinds buffers whose
// allocation changed and evaluates dynamic scalars.
func (k *Kernel) prepare() error {
	for i := range k.Arity() {
		slot := &k.slots[i]
		switch {
		case !slot.set:
			return fmt.Errorf("%w: kernel %s argument %d", ErrUnboundArgument, k.name, i)
		case slot.buf != nil:
			if slot.buf.Released() {
				return fmt.Errorf("%w: kernel %s argument %d (%s)", ErrBufferReleased, k.name, i, slot.buf.name)
			}
			if slot.gen != slot.buf.gen {
				if err := k.raw.SetBuffer(i, slot.buf.raw); err != nil {
					return fmt.Errorf("toys: kernel %s: rebind argument %d: %w", k.name, i, err)
				}
				k.prog.s.log.Debug("toys: rebound resized buffer", "kernel", k.name, "slot", i, "buffer", slot.buf.name)
				slot.gen = slot.buf.gen
			}
		case slot.dyn != nil:
			if err := k.setScalar(i, slot.dyn()); err != nil {
				return err
			}
		}
	}
	return nil
}

// RoundUpExtent rounds global up to the next multiple of local. Kernels must
// bound-check their work-item index against the unrounded extent.
func RoundUpExtent(global, local int) int {
	if local <= 0 || global%local == 0 {
		return global
	}
	return (global/local + 1) * local
}

// Dispatch enqueues the kernel over extent work-items on q, rounded up to
// the work-group size. It returns the rounded global size.
func (k *Kernel) Dispatch(q gpucore.Queue, extent int) (int, error) {
	if err := k.prog.s.checkOpen(); err != nil {
		return 0, err
	}
	if err := k.prepare(); err != nil {
		return 0, err
	}
	local := k.WorkGroupSize()
	global := RoundUpExtent(extent, local)
	if err := q.Dispatch(k.raw, global, local); err != nil {
		return 0, fmt.Errorf("toys: dispatch %s: %w", k.name, err)
	}
	return global, nil
}
