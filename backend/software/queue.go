package software

import (
	"fmt"

	"github.com/gogpu/toys/gpucore"
)

// queue runs every operation to completion before returning, so it is
// trivially in-order and Finish has nothing to wait for.
type queue struct {
	ctx    *computeContext
	device *device
}

func (q *queue) Device() gpucore.Device { return q.device }

func (q *queue) target(b gpucore.Buffer) (*buffer, error) {
	sb, ok := b.(*buffer)
	if !ok || sb.ctx != q.ctx {
		return nil, gpucore.ErrForeignResource
	}
	if sb.released.Load() {
		return nil, fmt.Errorf("software: buffer %q: %w", sb.label, gpucore.ErrReleased)
	}
	return sb, nil
}

func (q *queue) WriteBuffer(b gpucore.Buffer, data []byte, _ bool) error {
	sb, err := q.target(b)
	if err != nil {
		return err
	}
	if len(data) != sb.size {
		return fmt.Errorf("software: write %q: %d bytes into %d: %w", sb.label, len(data), sb.size, gpucore.ErrSizeMismatch)
	}
	copy(sb.bytes(), data)

	be := q.ctx.backend
	be.writes.Add(1)
	be.bytesWritten.Add(uint64(len(data)))
	return nil
}

func (q *queue) ReadBuffer(b gpucore.Buffer, dst []byte, _ bool) error {
	sb, err := q.target(b)
	if err != nil {
		return err
	}
	if len(dst) != sb.size {
		return fmt.Errorf("software: read %q: %d bytes into %d: %w", sb.label, sb.size, len(dst), gpucore.ErrSizeMismatch)
	}
	copy(dst, sb.bytes())

	be := q.ctx.backend
	be.reads.Add(1)
	be.bytesRead.Add(uint64(len(dst)))
	return nil
}

func (q *queue) Dispatch(k gpucore.Kernel, global, local int) error {
	sk, ok := k.(*kernel)
	if !ok {
		return gpucore.ErrForeignResource
	}
	if global <= 0 {
		return fmt.Errorf("software: dispatch %s: invalid global size %d", sk.name, global)
	}
	if local <= 0 {
		local = DefaultWorkGroupSize
	}
	if limit := q.device.info.MaxWorkGroupSize; limit > 0 && local > limit {
		return fmt.Errorf("software: dispatch %s: work-group size %d exceeds device limit %d", sk.name, local, limit)
	}

	args, err := sk.snapshot()
	if err != nil {
		return err
	}

	be := q.ctx.backend
	fn := sk.entry.fn
	if err := be.workerPool().Range(global, local, func(gid int) { fn(gid, args) }); err != nil {
		return fmt.Errorf("software: dispatch %s: %w", sk.name, err)
	}
	be.dispatches.Add(1)
	be.invocations.Add(uint64(global))
	slogger().Debug("software: dispatch", "kernel", sk.name, "global", global, "local", local)
	return nil
}

func (q *queue) Finish() error { return nil }
func (q *queue) Release()      {}
