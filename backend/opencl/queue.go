//go:build opencl

package opencl

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/toys/gpucore"
)

type queue struct {
	ctx    *computeContext
	device *device
	cl     *cl.CommandQueue

	mu sync.Mutex
	// inflight keeps the host memory of non-blocking writes alive, together
	// with their events, until the next Finish.
	inflight [][]byte
	events   []*cl.Event
}

func (q *queue) Device() gpucore.Device { return q.device }

func (q *queue) target(b gpucore.Buffer) (*buffer, error) {
	ob, ok := b.(*buffer)
	if !ok || ob.ctx != q.ctx {
		return nil, gpucore.ErrForeignResource
	}
	if ob.released.Load() {
		return nil, fmt.Errorf("opencl: buffer %q: %w", ob.label, gpucore.ErrReleased)
	}
	return ob, nil
}

func (q *queue) WriteBuffer(b gpucore.Buffer, data []byte, blocking bool) error {
	ob, err := q.target(b)
	if err != nil {
		return err
	}
	if len(data) != ob.size {
		return fmt.Errorf("opencl: write %q: %d bytes into %d: %w", ob.label, len(data), ob.size, gpucore.ErrSizeMismatch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !blocking {
		// The caller may reuse data as soon as we return.
		data = append([]byte(nil), data...)
	}
	ev, err := q.cl.EnqueueWriteBuffer(ob.mem, blocking, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return fmt.Errorf("opencl: write %q: %w", ob.label, err)
	}
	if blocking {
		ev.Release()
		return nil
	}
	q.inflight = append(q.inflight, data)
	q.events = append(q.events, ev)
	return nil
}

func (q *queue) ReadBuffer(b gpucore.Buffer, dst []byte, blocking bool) error {
	ob, err := q.target(b)
	if err != nil {
		return err
	}
	if len(dst) != ob.size {
		return fmt.Errorf("opencl: read %q: %d bytes into %d: %w", ob.label, ob.size, len(dst), gpucore.ErrSizeMismatch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	ev, err := q.cl.EnqueueReadBuffer(ob.mem, blocking, 0, len(dst), unsafe.Pointer(&dst[0]), nil)
	if err != nil {
		return fmt.Errorf("opencl: read %q: %w", ob.label, err)
	}
	if blocking {
		ev.Release()
		return nil
	}
	q.events = append(q.events, ev)
	return nil
}

func (q *queue) Dispatch(k gpucore.Kernel, global, local int) error {
	ck, ok := k.(*kernel)
	if !ok || ck.program.ctx != q.ctx {
		return gpucore.ErrForeignResource
	}
	if global <= 0 {
		return fmt.Errorf("opencl: dispatch %s: invalid global size %d", ck.name, global)
	}
	for i, b := range ck.bound {
		if b.released.Load() {
			return fmt.Errorf("opencl: kernel %s: argument %d: buffer %q: %w", ck.name, i, b.label, gpucore.ErrReleased)
		}
	}
	var localSize []int
	if local > 0 {
		localSize = []int{local}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	ev, err := q.cl.EnqueueNDRangeKernel(ck.cl, nil, []int{global}, localSize, nil)
	if err != nil {
		return fmt.Errorf("opencl: dispatch %s: %w", ck.name, err)
	}
	ev.Release()
	slogger().Debug("opencl: dispatch", "kernel", ck.name, "global", global, "local", local)
	return nil
}

func (q *queue) Finish() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.cl.Finish()
	for _, ev := range q.events {
		ev.Release()
	}
	q.events, q.inflight = nil, nil
	if err != nil {
		return fmt.Errorf("opencl: finish: %w", err)
	}
	return nil
}

func (q *queue) Release() {
	if err := q.Finish(); err != nil {
		slogger().Warn("opencl: finish on release", "err", err)
	}
	q.cl.Release()
}
