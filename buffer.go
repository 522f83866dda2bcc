package toys

import (
	"fmt"

	"github.com/gogpu/toys/gpucore"
)

// BufferManager allocates, resizes and frees the device buffers of a
// session and performs host/device transfers on its primary queue.
type BufferManager struct {
	s    *Session
	live map[*Buffer]struct{}

	allocations, frees int
}

// Buffer is a stable handle to a device allocation. Its size and access mode
// are fixed per allocation; Resize replaces the allocation behind the handle
// and bumps Generation, which kernels use to rebind the new allocation
// before their next dispatch.
type Buffer struct {
	mgr    *BufferManager
	name   string
	access gpucore.AccessMode
	raw    gpucore.Buffer
	size   int
	gen    uint64
}

// Name returns the diagnostic name.
func (b *Buffer) Name() string { return b.name }

// Size returns the size in bytes, or 0 once released.
func (b *Buffer) Size() int { return b.size }

// Access returns the declared access mode.
func (b *Buffer) Access() gpucore.AccessMode { return b.access }

// Generation counts the allocations made behind this handle.
func (b *Buffer) Generation() uint64 { return b.gen }

// Released reports whether the buffer has been freed.
func (b *Buffer) Released() bool { return b.raw == nil }

// Raw returns the driver buffer of the current generation, nil once freed.
func (b *Buffer) Raw() gpucore.Buffer { return b.raw }

func (b *Buffer) String() string {
	return fmt.Sprintf("%s(%d bytes, %v, gen %d)", b.name, b.size, b.access, b.gen)
}

// AllocateReadOnly allocates a buffer initialized from a snapshot of host.
// Later changes to host are invisible to the device until uploaded.
func (m *BufferManager) AllocateReadOnly(host []byte, name string) (*Buffer, error) {
	return m.allocate(name, len(host), gpucore.AccessReadOnly, host)
}

// AllocateWriteOnly allocates an uninitialized kernel output buffer.
func (m *BufferManager) AllocateWriteOnly(size int, name string) (*Buffer, error) {
	return m.allocate(name, size, gpucore.AccessWriteOnly, nil)
}

// AllocateReadWrite allocates a device-resident scratch or accumulator
// buffer that keeps its contents across dispatches.
func (m *BufferManager) AllocateReadWrite(size int, name string) (*Buffer, error) {
	return m.allocate(name, size, gpucore.AccessReadWrite, nil)
}

func (m *BufferManager) allocate(name string, size int, access gpucore.AccessMode, init []byte) (*Buffer, error) {
	if err := m.s.checkOpen(); err != nil {
		return nil, err
	}
	b := &Buffer{mgr: m, name: name, access: access}
	if err := b.alloc(size, init); err != nil {
		return nil, err
	}
	m.live[b] = struct{}{}
	return b, nil
}

func (b *Buffer) alloc(size int, init []byte) error {
	m := b.mgr
	raw, err := m.s.ctx.CreateBuffer(gpucore.BufferDesc{
		Label:  b.name,
		Size:   size,
		Access: b.access,
		Init:   init,
	})
	if err != nil {
		return &SetupError{Op: fmt.Sprintf("allocate %s (%d bytes)", b.name, size), Err: err}
	}
	b.raw = raw
	b.size = size
	b.gen++
	m.allocations++
	m.s.log.Debug("toys: buffer allocated", "name", b.name, "size", size, "access", b.access, "gen", b.gen)
	return nil
}

func (b *Buffer) free() {
	if b.raw == nil {
		return
	}
	b.raw.Release()
	b.raw = nil
	b.size = 0
	b.mgr.frees++
}

// Free releases the device memory. Dispatching a kernel that still has
// the buffer bound fails with ErrBufferReleased.
func (m *BufferManager) Free(b *Buffer) {
	if b == nil || b.mgr != m {
		return
	}
	b.free()
	delete(m.live, b)
	m.s.log.Debug("toys: buffer freed", "name", b.name)
}

// Resize frees the current allocation and allocates size bytes behind the
// same handle. The new contents are undefined; read-only buffers should be
// refilled with Upload or resized with ResizeWith.
func (b *Buffer) Resize(size int) error {
	return b.replace(size, nil)
}

// ResizeWith replaces the allocation with one initialized from host.
func (b *Buffer) ResizeWith(host []byte) error {
	return b.replace(len(host), host)
}

func (b *Buffer) replace(size int, init []byte) error {
	if b.Released() {
		return fmt.Errorf("resize %s: %w", b.name, ErrBufferReleased)
	}
	if err := b.mgr.s.checkOpen(); err != nil {
		return err
	}
	b.free()
	if err := b.alloc(size, init); err != nil {
		delete(b.mgr.live, b)
		return err
	}
	return nil
}

// Upload copies host into b on the primary queue. A non-blocking upload
// keeps a reference to host until the queue synchronizes.
func (m *BufferManager) Upload(b *Buffer, host []byte, blocking bool) error {
	if err := m.s.checkOpen(); err != nil {
		return err
	}
	if b.Released() {
		return &TransferError{Buffer: b.name, Op: "upload", Err: ErrBufferReleased}
	}
	if err := m.s.queues[0].WriteBuffer(b.raw, host, blocking); err != nil {
		return &TransferError{Buffer: b.name, Op: "upload", Err: err}
	}
	return nil
}

// Download copies b into host on the primary queue. After a non-blocking
// download host must not be read until the queue synchronizes.
func (m *BufferManager) Download(b *Buffer, host []byte, blocking bool) error {
	if err := m.s.checkOpen(); err != nil {
		return err
	}
	if b.Released() {
		return &TransferError{Buffer: b.name, Op: "download", Err: ErrBufferReleased}
	}
	if err := m.s.queues[0].ReadBuffer(b.raw, host, blocking); err != nil {
		return &TransferError{Buffer: b.name, Op: "download", Err: err}
	}
	return nil
}

// Live returns the number of buffers currently allocated.
func (m *BufferManager) Live() int { return len(m.live) }

// LiveBytes returns the total size of the live buffers.
func (m *BufferManager) LiveBytes() int {
	n := 0
	for b := range m.live {
		n += b.size
	}
	return n
}

// Counts returns the number of allocations and frees performed so far,
// resizes included.
func (m *BufferManager) Counts() (allocations, frees int) {
	return m.allocations, m.frees
}

func (m *BufferManager) releaseAll() {
	for b := range m.live {
		b.free()
	}
	clear(m.live)
}
