//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/toys/gpucore"
)

// FenceTimeout bounds the wait for one submission.
var FenceTimeout = 10 * time.Second

// queue records dispatches into a pending encoder. Every blocking operation
// flushes it, so commands execute in submission order.
type queue struct {
	ctx *computeContext

	mu      sync.Mutex
	encoder hal.CommandEncoder
	passes  int

	// Per-dispatch resources, destroyed once the submission completes.
	uniforms   []hal.Buffer
	bindGroups []hal.BindGroup
}

func (q *queue) Device() gpucore.Device { return q.ctx.device }

func (q *queue) target(b gpucore.Buffer) (*buffer, error) {
	wb, ok := b.(*buffer)
	if !ok || wb.ctx != q.ctx {
		return nil, gpucore.ErrForeignResource
	}
	if wb.released.Load() {
		return nil, fmt.Errorf("wgpu: buffer %q: %w", wb.label, gpucore.ErrReleased)
	}
	return wb, nil
}

// WriteBuffer uploads data. Recorded dispatches are submitted first so they
// see the previous contents.
func (q *queue) WriteBuffer(b gpucore.Buffer, data []byte, _ bool) error {
	wb, err := q.target(b)
	if err != nil {
		return err
	}
	if len(data) != wb.size {
		return fmt.Errorf("wgpu: write %q: %d bytes into %d: %w", wb.label, len(data), wb.size, gpucore.ErrSizeMismatch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.flushLocked(nil); err != nil {
		return err
	}
	q.ctx.queue.WriteBuffer(wb.hal, 0, pad(data, wb.padded))
	return nil
}

// ReadBuffer copies b into its staging buffer behind the recorded
// dispatches, submits, waits and maps the result. Reads always block.
func (q *queue) ReadBuffer(b gpucore.Buffer, dst []byte, _ bool) error {
	wb, err := q.target(b)
	if err != nil {
		return err
	}
	if len(dst) != wb.size {
		return fmt.Errorf("wgpu: read %q: %d bytes into %d: %w", wb.label, wb.size, len(dst), gpucore.ErrSizeMismatch)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	staging, err := wb.stagingBuffer()
	if err != nil {
		return err
	}
	if err := q.flushLocked(func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(wb.hal, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: wb.padded}})
	}); err != nil {
		return err
	}

	readback := dst
	if uint64(len(dst)) != wb.padded {
		readback = make([]byte, wb.padded)
	}
	if err := q.ctx.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("wgpu: read %q: %w", wb.label, err)
	}
	if &readback[0] != &dst[0] {
		copy(dst, readback)
	}
	return nil
}

// Dispatch records kernel over global invocations. global must be a
// multiple of local; a local different from the declared
// @workgroup_size selects a recompiled pipeline variant.
func (q *queue) Dispatch(k gpucore.Kernel, global, local int) error {
	wk, ok := k.(*kernel)
	if !ok || wk.program.ctx != q.ctx {
		return gpucore.ErrForeignResource
	}
	if global <= 0 {
		return fmt.Errorf("wgpu: dispatch %s: invalid global size %d", wk.entry.Name, global)
	}
	if local <= 0 {
		var err error
		if local, err = wk.PreferredWorkGroupSize(); err != nil {
			return err
		}
	}
	if local > MaxWorkGroupSize {
		return fmt.Errorf("wgpu: dispatch %s: work-group size %d exceeds device limit %d", wk.entry.Name, local, MaxWorkGroupSize)
	}
	if global%local != 0 {
		return fmt.Errorf("wgpu: dispatch %s: global size %d is not a multiple of %d", wk.entry.Name, global, local)
	}
	groups := global / local
	if groups > MaxWorkGroupsPerDim {
		return fmt.Errorf("wgpu: dispatch %s: %d work-groups exceed the limit of %d", wk.entry.Name, groups, MaxWorkGroupsPerDim)
	}

	bd, err := wk.capture(local)
	if err != nil {
		return err
	}
	p, err := wk.pipelineFor(bd)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	bufBG, scalarBG, err := q.bind(wk.entry.Name, p, bd)
	if err != nil {
		return err
	}
	enc, err := q.pending()
	if err != nil {
		return err
	}

	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: wk.entry.Name})
	pass.SetPipeline(p.compute)
	pass.SetBindGroup(bufferGroup, bufBG, nil)
	if scalarBG != nil {
		pass.SetBindGroup(scalarGroup, scalarBG, nil)
	}
	pass.Dispatch(uint32(groups), 1, 1) //nolint:gosec // bounded by MaxWorkGroupsPerDim
	pass.End()
	q.passes++
	slogger().Debug("wgpu: dispatch", "kernel", wk.entry.Name, "global", global, "local", local)
	return nil
}

// bind creates the bind groups of one dispatch. The scalar uniform gets its
// own buffer so later dispatches in the same submission cannot overwrite it.
func (q *queue) bind(label string, p *pipeline, bd binding) (hal.BindGroup, hal.BindGroup, error) {
	dev := q.ctx.hal
	entries := make([]gputypes.BindGroupEntry, len(bd.buffers))
	for i, b := range bd.buffers {
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(b.index), //nolint:gosec // argument index fits uint32
			Resource: gputypes.BufferBinding{Buffer: b.buf.hal.NativeHandle(), Offset: 0, Size: b.buf.padded},
		}
	}
	bufBG, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: label + "_buffers", Layout: p.bufLayout, Entries: entries})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	q.bindGroups = append(q.bindGroups, bufBG)

	if len(bd.scalars) == 0 {
		return bufBG, nil, nil
	}
	size := uint64(len(bd.scalars))
	ub, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_scalars", Size: size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create uniform buffer: %w", err)
	}
	q.uniforms = append(q.uniforms, ub)
	q.ctx.queue.WriteBuffer(ub, 0, bd.scalars)

	scalarBG, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: label + "_scalars", Layout: p.scalarLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: size}},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	q.bindGroups = append(q.bindGroups, scalarBG)
	return bufBG, scalarBG, nil
}

func (q *queue) pending() (hal.CommandEncoder, error) {
	if q.encoder != nil {
		return q.encoder, nil
	}
	enc, err := q.ctx.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "toys_queue"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("toys_queue"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	q.encoder = enc
	return enc, nil
}

// flushLocked appends tail to the pending commands, submits them and waits
// for completion. Without pending commands or tail it does nothing.
func (q *queue) flushLocked(tail func(hal.CommandEncoder)) error {
	if q.encoder == nil && tail == nil {
		return nil
	}
	defer q.releaseTransient()

	enc, err := q.pending()
	if err != nil {
		return err
	}
	if tail != nil {
		tail(enc)
	}
	q.encoder = nil
	passes := q.passes
	q.passes = 0

	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	dev := q.ctx.hal
	defer dev.FreeCommandBuffer(cmdBuf)

	fence, err := dev.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer dev.DestroyFence(fence)

	q.ctx.submit.Lock()
	defer q.ctx.submit.Unlock()
	if err := q.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := dev.Wait(fence, 1, FenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wgpu: wait for GPU: timed out after %v", FenceTimeout)
	}
	slogger().Debug("wgpu: submitted", "passes", passes)
	return nil
}

func (q *queue) releaseTransient() {
	dev := q.ctx.hal
	for _, bg := range q.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	for _, ub := range q.uniforms {
		dev.DestroyBuffer(ub)
	}
	q.bindGroups = q.bindGroups[:0]
	q.uniforms = q.uniforms[:0]
}

func (q *queue) Finish() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushLocked(nil)
}

func (q *queue) Release() {
	if err := q.Finish(); err != nil {
		slogger().Warn("wgpu: finish on release", "err", err)
	}
}
