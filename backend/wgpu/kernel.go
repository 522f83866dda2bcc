//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/kernelsrc"
)

// Bind groups of the argument mapping.
const (
	bufferGroup = 0
	scalarGroup = 1
)

// uniformAlign is the size granularity of the scalar uniform block.
const uniformAlign = 16

type slot struct {
	buf    *buffer
	scalar gpucore.Scalar
	set    bool
}

// pipelineKey identifies a pipeline variant: the work-group size baked into
// the shader and the binding signature of the arguments.
type pipelineKey struct {
	workGroupSize int
	signature     string
}

type pipeline struct {
	shader       hal.ShaderModule
	bufLayout    hal.BindGroupLayout
	scalarLayout hal.BindGroupLayout
	layout       hal.PipelineLayout
	compute      hal.ComputePipeline
}

type kernel struct {
	program *program
	entry   kernelsrc.EntryPoint

	mu        sync.Mutex
	slots     []slot
	pipelines map[pipelineKey]*pipeline
}

func (k *kernel) Name() string { return k.entry.Name }

func (k *kernel) PreferredWorkGroupSize() (int, error) {
	if k.entry.WorkGroupSize > 0 {
		return k.entry.WorkGroupSize, nil
	}
	return 64, nil
}

func (k *kernel) grow(index int) error {
	if index < 0 {
		return fmt.Errorf("wgpu: kernel %s: negative argument index %d", k.entry.Name, index)
	}
	for len(k.slots) <= index {
		k.slots = append(k.slots, slot{})
	}
	return nil
}

func (k *kernel) SetBuffer(index int, b gpucore.Buffer) error {
	wb, ok := b.(*buffer)
	if !ok || wb.ctx != k.program.ctx {
		return gpucore.ErrForeignResource
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.grow(index); err != nil {
		return err
	}
	k.slots[index] = slot{buf: wb, set: true}
	return nil
}

func (k *kernel) SetScalar(index int, s gpucore.Scalar) error {
	if !s.Valid() {
		return fmt.Errorf("wgpu: kernel %s: argument %d: invalid scalar", k.entry.Name, index)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.grow(index); err != nil {
		return err
	}
	k.slots[index] = slot{scalar: s, set: true}
	return nil
}

func (k *kernel) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	dev := k.program.ctx.hal
	for key, p := range k.pipelines {
		p.destroy(dev)
		delete(k.pipelines, key)
	}
}

// binding is the argument state captured for one dispatch.
type binding struct {
	buffers []bufferBinding
	scalars []byte
	key     pipelineKey
}

type bufferBinding struct {
	index int
	buf   *buffer
}

// capture snapshots the arguments, failing on gaps and released buffers.
func (k *kernel) capture(workGroupSize int) (binding, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var bd binding
	var sig strings.Builder
	for i, s := range k.slots {
		switch {
		case !s.set:
			return binding{}, fmt.Errorf("wgpu: kernel %s: argument %d not set", k.entry.Name, i)
		case s.buf != nil:
			if s.buf.released.Load() {
				return binding{}, fmt.Errorf("wgpu: kernel %s: argument %d: buffer %q: %w", k.entry.Name, i, s.buf.label, gpucore.ErrReleased)
			}
			bd.buffers = append(bd.buffers, bufferBinding{index: i, buf: s.buf})
			if s.buf.access == gpucore.AccessReadOnly {
				fmt.Fprintf(&sig, "r%d;", i)
			} else {
				fmt.Fprintf(&sig, "w%d;", i)
			}
		default:
			bd.scalars = binary.LittleEndian.AppendUint32(bd.scalars, s.scalar.Bits)
		}
	}
	if n := len(bd.scalars); n > 0 {
		fmt.Fprintf(&sig, "u%d", n)
		bd.scalars = append(bd.scalars, make([]byte, (uniformAlign-n%uniformAlign)%uniformAlign)...)
	}
	bd.key = pipelineKey{workGroupSize: workGroupSize, signature: sig.String()}
	return bd, nil
}

// pipelineFor returns the pipeline variant for bd, building it on first use.
func (k *kernel) pipelineFor(bd binding) (*pipeline, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if p, ok := k.pipelines[bd.key]; ok {
		return p, nil
	}

	src := k.program.source
	if bd.key.workGroupSize != k.entry.WorkGroupSize {
		var err error
		src, err = kernelsrc.WithWorkGroupSize(src, k.entry.Name, bd.key.workGroupSize)
		if err != nil {
			return nil, fmt.Errorf("wgpu: kernel %s: %w", k.entry.Name, err)
		}
	}
	spirv, err := compileSPIRV(src)
	if err != nil {
		return nil, &gpucore.BuildError{Log: err.Error()}
	}

	dev := k.program.ctx.hal
	p := &pipeline{}
	if err := p.build(dev, k.entry.Name, spirv, bd); err != nil {
		p.destroy(dev)
		return nil, fmt.Errorf("wgpu: kernel %s: %w", k.entry.Name, err)
	}
	k.pipelines[bd.key] = p
	slogger().Debug("wgpu: pipeline created", "kernel", k.entry.Name,
		"workgroup_size", bd.key.workGroupSize, "signature", bd.key.signature)
	return p, nil
}

func (p *pipeline) build(dev hal.Device, entry string, spirv []uint32, bd binding) error {
	shader, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  entry,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	p.shader = shader

	entries := make([]gputypes.BindGroupLayoutEntry, len(bd.buffers))
	for i, b := range bd.buffers {
		kind := gputypes.BufferBindingTypeStorage
		if b.buf.access == gpucore.AccessReadOnly {
			kind = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding: uint32(b.index), Visibility: gputypes.ShaderStageCompute, //nolint:gosec // argument index fits uint32
			Buffer: &gputypes.BufferBindingLayout{Type: kind},
		}
	}
	p.bufLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: entry + "_buffers", Entries: entries})
	if err != nil {
		return fmt.Errorf("create buffer bind group layout: %w", err)
	}
	layouts := []hal.BindGroupLayout{p.bufLayout}

	if len(bd.scalars) > 0 {
		p.scalarLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label: entry + "_scalars",
			Entries: []gputypes.BindGroupLayoutEntry{
				{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			},
		})
		if err != nil {
			return fmt.Errorf("create scalar bind group layout: %w", err)
		}
		layouts = append(layouts, p.scalarLayout)
	}

	p.layout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: entry, BindGroupLayouts: layouts})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.compute, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: entry, Layout: p.layout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: entry},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

func (p *pipeline) destroy(dev hal.Device) {
	if p.compute != nil {
		dev.DestroyComputePipeline(p.compute)
	}
	if p.layout != nil {
		dev.DestroyPipelineLayout(p.layout)
	}
	if p.scalarLayout != nil {
		dev.DestroyBindGroupLayout(p.scalarLayout)
	}
	if p.bufLayout != nil {
		dev.DestroyBindGroupLayout(p.bufLayout)
	}
	if p.shader != nil {
		dev.DestroyShaderModule(p.shader)
	}
}
