// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Backend, error) {
		return New()
	})
}

// Device limits reported for every adapter. WebGPU guarantees these on all
// conformant implementations.
const (
	MaxWorkGroupSize    = 256
	MaxWorkGroupsPerDim = 65535
)

// platformName is the name of the single platform this driver exposes.
const platformName = "WebGPU (Vulkan)"

// ErrNoHAL is returned by NewShared when the provider does not expose
// hal.Device and hal.Queue.
var ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

// Backend is the wgpu compute driver. A Backend created by New owns its hal
// instance; one created by NewShared borrows a device from a host
// application and never destroys it.
type Backend struct {
	mu       sync.Mutex
	instance hal.Instance
	devices  []*device
}

var _ gpucore.Backend = (*Backend)(nil)

// New creates an instance on the Vulkan HAL and enumerates its adapters.
// A machine without adapters yields a driver with no devices.
func New() (*Backend, error) {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	b := &Backend{instance: instance}
	adapters := instance.EnumerateAdapters(nil)
	for i := range adapters {
		a := adapters[i]
		b.devices = append(b.devices, &device{
			backend: b,
			adapter: a.Adapter,
			info:    adapterInfo(a.Info.Name, a.Info.DeviceType),
		})
	}
	slogger().Debug("wgpu: instance created", "adapters", len(b.devices))
	return b, nil
}

// NewShared creates a driver over the device of a host application, e.g. a
// gogpu window. The provider must also implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func NewShared(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}

	b := &Backend{}
	b.devices = []*device{{
		backend: b,
		info:    adapterInfo("shared device", gputypes.DeviceTypeDiscreteGPU),
		hal:     dev,
		queue:   q,
		shared:  true,
	}}
	slogger().Info("wgpu: using shared device")
	return b, nil
}

func adapterInfo(name string, t gputypes.DeviceType) gpucore.DeviceInfo {
	dt := gpucore.DeviceTypeCPU
	if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
		dt = gpucore.DeviceTypeGPU
	}
	return gpucore.DeviceInfo{
		Name:             name,
		Platform:         platformName,
		Type:             dt,
		MaxWorkGroupSize: MaxWorkGroupSize,
		LocalMem:         gpucore.LocalMemLocal,
	}
}

// Name returns "wgpu".
func (b *Backend) Name() string { return backend.BackendWGPU }

// Platforms returns the single Vulkan platform, or none without adapters.
func (b *Backend) Platforms() ([]gpucore.Platform, error) {
	if len(b.devices) == 0 {
		return nil, nil
	}
	return []gpucore.Platform{platform{b}}, nil
}

// CreateContext opens the hal device behind d. WebGPU buffers belong to a
// single device, so a context spans exactly one.
func (b *Backend) CreateContext(devices []gpucore.Device) (gpucore.Context, error) {
	if len(devices) != 1 {
		return nil, fmt.Errorf("wgpu: context needs exactly one device, got %d", len(devices))
	}
	d, ok := devices[0].(*device)
	if !ok || d.backend != b {
		return nil, gpucore.ErrForeignResource
	}
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	slogger().Info("wgpu: context created", "device", d.info.Name)
	return &computeContext{device: d, hal: d.hal, queue: d.queue}, nil
}

// SetLogger sets the driver's logger.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Close destroys the devices and the instance the driver owns.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.hal != nil && !d.shared {
			d.hal.Destroy()
		}
		d.hal, d.queue = nil, nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
}

type platform struct{ b *Backend }

func (p platform) Name() string { return platformName }

func (p platform) Devices(filter gpucore.DeviceType) ([]gpucore.Device, error) {
	var out []gpucore.Device
	for _, d := range p.b.devices {
		if !d.info.Type.Accepts(filter) {
			continue
		}
		out = append(out, d)
		if filter == gpucore.DeviceTypeDefault {
			break
		}
	}
	return out, nil
}

type device struct {
	backend *Backend
	adapter hal.Adapter
	info    gpucore.DeviceInfo
	hal     hal.Device
	queue   hal.Queue
	shared  bool
}

func (d *device) Info() gpucore.DeviceInfo { return d.info }

func (d *device) ensureOpen() error {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if d.hal != nil {
		return nil
	}
	if d.adapter == nil {
		return fmt.Errorf("wgpu: device %s: %w", d.info.Name, gpucore.ErrReleased)
	}
	od, err := d.adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("wgpu: open device %s: %w", d.info.Name, err)
	}
	d.hal, d.queue = od.Device, od.Queue
	return nil
}
