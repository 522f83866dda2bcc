// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/gpucore"
)

func init() {
	backend.Register(backend.BackendOpenCL, func() (gpucore.Backend, error) {
		return New()
	})
}

// Backend is the OpenCL driver.
type Backend struct {
	platforms []*platform
}

var _ gpucore.Backend = (*Backend)(nil)

// New enumerates the installed OpenCL platforms. It fails when no ICD
// loader is present.
func New() (*Backend, error) {
	plats, err := cl.GetPlatforms()
	if err != nil {
		msg := "query platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("opencl: %s: %w", msg, err)
	}
	b := &Backend{}
	for _, p := range plats {
		b.platforms = append(b.platforms, &platform{backend: b, cl: p, name: p.Name()})
	}
	slogger().Debug("opencl: platforms found", "count", len(b.platforms))
	return b, nil
}

// Name returns "opencl".
func (b *Backend) Name() string { return backend.BackendOpenCL }

// Platforms returns the installed platforms.
func (b *Backend) Platforms() ([]gpucore.Platform, error) {
	out := make([]gpucore.Platform, len(b.platforms))
	for i, p := range b.platforms {
		out[i] = p
	}
	return out, nil
}

// CreateContext creates an OpenCL context over devices. Every device must
// come from the same platform.
func (b *Backend) CreateContext(devices []gpucore.Device) (gpucore.Context, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("opencl: context needs at least one device")
	}
	devs := make([]*device, len(devices))
	raw := make([]*cl.Device, len(devices))
	for i, d := range devices {
		od, ok := d.(*device)
		if !ok || od.platform.backend != b {
			return nil, gpucore.ErrForeignResource
		}
		if i > 0 && od.platform != devs[0].platform {
			return nil, fmt.Errorf("opencl: context devices span several platforms")
		}
		devs[i], raw[i] = od, od.cl
	}
	ctx, err := cl.CreateContext(raw)
	if err != nil {
		return nil, fmt.Errorf("opencl: create context: %w", err)
	}
	slogger().Info("opencl: context created", "devices", len(devs), "platform", devs[0].platform.name)
	return &computeContext{cl: ctx, devices: devs}, nil
}

// SetLogger sets the driver's logger.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

type platform struct {
	backend *Backend
	cl      *cl.Platform
	name    string
}

func (p *platform) Name() string { return p.name }

// Devices queries the platform. A platform without matching devices yields
// an empty slice.
func (p *platform) Devices(filter gpucore.DeviceType) ([]gpucore.Device, error) {
	devs, err := p.cl.GetDevices(clDeviceType(filter))
	if errors.Is(err, cl.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opencl: %s: list devices: %w", p.name, err)
	}
	out := make([]gpucore.Device, 0, len(devs))
	for _, d := range devs {
		out = append(out, &device{platform: p, cl: d, info: deviceInfo(p.name, d)})
	}
	return out, nil
}

func clDeviceType(t gpucore.DeviceType) cl.DeviceType {
	switch t {
	case gpucore.DeviceTypeCPU:
		return cl.DeviceTypeCPU
	case gpucore.DeviceTypeGPU:
		return cl.DeviceTypeGPU
	case gpucore.DeviceTypeAll:
		return cl.DeviceTypeAll
	default:
		return cl.DeviceTypeDefault
	}
}

func deviceInfo(platform string, d *cl.Device) gpucore.DeviceInfo {
	info := gpucore.DeviceInfo{
		Name:             strings.TrimSpace(d.Name()),
		Platform:         platform,
		Type:             gpucore.DeviceTypeGPU,
		ComputeUnits:     d.MaxComputeUnits(),
		MaxWorkGroupSize: d.MaxWorkGroupSize(),
	}
	if d.Type()&cl.DeviceTypeCPU != 0 {
		info.Type = gpucore.DeviceTypeCPU
	}
	switch d.LocalMemType() {
	case cl.LocalMemTypeLocal:
		info.LocalMem = gpucore.LocalMemLocal
	case cl.LocalMemTypeGlobal:
		info.LocalMem = gpucore.LocalMemGlobal
	default:
		info.LocalMem = gpucore.LocalMemNone
	}
	return info
}

type device struct {
	platform *platform
	cl       *cl.Device
	info     gpucore.DeviceInfo
}

func (d *device) Info() gpucore.DeviceInfo { return d.info }
