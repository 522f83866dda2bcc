// Package software implements the host CPU compute driver.
//
// Kernels are Go functions registered under their entry-point name with
// [Register]. A program compiled by this driver is the kernel source text;
// its compute entry points are discovered from the source and bound to the
// registered functions, so the same WGSL or OpenCL C file that a GPU driver
// compiles also drives the software path.
//
// The queue executes every operation synchronously in submission order.
// Work-items of one dispatch run concurrently on a shared worker pool.
package software

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/parallel"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Backend, error) {
		return New(DefaultConfig()), nil
	})
}

// DefaultWorkGroupSize is reported for kernels that do not declare one.
const DefaultWorkGroupSize = 64

// PlatformConfig describes one simulated platform.
type PlatformConfig struct {
	Name    string
	Devices []gpucore.DeviceInfo
}

// Config configures the software driver.
type Config struct {
	// Platforms are the simulated platforms, in enumeration order.
	Platforms []PlatformConfig

	// Workers is the number of goroutines executing work-items.
	// 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a single platform exposing the host CPU.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Platforms: []PlatformConfig{{
			Name: "Go Software",
			Devices: []gpucore.DeviceInfo{{
				Name:             fmt.Sprintf("Go CPU (%d threads)", n),
				Type:             gpucore.DeviceTypeCPU,
				ComputeUnits:     n,
				MaxWorkGroupSize: 1024,
				LocalMem:         gpucore.LocalMemGlobal,
			}},
		}},
	}
}

// Stats counts the operations a Backend has executed.
type Stats struct {
	Writes       uint64
	Reads        uint64
	Dispatches   uint64
	Invocations  uint64
	BytesWritten uint64
	BytesRead    uint64
	Allocations  uint64
	Releases     uint64
}

// Backend is the software compute driver.
type Backend struct {
	platforms []*platform

	poolOnce sync.Once
	pool     *parallel.WorkerPool
	workers  int

	writes, reads, dispatches, invocations atomic.Uint64
	bytesWritten, bytesRead                atomic.Uint64
	allocations, releases                  atomic.Uint64
}

var _ gpucore.Backend = (*Backend)(nil)

// New creates a software driver for cfg.
func New(cfg Config) *Backend {
	b := &Backend{workers: cfg.Workers}
	for _, pc := range cfg.Platforms {
		p := &platform{name: pc.Name}
		for _, info := range pc.Devices {
			info.Platform = pc.Name
			p.devices = append(p.devices, &device{backend: b, info: info})
		}
		b.platforms = append(b.platforms, p)
	}
	return b
}

// Name returns "software".
func (b *Backend) Name() string { return backend.BackendSoftware }

// Platforms returns the configured platforms.
func (b *Backend) Platforms() ([]gpucore.Platform, error) {
	out := make([]gpucore.Platform, len(b.platforms))
	for i, p := range b.platforms {
		out[i] = p
	}
	return out, nil
}

// CreateContext opens a context over devices of this driver.
func (b *Backend) CreateContext(devices []gpucore.Device) (gpucore.Context, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("software: context needs at least one device")
	}
	devs := make([]*device, len(devices))
	for i, d := range devices {
		sd, ok := d.(*device)
		if !ok || sd.backend != b {
			return nil, gpucore.ErrForeignResource
		}
		devs[i] = sd
	}
	slogger().Debug("software: context created", "devices", len(devs))
	return &computeContext{backend: b, devices: devs}, nil
}

// SetLogger sets the driver's logger.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Stats returns a snapshot of the operation counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Writes:       b.writes.Load(),
		Reads:        b.reads.Load(),
		Dispatches:   b.dispatches.Load(),
		Invocations:  b.invocations.Load(),
		BytesWritten: b.bytesWritten.Load(),
		BytesRead:    b.bytesRead.Load(),
		Allocations:  b.allocations.Load(),
		Releases:     b.releases.Load(),
	}
}

// Close stops the worker pool. The driver can still be used afterwards;
// dispatches then run on the calling goroutine.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *Backend) workerPool() *parallel.WorkerPool {
	b.poolOnce.Do(func() {
		b.pool = parallel.NewWorkerPool(b.workers)
	})
	return b.pool
}

type platform struct {
	name    string
	devices []*device
}

func (p *platform) Name() string { return p.name }

func (p *platform) Devices(filter gpucore.DeviceType) ([]gpucore.Device, error) {
	var out []gpucore.Device
	for _, d := range p.devices {
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
	info    gpucore.DeviceInfo
}

func (d *device) Info() gpucore.DeviceInfo { return d.info }
