package gpucore

import (
	"errors"
	"fmt"
)

// Driver-level errors.
var (
	// ErrEntryPointNotFound is returned by Program.Kernel when the compiled
	// program has no kernel with the requested name.
	ErrEntryPointNotFound = errors.New("gpucore: entry point not found")

	// ErrReleased is returned when an operation uses a released resource.
	ErrReleased = errors.New("gpucore: resource released")

	// ErrSizeMismatch is returned by transfers whose host slice length does
	// not match the device buffer size.
	ErrSizeMismatch = errors.New("gpucore: host and device sizes differ")

	// ErrForeignResource is returned when a resource created by one driver
	// is passed to another.
	ErrForeignResource = errors.New("gpucore: resource belongs to another driver")
)

// BuildError reports a failed program build. Log holds the compiler output
// verbatim so callers can surface it to the user.
type BuildError struct {
	Log string
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return "gpucore: program build failed"
	}
	return fmt.Sprintf("gpucore: program build failed:\n%s", e.Log)
}

// Backend is a compute driver: the entry point used to enumerate hardware
// and open contexts. Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the registry name of the driver, e.g. "opencl".
	Name() string

	// Platforms enumerates the platforms the driver can see. A machine
	// without any platform returns an empty slice, not an error.
	Platforms() ([]Platform, error)

	// CreateContext opens a context over devices. All devices must come
	// from this driver.
	CreateContext(devices []Device) (Context, error)
}

// Platform is a vendor runtime exposing a set of devices.
type Platform interface {
	// Name returns the platform name.
	Name() string

	// Devices returns the devices matching filter. DeviceTypeDefault
	// returns at most one device.
	Devices(filter DeviceType) ([]Device, error)
}

// Device is a compute device reported by a [Platform].
type Device interface {
	// Info returns the immutable device description.
	Info() DeviceInfo
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. Must be greater than zero.
	Size int

	// Access declares how kernels use the buffer.
	Access AccessMode

	// Init optionally seeds the contents. When set its length must equal Size.
	Init []byte
}

// BuildOptions configures program compilation.
type BuildOptions struct {
	// IncludePaths are searched, in order, for #include directives.
	IncludePaths []string

	// Defines are preprocessor definitions passed to the compiler.
	Defines map[string]string

	// Extra holds driver-specific options passed through verbatim.
	Extra []string
}

// Context owns the buffers and programs shared by its devices.
type Context interface {
	// Devices returns the devices the context was created over.
	Devices() []Device

	// CreateQueue creates an ordered submission queue for device.
	CreateQueue(device Device) (Queue, error)

	// CreateBuffer allocates a device buffer.
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CreateProgram compiles source for device. A compile failure is
	// reported as *BuildError.
	CreateProgram(device Device, source string, opts BuildOptions) (Program, error)

	// Release frees the context. Resources created from it must be released
	// first.
	Release()
}

// Buffer is a fixed-size device allocation.
type Buffer interface {
	Label() string
	Size() int
	Access() AccessMode
	Release()
}

// Program is a compiled kernel source for one device.
type Program interface {
	// Kernel returns the entry point called name.
	Kernel(name string) (Kernel, error)

	// BuildLog returns the compiler output of a successful build, which may
	// contain warnings.
	BuildLog() string

	Release()
}

// Kernel is one entry point of a [Program] together with its argument slots.
type Kernel interface {
	// Name returns the entry point name.
	Name() string

	// PreferredWorkGroupSize queries the device for the best work-group
	// size of this kernel.
	PreferredWorkGroupSize() (int, error)

	// SetBuffer binds buffer to argument slot index.
	SetBuffer(index int, buffer Buffer) error

	// SetScalar binds a scalar value to argument slot index.
	SetScalar(index int, value Scalar) error

	Release()
}

// Queue is an in-order command queue bound to one device.
type Queue interface {
	Device() Device

	// WriteBuffer uploads data into buffer. len(data) must equal the
	// buffer size. A non-blocking write may return before the copy runs.
	WriteBuffer(buffer Buffer, data []byte, blocking bool) error

	// ReadBuffer downloads buffer into dst. len(dst) must equal the
	// buffer size.
	ReadBuffer(buffer Buffer, dst []byte, blocking bool) error

	// Dispatch enqueues kernel over global work-items in groups of local.
	// A local of 0 lets the driver choose.
	Dispatch(kernel Kernel, global, local int) error

	// Finish blocks until every enqueued operation has completed.
	Finish() error

	Release()
}
