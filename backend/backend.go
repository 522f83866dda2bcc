package backend

import (
	"errors"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoBackends is returned by Default when nothing is registered.
	ErrNoBackends = errors.New("backend: no backends registered")
)

// Backend names used by the bundled drivers.
const (
	// BackendOpenCL is the OpenCL driver.
	BackendOpenCL = "opencl"

	// BackendWGPU is the WebGPU HAL driver.
	BackendWGPU = "wgpu"

	// BackendSoftware is the host CPU driver.
	BackendSoftware = "software"
)
