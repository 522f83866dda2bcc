// Package backend provides the registry of pluggable compute drivers.
//
// Drivers register themselves from init() functions and are selected at
// runtime. The software driver is registered by importing its package:
//
//	import _ "github.com/gogpu/toys/backend/software"
//
// # Driver Selection
//
// Use Default() to get the best available driver, or Get() to request a
// specific driver by name:
//
//	// Get the default (best available) driver
//	b, err := backend.Default()
//
//	// Or request a specific driver
//	b, err := backend.Get("wgpu")
//
// # Priority
//
// When several drivers are registered, Default tries them in this order
// and returns the first one that opens:
//
//  1. opencl   - vendor OpenCL runtimes (build tag "opencl")
//  2. wgpu     - pure Go WebGPU HAL (Vulkan)
//  3. software - Go kernels on the host CPU
package backend
