// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package opencl implements the compute driver on vendor OpenCL runtimes
// through github.com/jgillich/go-opencl.
//
// The driver needs cgo and an OpenCL ICD loader, so it is only compiled with
// the opencl build tag. go.mod does not require the binding, which keeps
// default builds free of cgo; fetch it before the first tagged build:
//
//	go get github.com/jgillich/go-opencl/cl
//	go build -tags opencl ./...
//
// Without the tag this package is empty and registers no backend.
// Kernels are OpenCL C sources. Argument slots map one to one onto kernel
// parameters. Build failures carry the compiler log as *gpucore.BuildError.
package opencl
