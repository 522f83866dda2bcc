// Package toys provides the host-side machinery of progressive GPU compute
// demos: device selection, buffer management, kernel binding and an adaptive
// frame pipeline.
//
// # Overview
//
// A toy is a small interactive program whose image is produced by compute
// kernels. The host keeps a compact scene description, uploads it when it
// changes, issues as many kernel passes per frame as the frame budget
// allows and reads the display buffer back.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/toys"
//	    _ "github.com/gogpu/toys/backend/software"
//	)
//
//	s, err := toys.Open(ctx, toys.SessionConfig{DeviceType: gpucore.DeviceTypeAll})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	prog, err := s.Compile(src, toys.CompileOptions{})
//	k, err := prog.Resolve("render")
//	err = k.Bind(toys.ArgTable{toys.BufferArg(frame), toys.Uint32Arg(width)})
//
// # Architecture
//
// The library is organized into:
//   - Session: driver context, per-device queues, buffers and programs
//   - Kernel binder: argument tables, work-group size, dispatch rounding
//   - Pipeline: frame loop, mirror sync, frame budget, captions
//   - Drivers: opencl, wgpu and software behind the gpucore contract
//
// # Frame Budget
//
// Progressive toys start at one pass per frame. A frame finishing under
// the low threshold adds a pass, one over the high threshold removes one,
// and frames in between keep the count. Any host-state change or resize
// restarts accumulation and resets the count to one.
package toys

// Version is the current version of the library.
const Version = "0.1.0"
