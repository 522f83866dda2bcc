// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu implements the compute driver on top of the gogpu/wgpu
// hardware abstraction layer.
//
// Kernels are WGSL compute entry points. Sources are preprocessed by
// kernelsrc and compiled to SPIR-V with naga; compile failures are reported
// as *gpucore.BuildError carrying the naga diagnostics.
//
// # Argument Binding
//
// WGSL has no positional kernel arguments, so argument slots map onto
// bindings:
//
//   - A buffer in slot i is bound at @group(0) @binding(i). Read-only
//     buffers are declared var<storage, read>, all others
//     var<storage, read_write>.
//   - Scalars are packed in slot order, 4 bytes each, into a uniform
//     struct at @group(1) @binding(0).
//
// # Submission
//
// Dispatches are recorded into a pending command encoder and submitted on
// the next blocking read, write or Finish. Each flush waits on a fence, so
// the queue behaves as an in-order queue from the host's point of view.
//
// The package registers itself as "wgpu" unless built with the nogpu tag.
package wgpu
