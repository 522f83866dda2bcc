// Package gpucore defines the backend-neutral driver contract used by the
// toys dispatch core.
//
// A driver exposes one or more platforms, each enumerating compute devices.
// A [Context] created over a set of devices owns the buffers and programs
// they share; a [Queue] is the ordered per-device submission channel.
//
//	               +------------------+
//	               |  toys (session,  |
//	               | binder, pipeline)|
//	               +--------+---------+
//	                        |
//	     +------------------+------------------+
//	     |                  |                  |
//	+----v-----+      +-----v-----+      +-----v-----+
//	| software |      |   wgpu    |      |  opencl   |
//	| (Go fns) |      | (hal+naga)|      | (libCL)   |
//	+----------+      +-----------+      +-----------+
//
// # Resource lifecycle
//
// Resources are created through the [Context] and released explicitly with
// their Release method. Releasing a resource still referenced by a bound
// kernel argument is a caller error; the dispatch core tracks this and
// refuses to dispatch.
//
// # Ordering
//
// Operations on one [Queue] complete in submission order. Non-blocking
// writes and reads are ordered by the queue but their host memory must not
// be touched until [Queue.Finish] or a later blocking operation returns.
package gpucore
