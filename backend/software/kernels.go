package software

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/gogpu/toys/gpucore"
)

// KernelFunc is the body of a software kernel. It is called once per
// work-item with the item's global index. Like a device kernel it must
// bound-check gid against the true problem size, since the global extent is
// rounded up to a multiple of the work-group size.
//
// Invocations of one dispatch run concurrently; a KernelFunc must only
// write buffer elements owned by its work-item.
type KernelFunc func(gid int, args *Args)

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[string]KernelFunc)
)

// Register makes fn the implementation of the entry point called name.
// A later registration replaces an earlier one.
func Register(name string, fn KernelFunc) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[name] = fn
}

// Unregister removes the implementation of name.
func Unregister(name string) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	delete(kernels, name)
}

// Registered returns the registered entry-point names, sorted.
func Registered() []string {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupKernel(name string) (KernelFunc, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	fn, ok := kernels[name]
	return fn, ok
}

// Args is the argument list seen by a [KernelFunc]. Accessors panic when a
// slot holds the wrong kind of argument, which surfaces as a dispatch error.
type Args struct {
	slots []slot
}

type slot struct {
	buf    *buffer
	scalar gpucore.Scalar
}

// Len returns the number of argument slots.
func (a *Args) Len() int { return len(a.slots) }

func (a *Args) buffer(i int) *buffer {
	b := a.slots[i].buf
	if b == nil {
		panic(fmt.Sprintf("software: argument %d is not a buffer", i))
	}
	return b
}

func (a *Args) scalarOf(i int, kind gpucore.ScalarKind) gpucore.Scalar {
	s := a.slots[i].scalar
	if a.slots[i].buf != nil || s.Kind != kind {
		panic(fmt.Sprintf("software: argument %d is not a %v scalar", i, kind))
	}
	return s
}

// Bytes returns the contents of buffer argument i.
func (a *Args) Bytes(i int) []byte { return a.buffer(i).bytes() }

// Uint32s returns buffer argument i as 32-bit unsigned words.
func (a *Args) Uint32s(i int) []uint32 {
	b := a.buffer(i)
	return b.words[:b.size/4]
}

// Float32s returns buffer argument i as 32-bit floats.
func (a *Args) Float32s(i int) []float32 {
	b := a.buffer(i)
	if b.size < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.words[0])), b.size/4)
}

// Int32s returns buffer argument i as 32-bit signed words.
func (a *Args) Int32s(i int) []int32 {
	b := a.buffer(i)
	if b.size < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.words[0])), b.size/4)
}

// Uint32 returns scalar argument i.
func (a *Args) Uint32(i int) uint32 { return a.scalarOf(i, gpucore.ScalarUint32).Uint32() }

// Int32 returns scalar argument i.
func (a *Args) Int32(i int) int32 { return a.scalarOf(i, gpucore.ScalarInt32).Int32() }

// Float32 returns scalar argument i.
func (a *Args) Float32(i int) float32 { return a.scalarOf(i, gpucore.ScalarFloat32).Float32() }
