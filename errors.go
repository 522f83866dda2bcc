package toys

import (
	"errors"
	"fmt"

	"github.com/gogpu/toys/scene"
)

// Precondition errors. They are returned, never panicked, and none of them
// is retried by the pipeline.
var (
	// ErrNoDeviceFound is returned when the device filter matches nothing.
	ErrNoDeviceFound = errors.New("toys: no device found")

	// ErrUnboundArgument is returned when a dispatch finds an argument slot
	// that was never bound.
	ErrUnboundArgument = errors.New("toys: kernel argument not bound")

	// ErrBufferReleased is returned when a freed buffer is used.
	ErrBufferReleased = errors.New("toys: buffer released")

	// ErrInvalidWorkGroupSize is returned for a work-group size outside
	// 1..device maximum.
	ErrInvalidWorkGroupSize = errors.New("toys: invalid work-group size")

	// ErrInvalidState is returned when a pipeline operation is not allowed
	// in the current state.
	ErrInvalidState = errors.New("toys: invalid pipeline state")

	// ErrArgumentType is returned when a scalar slot is rebound with a
	// scalar of another type.
	ErrArgumentType = errors.New("toys: argument type mismatch")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("toys: session closed")
)

// SetupError reports a failure while preparing devices or buffers: no
// matching device, context or queue creation, buffer allocation.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("toys: setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// KernelCompileError reports a kernel build failure. Log is the device
// build log, verbatim.
type KernelCompileError struct {
	Device string
	Log    string
	Err    error
}

func (e *KernelCompileError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("toys: kernel compilation failed on %s: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("toys: kernel compilation failed on %s:\n%s", e.Device, e.Log)
}

func (e *KernelCompileError) Unwrap() error { return e.Err }

// TransferError reports a failed host/device copy. The session should be
// considered corrupt.
type TransferError struct {
	Buffer string
	Op     string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("toys: %s %q: %v", e.Op, e.Buffer, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// SceneParseError reports a malformed scene file.
type SceneParseError = scene.ParseError
