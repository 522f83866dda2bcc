package gpucore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DeviceType classifies a compute device. The same values are used as the
// filter passed to [Platform.Devices].
type DeviceType int

// Device types.
const (
	// DeviceTypeDefault is the platform's default device. As a filter it
	// matches the first device a platform reports.
	DeviceTypeDefault DeviceType = iota

	// DeviceTypeCPU is a host processor exposed as a compute device.
	DeviceTypeCPU

	// DeviceTypeGPU is a discrete or integrated graphics processor.
	DeviceTypeGPU

	// DeviceTypeAll matches every device. It is only meaningful as a filter.
	DeviceTypeAll
)

// String returns the string representation of DeviceType.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeDefault:
		return "DEFAULT"
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeAll:
		return "ALL"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// ParseDeviceType parses a device type filter name. Matching is case
// insensitive and accepts "any" as an alias of "all".
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return DeviceTypeDefault, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "gpu":
		return DeviceTypeGPU, nil
	case "all", "any":
		return DeviceTypeAll, nil
	default:
		return DeviceTypeDefault, fmt.Errorf("gpucore: unknown device type %q", s)
	}
}

// Accepts reports whether a device of type t passes filter. Default
// filtering is resolved by the platform, so it accepts every type here.
func (t DeviceType) Accepts(filter DeviceType) bool {
	switch filter {
	case DeviceTypeAll, DeviceTypeDefault:
		return true
	default:
		return t == filter
	}
}

// LocalMemKind describes how a device implements work-group local memory.
type LocalMemKind int

// Local memory kinds.
const (
	// LocalMemNone means the device has no local memory.
	LocalMemNone LocalMemKind = iota

	// LocalMemLocal is dedicated on-chip memory.
	LocalMemLocal

	// LocalMemGlobal is local memory emulated in global memory.
	LocalMemGlobal
)

// String returns the string representation of LocalMemKind.
func (k LocalMemKind) String() string {
	switch k {
	case LocalMemNone:
		return "None"
	case LocalMemLocal:
		return "Local"
	case LocalMemGlobal:
		return "Global"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// DeviceInfo describes a compute device. It is immutable once reported.
type DeviceInfo struct {
	// Name is the human-readable device name.
	Name string

	// Platform is the name of the platform that reported the device.
	Platform string

	// Type is the device class.
	Type DeviceType

	// ComputeUnits is the number of parallel compute units, or 0 when the
	// driver cannot report it.
	ComputeUnits int

	// MaxWorkGroupSize is the largest number of work-items in one work-group.
	MaxWorkGroupSize int

	// LocalMem is the kind of work-group local memory.
	LocalMem LocalMemKind
}

// AccessMode declares how kernels access a buffer. It is fixed at
// allocation time.
type AccessMode int

// Buffer access modes.
const (
	// AccessReadOnly buffers are initialized from the host and only read by
	// kernels.
	AccessReadOnly AccessMode = iota + 1

	// AccessWriteOnly buffers are kernel output sinks read back by the host.
	AccessWriteOnly

	// AccessReadWrite buffers are device-resident scratch or accumulators.
	AccessReadWrite
)

// String returns the string representation of AccessMode.
func (m AccessMode) String() string {
	switch m {
	case AccessReadOnly:
		return "ReadOnly"
	case AccessWriteOnly:
		return "WriteOnly"
	case AccessReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined access modes.
func (m AccessMode) Valid() bool {
	return m >= AccessReadOnly && m <= AccessReadWrite
}

// ScalarKind is the element type of a scalar kernel argument.
type ScalarKind uint8

// Scalar kinds. All scalars are 32 bits wide.
const (
	ScalarUint32 ScalarKind = iota + 1
	ScalarInt32
	ScalarFloat32
)

// String returns the string representation of ScalarKind.
func (k ScalarKind) String() string {
	switch k {
	case ScalarUint32:
		return "u32"
	case ScalarInt32:
		return "i32"
	case ScalarFloat32:
		return "f32"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ScalarSize is the size in bytes of every scalar argument.
const ScalarSize = 4

// Scalar is a 32-bit kernel argument value with its declared type.
// The zero Scalar is invalid.
type Scalar struct {
	Kind ScalarKind
	Bits uint32
}

// Uint32 returns an unsigned scalar.
func Uint32(v uint32) Scalar { return Scalar{Kind: ScalarUint32, Bits: v} }

// Int32 returns a signed scalar.
func Int32(v int32) Scalar { return Scalar{Kind: ScalarInt32, Bits: uint32(v)} } //nolint:gosec // bit reinterpretation

// Float32 returns a floating point scalar.
func Float32(v float32) Scalar { return Scalar{Kind: ScalarFloat32, Bits: math.Float32bits(v)} }

// Valid reports whether the scalar carries a known kind.
func (s Scalar) Valid() bool { return s.Kind >= ScalarUint32 && s.Kind <= ScalarFloat32 }

// Uint32 returns the raw bits as an unsigned value.
func (s Scalar) Uint32() uint32 { return s.Bits }

// Int32 returns the raw bits as a signed value.
func (s Scalar) Int32() int32 { return int32(s.Bits) } //nolint:gosec // bit reinterpretation

// Float32 returns the raw bits as a float.
func (s Scalar) Float32() float32 { return math.Float32frombits(s.Bits) }

// Bytes returns the little-endian encoding of the scalar.
func (s Scalar) Bytes() [ScalarSize]byte {
	var b [ScalarSize]byte
	binary.LittleEndian.PutUint32(b[:], s.Bits)
	return b
}

// String returns the value formatted according to its kind.
func (s Scalar) String() string {
	switch s.Kind {
	case ScalarUint32:
		return fmt.Sprintf("%du", s.Uint32())
	case ScalarInt32:
		return fmt.Sprintf("%di", s.Int32())
	case ScalarFloat32:
		return fmt.Sprintf("%gf", s.Float32())
	default:
		return "invalid"
	}
}
