package accel

import (
	"fmt"
	"strings"
)

// DeviceType classifies a compute device. Values are OpenCL device type bits.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
)

// String renders the type the way the device listing prints it. A type
// carrying several bits lists each one.
func (t DeviceType) String() string {
	var parts []string
	if t&DeviceTypeCPU != 0 {
		parts = append(parts, "CPU")
	}
	if t&DeviceTypeGPU != 0 {
		parts = append(parts, "GPU")
	}
	if t&DeviceTypeAccelerator != 0 {
		parts = append(parts, "Accelerator")
	}
	if t&DeviceTypeDefault != 0 {
		parts = append(parts, "Default")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Unknown(%#x)", uint64(t))
	}
	return strings.Join(parts, "|")
}

// MemFlags is the access mode of a device buffer, in OpenCL bit values.
type MemFlags uint64

const (
	MemReadWrite MemFlags = 1 << 0
	MemWriteOnly MemFlags = 1 << 1
	MemReadOnly  MemFlags = 1 << 2
)

// KernelCanRead reports whether kernels may read from a buffer with these flags.
func (f MemFlags) KernelCanRead() bool { return f&MemWriteOnly == 0 }

// KernelCanWrite reports whether kernels may write to a buffer with these flags.
func (f MemFlags) KernelCanWrite() bool { return f&MemReadOnly == 0 }

func (f MemFlags) String() string {
	switch {
	case f&MemReadOnly != 0:
		return "read-only"
	case f&MemWriteOnly != 0:
		return "write-only"
	default:
		return "read-write"
	}
}

// ElemType is the element type stored in a device buffer.
type ElemType int

const (
	Float32 ElemType = iota + 1
	Int32
	Uint32
)

// Size returns the element width in bytes.
func (e ElemType) Size() int {
	switch e {
	case Float32, Int32, Uint32:
		return 4
	}
	return 0
}

func (e ElemType) String() string {
	switch e {
	case Float32:
		return "float"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	}
	return fmt.Sprintf("ElemType(%d)", int(e))
}

// Kind identifies the class of an accelerator resource. Each kind has its
// own release call in the underlying API.
type Kind int

const (
	KindQueue Kind = iota + 1
	KindBuffer
	KindContext
	KindSampler
	KindProgram
	KindKernel
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindQueue:
		return "queue"
	case KindBuffer:
		return "buffer"
	case KindContext:
		return "context"
	case KindSampler:
		return "sampler"
	case KindProgram:
		return "program"
	case KindKernel:
		return "kernel"
	case KindEvent:
		return "event"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// InvalidStatus is the status reported when a released or foreign handle of
// this kind is used.
func (k Kind) InvalidStatus() Status {
	switch k {
	case KindQueue:
		return StatusInvalidCommandQueue
	case KindBuffer:
		return StatusInvalidMemObject
	case KindContext:
		return StatusInvalidContext
	case KindProgram:
		return StatusInvalidProgram
	case KindKernel:
		return StatusInvalidKernel
	case KindEvent:
		return StatusInvalidEvent
	}
	return StatusInvalidValue
}

// PlatformInfo describes one installed driver platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// DeviceInfo describes a compute device.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Type             DeviceType
	GlobalMemSize    uint64
	MaxComputeUnits  int
	MaxWorkGroupSize int
	Extensions       []string
}

// MemoryMB returns the global memory size in whole megabytes.
func (d DeviceInfo) MemoryMB() uint64 {
	return d.GlobalMemSize / (1024 * 1024)
}
