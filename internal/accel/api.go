// Package accel defines the accelerator compute API the harness is written
// against. Runtimes (the pure-Go software device, OpenCL) implement these
// interfaces; everything above this package only sees handles.
package accel

import "time"

// Driver is an installed compute runtime.
type Driver interface {
	// Name is a short identifier such as "soft" or "opencl".
	Name() string

	// Platforms enumerates the platforms exposed by the runtime.
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one vendor implementation.
type Platform interface {
	Info() PlatformInfo
	Devices() ([]Device, error)

	// CreateContext creates a compute context bound to device. The device
	// must belong to this platform.
	CreateContext(device Device) (Context, error)
}

// Device is one compute device. Devices are not resources: they are owned by
// the platform and never released.
type Device interface {
	Info() DeviceInfo
}

// Resource is a handle that must be released exactly once.
type Resource interface {
	Kind() Kind
	Release() error
}

// QueueProperties configure a command queue at creation.
type QueueProperties uint64

const (
	QueueOutOfOrder QueueProperties = 1 << 0
	QueueProfiling  QueueProperties = 1 << 1
)

// Context is an execution environment bound to one device.
type Context interface {
	Resource
	Device() Device

	// CreateQueue creates a command queue on the context's device.
	CreateQueue(props QueueProperties) (Queue, error)

	// CreateBuffer allocates count elements of elem. A non-nil host slice is
	// copied into the new buffer and must hold exactly count elements;
	// a nil host slice leaves the contents unspecified.
	CreateBuffer(flags MemFlags, elem ElemType, count int, host []byte) (Buffer, error)

	// CreateProgram wraps kernel source text. It is not compiled until Build.
	CreateProgram(source string) (Program, error)
}

// Queue is an in-order command queue. Commands complete in submission order.
type Queue interface {
	Resource

	// EnqueueKernel submits a one-dimensional launch. global must be a
	// multiple of local. The returned event is owned by the caller.
	EnqueueKernel(k Kernel, global, local int) (Event, error)

	// ReadBuffer copies the buffer contents into dst and returns once the
	// copy is complete.
	ReadBuffer(b Buffer, dst []byte) error

	// WriteBuffer copies src into the buffer and returns once the copy is
	// complete.
	WriteBuffer(b Buffer, src []byte) error

	// Finish blocks until every submitted command has completed.
	Finish() error
}

// Buffer is device memory.
type Buffer interface {
	Resource
	Flags() MemFlags
	Elem() ElemType
	Len() int
	Size() int
}

// Program holds kernel source and, after a successful Build, its executable.
type Program interface {
	Resource
	Build(device Device, options string) error

	// BuildLog returns the compiler output of the last build. It is
	// available after failed and successful builds alike.
	BuildLog(device Device) (string, error)

	CreateKernel(name string) (Kernel, error)
}

// Kernel is an entry point extracted from a built program.
type Kernel interface {
	Resource
	Name() string
	NumArgs() int

	// SetArg binds positional argument index. Accepted values are Buffer,
	// float32, int32 and uint32.
	SetArg(index int, value any) error
}

// Event is the completion signal of one enqueued command.
type Event interface {
	Resource

	// Wait blocks until the command finished and returns its error status.
	Wait() error
}

// Profile holds the timestamps of an event's command.
type Profile struct {
	Queued time.Time
	Start  time.Time
	End    time.Time
}

// Profiler is implemented by events that record command timestamps.
type Profiler interface {
	Profile() (Profile, error)
}
