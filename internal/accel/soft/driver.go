// Package soft is an accelerator runtime that executes kernels on the host
// CPU. It exposes one platform with one CPU-class device. Kernel source is
// compiled by the clc package; launches spread work-groups across
// goroutines and commands run in submission order on a per-queue worker.
package soft

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

const (
	// MaxWorkGroupSize is the largest local size the device accepts.
	MaxWorkGroupSize = 1024

	defaultMemory = 4 << 30
)

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers sets how many goroutines execute work-groups of one launch.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMemoryLimit caps the bytes of buffer storage a context may hold.
func WithMemoryLimit(bytes uint64) Option {
	return func(d *Driver) { d.memory = bytes }
}

// Driver is the software runtime.
type Driver struct {
	log      *zap.Logger
	workers  int
	memory   uint64
	platform *Platform
}

// NewDriver creates the runtime with its single platform and device.
func NewDriver(log *zap.Logger, opts ...Option) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Driver{
		log:     log.Named("soft"),
		workers: runtime.NumCPU(),
		memory:  totalMemory(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.memory == 0 {
		d.memory = defaultMemory
	}
	d.platform = &Platform{driver: d}
	d.platform.device = &Device{
		platform: d.platform,
		info: accel.DeviceInfo{
			Name:             fmt.Sprintf("Software CPU device (%s/%s)", runtime.GOOS, runtime.GOARCH),
			Vendor:           "fxnlabs",
			Type:             accel.DeviceTypeCPU,
			GlobalMemSize:    d.memory,
			MaxComputeUnits:  d.workers,
			MaxWorkGroupSize: MaxWorkGroupSize,
			Extensions:       cpuFeatures(),
		},
	}
	return d
}

func (d *Driver) Name() string { return "soft" }

func (d *Driver) Platforms() ([]accel.Platform, error) {
	return []accel.Platform{d.platform}, nil
}

// Platform is the software platform.
type Platform struct {
	driver *Driver
	device *Device
}

func (p *Platform) Info() accel.PlatformInfo {
	return accel.PlatformInfo{
		Name:    "Kernelbench Software Platform",
		Vendor:  "fxnlabs",
		Version: "OpenCL 1.2 kernelbench-soft",
	}
}

func (p *Platform) Devices() ([]accel.Device, error) {
	return []accel.Device{p.device}, nil
}

func (p *Platform) CreateContext(device accel.Device) (accel.Context, error) {
	dev, ok := device.(*Device)
	if !ok || dev.platform != p {
		return nil, accel.Errorf("CreateContext", accel.StatusInvalidDevice, "device %v does not belong to platform %q", device, p.Info().Name)
	}
	ctx := &Context{
		handle: handle{kind: accel.KindContext, id: nextID()},
		device: dev,
		log:    p.driver.log,
		limit:  dev.info.GlobalMemSize,
	}
	p.driver.log.Debug("context created", zap.Stringer("context", ctx), zap.String("device", dev.info.Name))
	return ctx, nil
}

// Device is the host CPU seen as a compute device.
type Device struct {
	platform *Platform
	info     accel.DeviceInfo
}

func (d *Device) Info() accel.DeviceInfo { return d.info }

func (d *Device) String() string { return d.info.Name }

func cpuFeatures() []string {
	var features []string
	add := func(name string, ok bool) {
		if ok {
			features = append(features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add("sse2", cpu.X86.HasSSE2)
		add("sse4.1", cpu.X86.HasSSE41)
		add("sse4.2", cpu.X86.HasSSE42)
		add("avx", cpu.X86.HasAVX)
		add("avx2", cpu.X86.HasAVX2)
		add("fma", cpu.X86.HasFMA)
		add("avx512f", cpu.X86.HasAVX512F)
	case "arm64":
		add("fp", cpu.ARM64.HasFP)
		add("asimd", cpu.ARM64.HasASIMD)
		add("atomics", cpu.ARM64.HasATOMICS)
		add("sve", cpu.ARM64.HasSVE)
	}
	return features
}

var handleIDs atomic.Uint64

// handle carries the identity and release state shared by every resource.
type handle struct {
	kind     accel.Kind
	id       uint64
	released atomic.Bool
}

func nextID() uint64 { return handleIDs.Add(1) }

func (h *handle) Kind() accel.Kind { return h.kind }

func (h *handle) String() string { return fmt.Sprintf("%s#%d", h.kind, h.id) }

// release flips the handle to released. A second release reports the
// kind's invalid-object status.
func (h *handle) release(op string) error {
	if !h.released.CompareAndSwap(false, true) {
		return accel.Errorf(op, h.kind.InvalidStatus(), "%s already released", h)
	}
	return nil
}

func (h *handle) live(op string) error {
	if h.released.Load() {
		return accel.Errorf(op, h.kind.InvalidStatus(), "%s has been released", h)
	}
	return nil
}
