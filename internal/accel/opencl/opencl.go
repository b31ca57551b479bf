//go:build opencl

package opencl

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>

static cl_int kb_set_mem_arg(cl_kernel k, cl_uint index, cl_mem mem) {
	return clSetKernelArg(k, index, sizeof(cl_mem), &mem);
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/zap"
)

// Available reports whether the package was built against an OpenCL ICD.
const Available = true

func statusError(op string, st C.cl_int) error {
	return accel.NewError(op, accel.Status(st))
}

// ref is the release state shared by every handle.
type ref struct {
	kind     accel.Kind
	released atomic.Bool
}

func (r *ref) Kind() accel.Kind { return r.kind }

func (r *ref) release(op string, fn func() C.cl_int) error {
	if !r.released.CompareAndSwap(false, true) {
		return accel.Errorf(op, r.kind.InvalidStatus(), "%s already released", r.kind)
	}
	if st := fn(); st != C.CL_SUCCESS {
		return statusError(op, st)
	}
	return nil
}

// Driver enumerates the platforms registered with the OpenCL ICD loader.
type Driver struct {
	log *zap.Logger
}

func NewDriver(log *zap.Logger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{log: log.Named("opencl")}, nil
}

func (d *Driver) Name() string { return "opencl" }

func (d *Driver) Platforms() ([]accel.Platform, error) {
	var n C.cl_uint
	st := C.clGetPlatformIDs(0, nil, &n)
	if st == C.cl_int(accel.StatusPlatformNotFoundKHR) || (st == C.CL_SUCCESS && n == 0) {
		d.log.Debug("no OpenCL platforms installed")
		return nil, nil
	}
	if st != C.CL_SUCCESS {
		return nil, statusError("GetPlatformIDs", st)
	}
	ids := make([]C.cl_platform_id, n)
	if st := C.clGetPlatformIDs(n, &ids[0], nil); st != C.CL_SUCCESS {
		return nil, statusError("GetPlatformIDs", st)
	}
	out := make([]accel.Platform, 0, len(ids))
	for _, id := range ids {
		p := &Platform{driver: d, id: id}
		if err := p.query(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Platform caches its info strings; they are queried once at enumeration.
type Platform struct {
	driver *Driver
	id     C.cl_platform_id
	info   accel.PlatformInfo
}

func (p *Platform) Info() accel.PlatformInfo { return p.info }

func (p *Platform) query() error {
	var err error
	if p.info.Name, err = p.str(C.CL_PLATFORM_NAME); err != nil {
		return err
	}
	if p.info.Vendor, err = p.str(C.CL_PLATFORM_VENDOR); err != nil {
		return err
	}
	p.info.Version, err = p.str(C.CL_PLATFORM_VERSION)
	return err
}

func (p *Platform) str(param C.cl_platform_info) (string, error) {
	var size C.size_t
	if st := C.clGetPlatformInfo(p.id, param, 0, nil, &size); st != C.CL_SUCCESS {
		return "", statusError("GetPlatformInfo", st)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, size)
	if st := C.clGetPlatformInfo(p.id, param, size, unsafe.Pointer(&buf[0]), nil); st != C.CL_SUCCESS {
		return "", statusError("GetPlatformInfo", st)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

func (p *Platform) Devices() ([]accel.Device, error) {
	var n C.cl_uint
	st := C.clGetDeviceIDs(p.id, C.CL_DEVICE_TYPE_ALL, 0, nil, &n)
	if st == C.CL_DEVICE_NOT_FOUND || (st == C.CL_SUCCESS && n == 0) {
		return nil, nil
	}
	if st != C.CL_SUCCESS {
		return nil, statusError("GetDeviceIDs", st)
	}
	ids := make([]C.cl_device_id, n)
	if st := C.clGetDeviceIDs(p.id, C.CL_DEVICE_TYPE_ALL, n, &ids[0], nil); st != C.CL_SUCCESS {
		return nil, statusError("GetDeviceIDs", st)
	}
	out := make([]accel.Device, 0, len(ids))
	for _, id := range ids {
		dev := &Device{platform: p, id: id}
		if err := dev.query(); err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, nil
}

func (p *Platform) CreateContext(device accel.Device) (accel.Context, error) {
	dev, ok := device.(*Device)
	if !ok || dev.platform.id != p.id {
		return nil, accel.Errorf("CreateContext", accel.StatusInvalidDevice, "device %v does not belong to platform %q", device, p.Info().Name)
	}
	var st C.cl_int
	id := dev.id
	ctx := C.clCreateContext(nil, 1, &id, nil, nil, &st)
	if st != C.CL_SUCCESS {
		return nil, statusError("CreateContext", st)
	}
	return &Context{ref: ref{kind: accel.KindContext}, id: ctx, device: dev}, nil
}

// Device caches its properties; they are queried once at enumeration.
type Device struct {
	platform *Platform
	id       C.cl_device_id
	info     accel.DeviceInfo
}

func (d *Device) String() string { return d.info.Name }

func (d *Device) Info() accel.DeviceInfo { return d.info }

func (d *Device) query() error {
	var (
		typ     C.cl_device_type
		mem     C.cl_ulong
		units   C.cl_uint
		maxWork C.size_t
	)
	fixed := []struct {
		param C.cl_device_info
		size  uintptr
		ptr   unsafe.Pointer
	}{
		{C.CL_DEVICE_TYPE, unsafe.Sizeof(typ), unsafe.Pointer(&typ)},
		{C.CL_DEVICE_GLOBAL_MEM_SIZE, unsafe.Sizeof(mem), unsafe.Pointer(&mem)},
		{C.CL_DEVICE_MAX_COMPUTE_UNITS, unsafe.Sizeof(units), unsafe.Pointer(&units)},
		{C.CL_DEVICE_MAX_WORK_GROUP_SIZE, unsafe.Sizeof(maxWork), unsafe.Pointer(&maxWork)},
	}
	for _, f := range fixed {
		if st := C.clGetDeviceInfo(d.id, f.param, C.size_t(f.size), f.ptr, nil); st != C.CL_SUCCESS {
			return statusError("GetDeviceInfo", st)
		}
	}
	name, err := d.str(C.CL_DEVICE_NAME)
	if err != nil {
		return err
	}
	vendor, err := d.str(C.CL_DEVICE_VENDOR)
	if err != nil {
		return err
	}
	ext, err := d.str(C.CL_DEVICE_EXTENSIONS)
	if err != nil {
		return err
	}
	d.info = accel.DeviceInfo{
		Name:             name,
		Vendor:           vendor,
		Type:             accel.DeviceType(typ),
		GlobalMemSize:    uint64(mem),
		MaxComputeUnits:  int(units),
		MaxWorkGroupSize: int(maxWork),
		Extensions:       strings.Fields(ext),
	}
	return nil
}

func (d *Device) str(param C.cl_device_info) (string, error) {
	var size C.size_t
	if st := C.clGetDeviceInfo(d.id, param, 0, nil, &size); st != C.CL_SUCCESS {
		return "", statusError("GetDeviceInfo", st)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, size)
	if st := C.clGetDeviceInfo(d.id, param, size, unsafe.Pointer(&buf[0]), nil); st != C.CL_SUCCESS {
		return "", statusError("GetDeviceInfo", st)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

type Context struct {
	ref
	id     C.cl_context
	device *Device
}

func (c *Context) Device() accel.Device { return c.device }

func (c *Context) Release() error {
	return c.release("ReleaseContext", func() C.cl_int { return C.clReleaseContext(c.id) })
}

func (c *Context) CreateQueue(props accel.QueueProperties) (accel.Queue, error) {
	var st C.cl_int
	q := C.clCreateCommandQueue(c.id, c.device.id, C.cl_command_queue_properties(props), &st)
	if st != C.CL_SUCCESS {
		return nil, statusError("CreateCommandQueue", st)
	}
	return &Queue{ref: ref{kind: accel.KindQueue}, id: q}, nil
}

func (c *Context) CreateBuffer(flags accel.MemFlags, elem accel.ElemType, count int, host []byte) (accel.Buffer, error) {
	size := count * elem.Size()
	if host != nil && len(host) != size {
		return nil, accel.Errorf("CreateBuffer", accel.StatusInvalidHostPtr, "host data holds %d bytes, buffer needs %d", len(host), size)
	}
	clFlags := C.cl_mem_flags(flags)
	var ptr unsafe.Pointer
	if len(host) > 0 {
		clFlags |= C.CL_MEM_COPY_HOST_PTR
		ptr = unsafe.Pointer(&host[0])
	}
	var st C.cl_int
	mem := C.clCreateBuffer(c.id, clFlags, C.size_t(size), ptr, &st)
	if st != C.CL_SUCCESS {
		return nil, statusError("CreateBuffer", st)
	}
	return &Buffer{ref: ref{kind: accel.KindBuffer}, id: mem, flags: flags, elem: elem, count: count}, nil
}

func (c *Context) CreateProgram(source string) (accel.Program, error) {
	if source == "" {
		return nil, accel.Errorf("CreateProgramWithSource", accel.StatusInvalidValue, "empty program source")
	}
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))
	var st C.cl_int
	prog := C.clCreateProgramWithSource(c.id, 1, &csrc, &length, &st)
	if st != C.CL_SUCCESS {
		return nil, statusError("CreateProgramWithSource", st)
	}
	return &Program{ref: ref{kind: accel.KindProgram}, id: prog}, nil
}

type Buffer struct {
	ref
	id    C.cl_mem
	flags accel.MemFlags
	elem  accel.ElemType
	count int
}

func (b *Buffer) Flags() accel.MemFlags { return b.flags }
func (b *Buffer) Elem() accel.ElemType  { return b.elem }
func (b *Buffer) Len() int              { return b.count }
func (b *Buffer) Size() int             { return b.count * b.elem.Size() }

func (b *Buffer) Release() error {
	return b.release("ReleaseMemObject", func() C.cl_int { return C.clReleaseMemObject(b.id) })
}

type Program struct {
	ref
	id C.cl_program
}

func (p *Program) Release() error {
	return p.release("ReleaseProgram", func() C.cl_int { return C.clReleaseProgram(p.id) })
}

func deviceOf(op string, device accel.Device) (C.cl_device_id, error) {
	dev, ok := device.(*Device)
	if !ok {
		return nil, accel.Errorf(op, accel.StatusInvalidDevice, "device %v is not an OpenCL device", device)
	}
	return dev.id, nil
}

func (p *Program) Build(device accel.Device, options string) error {
	id, err := deviceOf("BuildProgram", device)
	if err != nil {
		return err
	}
	var copts *C.char
	if options != "" {
		copts = C.CString(options)
		defer C.free(unsafe.Pointer(copts))
	}
	if st := C.clBuildProgram(p.id, 1, &id, copts, nil, nil); st != C.CL_SUCCESS {
		return statusError("BuildProgram", st)
	}
	return nil
}

func (p *Program) BuildLog(device accel.Device) (string, error) {
	const op = "GetProgramBuildInfo"
	id, err := deviceOf(op, device)
	if err != nil {
		return "", err
	}
	var size C.size_t
	if st := C.clGetProgramBuildInfo(p.id, id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size); st != C.CL_SUCCESS {
		return "", statusError(op, st)
	}
	if size <= 1 {
		return "", nil
	}
	buf := make([]byte, size)
	if st := C.clGetProgramBuildInfo(p.id, id, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil); st != C.CL_SUCCESS {
		return "", statusError(op, st)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

func (p *Program) CreateKernel(name string) (accel.Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var st C.cl_int
	k := C.clCreateKernel(p.id, cname, &st)
	if st != C.CL_SUCCESS {
		return nil, statusError("CreateKernel", st)
	}
	var nargs C.cl_uint
	if st := C.clGetKernelInfo(k, C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(nargs)), unsafe.Pointer(&nargs), nil); st != C.CL_SUCCESS {
		C.clReleaseKernel(k)
		return nil, statusError("GetKernelInfo", st)
	}
	return &Kernel{ref: ref{kind: accel.KindKernel}, id: k, name: name, nargs: int(nargs)}, nil
}

type Kernel struct {
	ref
	id    C.cl_kernel
	name  string
	nargs int
}

func (k *Kernel) Name() string { return k.name }
func (k *Kernel) NumArgs() int { return k.nargs }

func (k *Kernel) Release() error {
	return k.release("ReleaseKernel", func() C.cl_int { return C.clReleaseKernel(k.id) })
}

func (k *Kernel) SetArg(index int, value any) error {
	const op = "SetKernelArg"
	idx := C.cl_uint(index)
	var st C.cl_int
	switch v := value.(type) {
	case *Buffer:
		st = C.kb_set_mem_arg(k.id, idx, v.id)
	case float32:
		x := C.cl_float(v)
		st = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(x)), unsafe.Pointer(&x))
	case int32:
		x := C.cl_int(v)
		st = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(x)), unsafe.Pointer(&x))
	case uint32:
		x := C.cl_uint(v)
		st = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(x)), unsafe.Pointer(&x))
	default:
		return accel.Errorf(op, accel.StatusInvalidArgSize, "argument %d has unsupported host type %T", index, value)
	}
	if st != C.CL_SUCCESS {
		return statusError(op, st)
	}
	return nil
}

type Queue struct {
	ref
	id C.cl_command_queue
}

func (q *Queue) Release() error {
	return q.release("ReleaseCommandQueue", func() C.cl_int { return C.clReleaseCommandQueue(q.id) })
}

func (q *Queue) EnqueueKernel(k accel.Kernel, global, local int) (accel.Event, error) {
	const op = "EnqueueNDRangeKernel"
	kern, ok := k.(*Kernel)
	if !ok {
		return nil, accel.Errorf(op, accel.StatusInvalidKernel, "kernel %v is not an OpenCL kernel", k)
	}
	gsize, lsize := C.size_t(global), C.size_t(local)
	var ev C.cl_event
	if st := C.clEnqueueNDRangeKernel(q.id, kern.id, 1, nil, &gsize, &lsize, 0, nil, &ev); st != C.CL_SUCCESS {
		return nil, statusError(op, st)
	}
	return &Event{ref: ref{kind: accel.KindEvent}, id: ev}, nil
}

func (q *Queue) transfer(op string, b accel.Buffer, host []byte, read bool) error {
	buf, ok := b.(*Buffer)
	if !ok {
		return accel.Errorf(op, accel.StatusInvalidMemObject, "buffer %v is not an OpenCL buffer", b)
	}
	if len(host) != buf.Size() {
		return accel.Errorf(op, accel.StatusInvalidValue, "host region of %d bytes for a %d byte buffer", len(host), buf.Size())
	}
	ptr := unsafe.Pointer(&host[0])
	var st C.cl_int
	if read {
		st = C.clEnqueueReadBuffer(q.id, buf.id, C.CL_TRUE, 0, C.size_t(len(host)), ptr, 0, nil, nil)
	} else {
		st = C.clEnqueueWriteBuffer(q.id, buf.id, C.CL_TRUE, 0, C.size_t(len(host)), ptr, 0, nil, nil)
	}
	if st != C.CL_SUCCESS {
		return statusError(op, st)
	}
	return nil
}

func (q *Queue) ReadBuffer(b accel.Buffer, dst []byte) error {
	return q.transfer("EnqueueReadBuffer", b, dst, true)
}

func (q *Queue) WriteBuffer(b accel.Buffer, src []byte) error {
	return q.transfer("EnqueueWriteBuffer", b, src, false)
}

func (q *Queue) Finish() error {
	if st := C.clFinish(q.id); st != C.CL_SUCCESS {
		return statusError("Finish", st)
	}
	return nil
}

type Event struct {
	ref
	id C.cl_event
}

func (e *Event) Release() error {
	return e.release("ReleaseEvent", func() C.cl_int { return C.clReleaseEvent(e.id) })
}

func (e *Event) Wait() error {
	if e.released.Load() {
		return accel.Errorf("WaitForEvents", accel.StatusInvalidEvent, "event already released")
	}
	id := e.id
	if st := C.clWaitForEvents(1, &id); st != C.CL_SUCCESS {
		return statusError("WaitForEvents", st)
	}
	return nil
}

// Profile reads device timestamps. They are only meaningful relative to
// each other; the device clock is not wall time.
func (e *Event) Profile() (accel.Profile, error) {
	var p accel.Profile
	params := []struct {
		name C.cl_profiling_info
		dst  *time.Time
	}{
		{C.CL_PROFILING_COMMAND_QUEUED, &p.Queued},
		{C.CL_PROFILING_COMMAND_START, &p.Start},
		{C.CL_PROFILING_COMMAND_END, &p.End},
	}
	for _, param := range params {
		var ns C.cl_ulong
		if st := C.clGetEventProfilingInfo(e.id, param.name, C.size_t(unsafe.Sizeof(ns)), unsafe.Pointer(&ns), nil); st != C.CL_SUCCESS {
			return accel.Profile{}, statusError("GetEventProfilingInfo", st)
		}
		*param.dst = time.Unix(0, int64(ns))
	}
	return p, nil
}

func (e *Event) String() string { return fmt.Sprintf("event(%p)", e.id) }
