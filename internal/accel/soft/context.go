package soft

import (
	"strings"
	"sync"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/zap"
)

// Context owns buffer storage accounting for one device.
type Context struct {
	handle
	device *Device
	log    *zap.Logger

	mu        sync.Mutex
	limit     uint64
	allocated uint64
	peak      uint64
}

func (c *Context) Device() accel.Device { return c.device }

func (c *Context) Release() error {
	if err := c.release("ReleaseContext"); err != nil {
		return err
	}
	c.log.Debug("context released", zap.Stringer("context", c), zap.Uint64("peak_bytes", c.Peak()))
	return nil
}

// Allocated returns the bytes currently held by live buffers.
func (c *Context) Allocated() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// Peak returns the high-water mark of Allocated.
func (c *Context) Peak() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func (c *Context) CreateQueue(props accel.QueueProperties) (accel.Queue, error) {
	if err := c.live("CreateCommandQueue"); err != nil {
		return nil, err
	}
	if props&accel.QueueOutOfOrder != 0 {
		return nil, accel.Errorf("CreateCommandQueue", accel.StatusInvalidQueueProperties, "out-of-order execution is not supported")
	}
	return newQueue(c), nil
}

func (c *Context) CreateBuffer(flags accel.MemFlags, elem accel.ElemType, count int, host []byte) (accel.Buffer, error) {
	const op = "CreateBuffer"
	if err := c.live(op); err != nil {
		return nil, err
	}
	if flags&accel.MemReadOnly != 0 && flags&accel.MemWriteOnly != 0 {
		return nil, accel.Errorf(op, accel.StatusInvalidValue, "flags %#x combine read-only and write-only", uint64(flags))
	}
	if elem.Size() == 0 {
		return nil, accel.Errorf(op, accel.StatusInvalidValue, "unknown element type %v", elem)
	}
	if count <= 0 {
		return nil, accel.Errorf(op, accel.StatusInvalidBufferSize, "element count %d", count)
	}
	size := count * elem.Size()
	if host != nil && len(host) != size {
		return nil, accel.Errorf(op, accel.StatusInvalidHostPtr, "host data holds %d bytes, buffer needs %d", len(host), size)
	}
	if err := c.reserve(uint64(size)); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if host != nil {
		copy(data, host)
	}
	return &Buffer{
		handle: handle{kind: accel.KindBuffer, id: nextID()},
		ctx:    c,
		flags:  flags,
		elem:   elem,
		count:  count,
		data:   data,
	}, nil
}

func (c *Context) reserve(size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocated+size > c.limit {
		return accel.Errorf("CreateBuffer", accel.StatusMemObjectAllocationFailure,
			"allocating %d bytes exceeds device memory (%d of %d bytes in use)", size, c.allocated, c.limit)
	}
	c.allocated += size
	c.peak = max(c.peak, c.allocated)
	return nil
}

func (c *Context) free(size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocated -= size
}

func (c *Context) CreateProgram(source string) (accel.Program, error) {
	if err := c.live("CreateProgramWithSource"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, accel.Errorf("CreateProgramWithSource", accel.StatusInvalidValue, "empty program source")
	}
	return &Program{
		handle: handle{kind: accel.KindProgram, id: nextID()},
		ctx:    c,
		source: source,
	}, nil
}

// Buffer is host memory standing in for device memory.
type Buffer struct {
	handle
	ctx   *Context
	flags accel.MemFlags
	elem  accel.ElemType
	count int

	data []byte
}

func (b *Buffer) Flags() accel.MemFlags { return b.flags }
func (b *Buffer) Elem() accel.ElemType  { return b.elem }
func (b *Buffer) Len() int              { return b.count }
func (b *Buffer) Size() int             { return b.count * b.elem.Size() }

func (b *Buffer) Release() error {
	if err := b.release("ReleaseMemObject"); err != nil {
		return err
	}
	b.ctx.free(uint64(len(b.data)))
	b.data = nil
	return nil
}

// view returns the storage typed for a kernel argument.
func (b *Buffer) view() any {
	switch b.elem {
	case accel.Float32:
		return accel.View[float32](b.data)
	case accel.Int32:
		return accel.View[int32](b.data)
	default:
		return accel.View[uint32](b.data)
	}
}
