// Package compute owns the context and in-order command queue of one
// device and offers typed buffer helpers on top of them.
package compute

import (
	"fmt"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/lifetime"
)

// ContextCreationError is returned when the device or platform rejects the
// context or its queue.
type ContextCreationError struct {
	Device string
	Err    error
}

func (e *ContextCreationError) Error() string {
	return fmt.Sprintf("failed to create compute context on %q: %v", e.Device, e.Err)
}

func (e *ContextCreationError) Unwrap() error { return e.Err }

// Context is a context bound to one device plus its in-order queue.
type Context struct {
	Context accel.Context
	Queue   accel.Queue
	Device  accel.Device
}

// Create builds the context and queue and registers both with scope. The
// queue is registered last so it is released before the context.
func Create(scope *lifetime.Scope, platform accel.Platform, device accel.Device) (*Context, error) {
	name := device.Info().Name

	ctx, err := platform.CreateContext(device)
	if err != nil {
		return nil, &ContextCreationError{Device: name, Err: accel.Check(err)}
	}
	scope.Register(ctx)

	queue, err := ctx.CreateQueue(accel.QueueProfiling)
	if err != nil {
		return nil, &ContextCreationError{Device: name, Err: accel.Check(err)}
	}
	scope.Register(queue)

	return &Context{Context: ctx, Queue: queue, Device: device}, nil
}

// Finish blocks until the queue is drained.
func (c *Context) Finish() error {
	return accel.Check(c.Queue.Finish())
}

// Upload creates a buffer initialised with a copy of host.
func Upload[T accel.Scalar](scope *lifetime.Scope, c *Context, flags accel.MemFlags, host []T) (accel.Buffer, error) {
	buf, err := c.Context.CreateBuffer(flags, accel.ElemOf[T](), len(host), accel.Bytes(host))
	return lifetime.Track(scope, buf, accel.Check(err))
}

// Alloc creates a buffer of n elements without initial contents.
func Alloc[T accel.Scalar](scope *lifetime.Scope, c *Context, flags accel.MemFlags, n int) (accel.Buffer, error) {
	buf, err := c.Context.CreateBuffer(flags, accel.ElemOf[T](), n, nil)
	return lifetime.Track(scope, buf, accel.Check(err))
}

// Read copies the buffer into dst, blocking until the transfer is complete.
func Read[T accel.Scalar](c *Context, b accel.Buffer, dst []T) error {
	if err := checkElem[T](b); err != nil {
		return err
	}
	return accel.Check(c.Queue.ReadBuffer(b, accel.Bytes(dst)))
}

// Write copies src into the buffer, blocking until the transfer is complete.
func Write[T accel.Scalar](c *Context, b accel.Buffer, src []T) error {
	if err := checkElem[T](b); err != nil {
		return err
	}
	return accel.Check(c.Queue.WriteBuffer(b, accel.Bytes(src)))
}

func checkElem[T accel.Scalar](b accel.Buffer) error {
	if want := accel.ElemOf[T](); b.Elem() != want {
		return accel.Errorf("TransferBuffer", accel.StatusInvalidValue, "buffer holds %v, host slice is %v", b.Elem(), want)
	}
	return nil
}
