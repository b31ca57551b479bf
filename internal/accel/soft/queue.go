package soft

import (
	"sync"
	"time"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const queueDepth = 64

type command struct {
	name  string
	run   func() error
	event *Event
}

// Queue executes commands in submission order on a dedicated goroutine.
type Queue struct {
	handle
	ctx     *Context
	log     *zap.Logger
	workers int

	mu    sync.Mutex
	tasks chan *command
	wg    sync.WaitGroup
}

func newQueue(c *Context) *Queue {
	q := &Queue{
		handle:  handle{kind: accel.KindQueue, id: nextID()},
		ctx:     c,
		workers: c.device.info.MaxComputeUnits,
		tasks:   make(chan *command, queueDepth),
	}
	q.log = c.log.With(zap.Stringer("queue", q))
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for cmd := range q.tasks {
		cmd.event.start()
		err := cmd.run()
		cmd.event.finish(err)
		if err != nil {
			q.log.Debug("command failed", zap.String("command", cmd.name), zap.Error(err))
		}
	}
}

func (q *Queue) submit(op string, run func() error) (*Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.live(op); err != nil {
		return nil, err
	}
	ev := newEvent()
	q.tasks <- &command{name: op, run: run, event: ev}
	return ev, nil
}

// Release drains pending commands and stops the worker.
func (q *Queue) Release() error {
	q.mu.Lock()
	if err := q.release("ReleaseCommandQueue"); err != nil {
		q.mu.Unlock()
		return err
	}
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

func (q *Queue) EnqueueKernel(k accel.Kernel, global, local int) (accel.Event, error) {
	const op = "EnqueueNDRangeKernel"
	if err := q.live(op); err != nil {
		return nil, err
	}
	kern, ok := k.(*Kernel)
	if !ok {
		return nil, accel.Errorf(op, accel.StatusInvalidKernel, "kernel %v was not created by this runtime", k)
	}
	if err := kern.live(op); err != nil {
		return nil, err
	}
	if kern.program.ctx != q.ctx {
		return nil, accel.Errorf(op, accel.StatusInvalidContext, "kernel and queue belong to different contexts")
	}
	if global <= 0 {
		return nil, accel.Errorf(op, accel.StatusInvalidGlobalWorkSize, "global size %d", global)
	}
	if local <= 0 || local > MaxWorkGroupSize || global%local != 0 {
		return nil, accel.Errorf(op, accel.StatusInvalidWorkGroupSize, "local size %d for global size %d (device maximum %d)", local, global, MaxWorkGroupSize)
	}
	launch, err := kern.bind(op)
	if err != nil {
		return nil, err
	}

	groups := global / local
	chunk := (groups + q.workers - 1) / q.workers
	name := kern.Name()

	return q.submit(op, func() error {
		var g errgroup.Group
		for first := 0; first < groups; first += chunk {
			first, last := first, min(first+chunk, groups)
			g.Go(func() error {
				return launch.Run(first, last, local, global)
			})
		}
		if err := g.Wait(); err != nil {
			return &accel.APIError{Op: op, Code: accel.StatusOutOfResources, Err: err}
		}
		q.log.Debug("kernel executed", zap.String("kernel", name), zap.Int("global", global), zap.Int("local", local))
		return nil
	})
}

func (q *Queue) buffer(op string, b accel.Buffer, n int) (*Buffer, error) {
	if err := q.live(op); err != nil {
		return nil, err
	}
	buf, ok := b.(*Buffer)
	if !ok {
		return nil, accel.Errorf(op, accel.StatusInvalidMemObject, "buffer %v was not created by this runtime", b)
	}
	if err := buf.live(op); err != nil {
		return nil, err
	}
	if buf.ctx != q.ctx {
		return nil, accel.Errorf(op, accel.StatusInvalidContext, "buffer and queue belong to different contexts")
	}
	if n != buf.Size() {
		return nil, accel.Errorf(op, accel.StatusInvalidValue, "host region of %d bytes for a %d byte buffer", n, buf.Size())
	}
	return buf, nil
}

func (q *Queue) ReadBuffer(b accel.Buffer, dst []byte) error {
	const op = "EnqueueReadBuffer"
	buf, err := q.buffer(op, b, len(dst))
	if err != nil {
		return err
	}
	return q.blocking(op, func() error {
		copy(dst, buf.data)
		return nil
	})
}

func (q *Queue) WriteBuffer(b accel.Buffer, src []byte) error {
	const op = "EnqueueWriteBuffer"
	buf, err := q.buffer(op, b, len(src))
	if err != nil {
		return err
	}
	return q.blocking(op, func() error {
		copy(buf.data, src)
		return nil
	})
}

func (q *Queue) Finish() error {
	return q.blocking("Finish", func() error { return nil })
}

func (q *Queue) blocking(op string, run func() error) error {
	ev, err := q.submit(op, run)
	if err != nil {
		return err
	}
	return waitAndRelease(ev)
}

// waitAndRelease waits for ev and releases it. A release failure is
// appended to the wait result.
func waitAndRelease(ev *Event) (err error) {
	defer func() { err = multierr.Append(err, ev.Release()) }()
	return ev.Wait()
}

// Event tracks one submitted command.
type Event struct {
	handle
	done chan struct{}

	mu      sync.Mutex
	err     error
	profile accel.Profile
}

func newEvent() *Event {
	return &Event{
		handle:  handle{kind: accel.KindEvent, id: nextID()},
		done:    make(chan struct{}),
		profile: accel.Profile{Queued: time.Now()},
	}
}

func (e *Event) start() {
	e.mu.Lock()
	e.profile.Start = time.Now()
	e.mu.Unlock()
}

func (e *Event) finish(err error) {
	e.mu.Lock()
	e.profile.End = time.Now()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

func (e *Event) Release() error {
	return e.release("ReleaseEvent")
}

// Wait blocks until the command completes. A failed command is reported as
// a wait-list failure wrapping the command's own error.
func (e *Event) Wait() error {
	const op = "WaitForEvents"
	if err := e.live(op); err != nil {
		return err
	}
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return &accel.APIError{Op: op, Code: accel.StatusWaitListFailed, Err: e.err}
	}
	return nil
}

// Profile returns the command timestamps once it has completed.
func (e *Event) Profile() (accel.Profile, error) {
	const op = "GetEventProfilingInfo"
	if err := e.live(op); err != nil {
		return accel.Profile{}, err
	}
	select {
	case <-e.done:
	default:
		return accel.Profile{}, accel.Errorf(op, accel.StatusProfilingInfoNotAvailable, "command has not completed")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile, nil
}
