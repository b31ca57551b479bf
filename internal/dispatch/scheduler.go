// Package dispatch launches a kernel repeatedly over a one-dimensional grid.
// Every launch is waited for before the next is enqueued, so iterations
// never overlap on the device and each lap measures one launch.
package dispatch

import (
	"fmt"
	"time"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/stats"
	"go.uber.org/zap"
)

// DefaultIterations is the number of timed launches per run.
const DefaultIterations = 20

// State is the progress of one iteration.
type State int

const (
	Idle State = iota
	Enqueued
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Enqueued:
		return "enqueued"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DispatchError ends a run. State is the last state the failing iteration
// reached: Idle when the enqueue failed, Enqueued when the wait failed and
// Completed when releasing the completion event failed.
type DispatchError struct {
	Code      accel.Status
	Iteration int
	State     State
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed in iteration %d (%s) with code %d (%s): %v",
		e.Iteration, e.State, int32(e.Code), e.Code, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// GlobalSize rounds total up to the next multiple of local. Both values
// must be at least 1.
func GlobalSize(total, local int) int {
	if total < 1 || local < 1 {
		panic(fmt.Sprintf("dispatch: invalid grid (total=%d, local=%d)", total, local))
	}
	return (total + local - 1) / local * local
}

// BindArgs binds args to slots 0..len(args)-1 in order.
func BindArgs(k accel.Kernel, args ...any) error {
	for i, arg := range args {
		if err := k.SetArg(i, arg); err != nil {
			code, ok := accel.StatusOf(err)
			if !ok {
				code = accel.StatusInvalidArgValue
			}
			return accel.Check(&accel.APIError{
				Op:   fmt.Sprintf("SetKernelArg(%s, %d)", k.Name(), i),
				Code: code,
				Err:  err,
			})
		}
	}
	return nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIterations sets the number of launches per run.
func WithIterations(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// WithLapObserver registers fn to receive every completed lap.
func WithLapObserver(fn func(iteration int, lap time.Duration)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler drives launches on one in-order queue.
type Scheduler struct {
	queue      accel.Queue
	logger     *zap.Logger
	iterations int
	observe    func(int, time.Duration)
}

func New(queue accel.Queue, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		queue:      queue,
		logger:     logger.Named("dispatch"),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Iterations returns the number of launches Run performs.
func (s *Scheduler) Iterations() int { return s.iterations }

// Run launches k over GlobalSize(total, local) work-items once per
// iteration. Each iteration enqueues, waits for completion, records a lap
// on timer and releases the completion event. The first failure stops the
// run.
func (s *Scheduler) Run(k accel.Kernel, total, local int, timer *stats.Timer) error {
	global := GlobalSize(total, local)
	s.logger.Debug("starting dispatch",
		zap.String("kernel", k.Name()),
		zap.Int("total", total),
		zap.Int("global", global),
		zap.Int("local", local),
		zap.Int("iterations", s.iterations),
	)

	timer.Restart()
	for i := 0; i < s.iterations; i++ {
		if err := s.iterate(k, global, local, i, timer); err != nil {
			s.logger.Error("dispatch failed", zap.Int("iteration", i), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *Scheduler) iterate(k accel.Kernel, global, local, i int, timer *stats.Timer) error {
	state := Idle
	fail := func(err error) error {
		code, ok := accel.StatusOf(err)
		if !ok {
			code = accel.StatusOutOfResources
		}
		return &DispatchError{Code: code, Iteration: i, State: state, Err: accel.Check(err)}
	}

	ev, err := s.queue.EnqueueKernel(k, global, local)
	if err != nil {
		return fail(err)
	}
	state = Enqueued

	if err := ev.Wait(); err != nil {
		if relErr := ev.Release(); relErr != nil {
			s.logger.Warn("failed to release completion event", zap.Int("iteration", i), zap.Error(relErr))
		}
		return fail(err)
	}
	state = Completed
	lap := timer.NextLap()

	if err := ev.Release(); err != nil {
		return fail(err)
	}
	if s.observe != nil {
		s.observe(i, lap)
	}
	s.logger.Debug("iteration completed", zap.Int("iteration", i), zap.Duration("lap", lap))
	return nil
}
