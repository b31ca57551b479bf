package dispatch

import (
	"testing"
	"time"

	"github.com/fxnlabs/kernelbench/fixtures"
	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/accel/soft"
	"github.com/fxnlabs/kernelbench/internal/compute"
	"github.com/fxnlabs/kernelbench/internal/kernel"
	"github.com/fxnlabs/kernelbench/internal/lifetime"
	"github.com/fxnlabs/kernelbench/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGlobalSize(t *testing.T) {
	tests := []struct {
		total, local, want int
	}{
		{1, 1, 1},
		{1, 128, 128},
		{128, 128, 128},
		{129, 128, 256},
		{1000000, 128, 1000064},
		{10000000, 128, 10000000},
		{7, 3, 9},
	}
	for _, tt := range tests {
		got := GlobalSize(tt.total, tt.local)
		assert.Equal(t, tt.want, got, "total=%d local=%d", tt.total, tt.local)
		assert.Zero(t, got%tt.local)
		assert.GreaterOrEqual(t, got, tt.total)
		assert.Less(t, got-tt.total, tt.local, "smallest such multiple")
	}

	assert.Panics(t, func() { GlobalSize(0, 128) })
	assert.Panics(t, func() { GlobalSize(10, 0) })
}

type harness struct {
	scope *lifetime.Scope
	cc    *compute.Context
	k     accel.Kernel
}

func newHarness(t *testing.T, src, entry string) *harness {
	t.Helper()
	scope := lifetime.New(nil)
	t.Cleanup(func() { _ = scope.Close() })

	platforms, err := soft.NewDriver(nil, soft.WithWorkers(4)).Platforms()
	require.NoError(t, err)
	devices, err := platforms[0].Devices()
	require.NoError(t, err)
	cc, err := compute.Create(scope, platforms[0], devices[0])
	require.NoError(t, err)

	b := kernel.NewBuilder(nil)
	prog, err := b.Build(scope, cc, src, "")
	require.NoError(t, err)
	k, err := b.Extract(scope, prog, entry)
	require.NoError(t, err)
	return &harness{scope: scope, cc: cc, k: k}
}

func TestRunAplusb(t *testing.T) {
	h := newHarness(t, fixtures.AplusbKernel, "aplusb")
	const n = 1000
	a, b := make([]float32, n), make([]float32, n)
	for i := range a {
		a[i], b[i] = float32(i), float32(n-i)
	}
	bufA, err := compute.Upload(h.scope, h.cc, accel.MemReadOnly, a)
	require.NoError(t, err)
	bufB, err := compute.Upload(h.scope, h.cc, accel.MemReadOnly, b)
	require.NoError(t, err)
	bufC, err := compute.Alloc[float32](h.scope, h.cc, accel.MemWriteOnly, n)
	require.NoError(t, err)
	require.NoError(t, BindArgs(h.k, bufA, bufB, bufC, uint32(n)))

	var observed []int
	q := &countingQueue{Queue: h.cc.Queue}
	s := New(q, zap.NewNop(), WithIterations(7), WithLapObserver(func(i int, lap time.Duration) {
		observed = append(observed, i)
		assert.Positive(t, lap)
	}))
	assert.Equal(t, 7, s.Iterations())

	timer := stats.NewTimer()
	require.NoError(t, s.Run(h.k, n, 128, timer))
	assert.Len(t, timer.Laps(), 7)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, observed)
	assert.Equal(t, 7, q.enqueued)
	assert.Equal(t, 7, q.released, "one completion event released per iteration")

	c := make([]float32, n)
	require.NoError(t, compute.Read(h.cc, bufC, c))
	for i := range c {
		require.Equal(t, float32(n), c[i])
	}
}

// profilingQueue wraps a queue and keeps the profile of every event.
type profilingQueue struct {
	accel.Queue
	profiles []accel.Profile
}

type profilingEvent struct {
	accel.Event
	q *profilingQueue
}

func (e *profilingEvent) Release() error {
	if p, ok := e.Event.(accel.Profiler); ok {
		if prof, err := p.Profile(); err == nil {
			e.q.profiles = append(e.q.profiles, prof)
		}
	}
	return e.Event.Release()
}

func (q *profilingQueue) EnqueueKernel(k accel.Kernel, global, local int) (accel.Event, error) {
	ev, err := q.Queue.EnqueueKernel(k, global, local)
	if err != nil {
		return nil, err
	}
	return &profilingEvent{Event: ev, q: q}, nil
}

// countingQueue counts enqueued kernels and released completion events.
type countingQueue struct {
	accel.Queue
	enqueued, released int
}

type countingEvent struct {
	accel.Event
	q *countingQueue
}

func (e *countingEvent) Release() error {
	e.q.released++
	return e.Event.Release()
}

func (q *countingQueue) EnqueueKernel(k accel.Kernel, global, local int) (accel.Event, error) {
	ev, err := q.Queue.EnqueueKernel(k, global, local)
	if err != nil {
		return nil, err
	}
	q.enqueued++
	return &countingEvent{Event: ev, q: q}, nil
}

func TestIterationsDoNotOverlap(t *testing.T) {
	src := `__kernel void busy(__global float* v, const uint n) {
    uint i = get_global_id(0);
    if (i >= n) return;
    float x = v[i];
    for (int k = 0; k < 64; k++) x = x * 0.5f + 1.0f;
    v[i] = x;
}`
	h := newHarness(t, src, "busy")
	const n = 4096
	buf, err := compute.Alloc[float32](h.scope, h.cc, accel.MemReadWrite, n)
	require.NoError(t, err)
	require.NoError(t, BindArgs(h.k, buf, uint32(n)))

	q := &profilingQueue{Queue: h.cc.Queue}
	require.NoError(t, New(q, nil).Run(h.k, n, 128, stats.NewTimer()))

	require.Len(t, q.profiles, DefaultIterations)
	for i := 1; i < len(q.profiles); i++ {
		prev, cur := q.profiles[i-1], q.profiles[i]
		assert.False(t, cur.Queued.Before(prev.End), "iteration %d queued before %d completed", i, i-1)
		assert.False(t, cur.Start.Before(prev.End), "iteration %d overlaps %d", i, i-1)
	}
}

func TestRunFailures(t *testing.T) {
	t.Run("enqueue failure", func(t *testing.T) {
		h := newHarness(t, fixtures.AplusbKernel, "aplusb")
		err := New(h.cc.Queue, nil).Run(h.k, 100, 128, stats.NewTimer())

		var de *DispatchError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, accel.StatusInvalidKernelArgs, de.Code)
		assert.Equal(t, 0, de.Iteration)
		assert.Equal(t, Idle, de.State)
	})

	t.Run("wait failure", func(t *testing.T) {
		h := newHarness(t, fixtures.AplusbKernel, "aplusb")
		small, err := compute.Alloc[float32](h.scope, h.cc, accel.MemReadWrite, 16)
		require.NoError(t, err)
		// n larger than the buffers makes the kernel index out of range.
		require.NoError(t, BindArgs(h.k, small, small, small, uint32(64)))

		timer := stats.NewTimer()
		q := &countingQueue{Queue: h.cc.Queue}
		err = New(q, nil).Run(h.k, 64, 32, timer)
		var de *DispatchError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, accel.StatusWaitListFailed, de.Code)
		assert.Equal(t, Enqueued, de.State)
		assert.Empty(t, timer.Laps(), "failed iterations record no lap")
		assert.Contains(t, err.Error(), "out-of-bounds")
		assert.Equal(t, 1, q.enqueued)
		assert.Equal(t, 1, q.released, "the event of the failed wait is released")
	})
}

func TestBindArgs(t *testing.T) {
	h := newHarness(t, fixtures.AplusbKernel, "aplusb")
	err := BindArgs(h.k, float32(1))
	assert.True(t, accel.IsStatus(err, accel.StatusInvalidArgValue))
	assert.Contains(t, err.Error(), "SetKernelArg(aplusb, 0)")

	err = BindArgs(h.k, nil, nil, nil, uint32(1), uint32(2))
	assert.Error(t, err)
}
