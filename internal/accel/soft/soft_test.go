package soft

import (
	"testing"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

const aplusb = `
__kernel void aplusb(__global const float* a, __global const float* b, __global float* c, unsigned int n)
{
    const unsigned int index = get_global_id(0);
    if (index >= n)
        return;
    c[index] = a[index] + b[index];
}
`

type fixture struct {
	dev   accel.Device
	ctx   *Context
	queue accel.Queue
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	drv := NewDriver(zaptest.NewLogger(t), opts...)
	platforms, err := drv.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	devices, err := platforms[0].Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	ctx, err := platforms[0].CreateContext(devices[0])
	require.NoError(t, err)
	queue, err := ctx.CreateQueue(accel.QueueProfiling)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = queue.Release()
		_ = ctx.Release()
	})
	return &fixture{dev: devices[0], ctx: ctx.(*Context), queue: queue}
}

func (f *fixture) kernel(t *testing.T, src, name string) accel.Kernel {
	t.Helper()
	prog, err := f.ctx.CreateProgram(src)
	require.NoError(t, err)
	require.NoError(t, prog.Build(f.dev, ""))
	k, err := prog.CreateKernel(name)
	require.NoError(t, err)
	return k
}

func floats(n int, fn func(i int) float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = fn(i)
	}
	return out
}

func TestDeviceInfo(t *testing.T) {
	f := newFixture(t, WithWorkers(3), WithMemoryLimit(1<<20))
	info := f.dev.Info()
	assert.Equal(t, accel.DeviceTypeCPU, info.Type)
	assert.Equal(t, 3, info.MaxComputeUnits)
	assert.Equal(t, uint64(1<<20), info.GlobalMemSize)
	assert.Equal(t, MaxWorkGroupSize, info.MaxWorkGroupSize)
}

func TestAplusbEndToEnd(t *testing.T) {
	f := newFixture(t, WithWorkers(4))
	const n = 1000
	a := floats(n, func(i int) float32 { return float32(i) })
	b := floats(n, func(i int) float32 { return float32(2 * i) })

	bufA, err := f.ctx.CreateBuffer(accel.MemReadOnly, accel.Float32, n, accel.Bytes(a))
	require.NoError(t, err)
	bufB, err := f.ctx.CreateBuffer(accel.MemReadOnly, accel.Float32, n, accel.Bytes(b))
	require.NoError(t, err)
	bufC, err := f.ctx.CreateBuffer(accel.MemWriteOnly, accel.Float32, n, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*n*4), f.ctx.Allocated())

	k := f.kernel(t, aplusb, "aplusb")
	assert.Equal(t, 4, k.NumArgs())
	require.NoError(t, k.SetArg(0, bufA))
	require.NoError(t, k.SetArg(1, bufB))
	require.NoError(t, k.SetArg(2, bufC))
	require.NoError(t, k.SetArg(3, uint32(n)))

	ev, err := f.queue.EnqueueKernel(k, 1024, 128)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	prof, err := ev.(accel.Profiler).Profile()
	require.NoError(t, err)
	assert.False(t, prof.End.Before(prof.Start))
	require.NoError(t, ev.Release())

	c := make([]float32, n)
	require.NoError(t, f.queue.ReadBuffer(bufC, accel.Bytes(c)))
	for i := range c {
		require.Equal(t, a[i]+b[i], c[i], "index %d", i)
	}

	require.NoError(t, bufA.Release())
	assert.Equal(t, uint64(2*n*4), f.ctx.Allocated())
	assert.Equal(t, uint64(3*n*4), f.ctx.Peak())
}

func TestDoubleRelease(t *testing.T) {
	f := newFixture(t)
	buf, err := f.ctx.CreateBuffer(accel.MemReadWrite, accel.Int32, 4, nil)
	require.NoError(t, err)
	prog, err := f.ctx.CreateProgram(aplusb)
	require.NoError(t, err)

	tests := []struct {
		name string
		res  accel.Resource
		want accel.Status
	}{
		{"buffer", buf, accel.StatusInvalidMemObject},
		{"program", prog, accel.StatusInvalidProgram},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.res.Release())
			err := tt.res.Release()
			assert.True(t, accel.IsStatus(err, tt.want), "got %v", err)
		})
	}
}

func TestCreateBufferErrors(t *testing.T) {
	f := newFixture(t, WithMemoryLimit(64))

	tests := []struct {
		name  string
		flags accel.MemFlags
		count int
		host  []byte
		want  accel.Status
	}{
		{"zero count", accel.MemReadWrite, 0, nil, accel.StatusInvalidBufferSize},
		{"conflicting flags", accel.MemReadOnly | accel.MemWriteOnly, 4, nil, accel.StatusInvalidValue},
		{"host size mismatch", accel.MemReadOnly, 4, make([]byte, 3), accel.StatusInvalidHostPtr},
		{"over memory limit", accel.MemReadWrite, 17, nil, accel.StatusMemObjectAllocationFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctx.CreateBuffer(tt.flags, accel.Float32, tt.count, tt.host)
			assert.True(t, accel.IsStatus(err, tt.want), "got %v", err)
		})
	}
}

func TestBuild(t *testing.T) {
	f := newFixture(t)

	t.Run("failure keeps the log", func(t *testing.T) {
		prog, err := f.ctx.CreateProgram("__kernel void k(__global float* c) { c[0] = nope; }")
		require.NoError(t, err)
		err = prog.Build(f.dev, "")
		assert.True(t, accel.IsStatus(err, accel.StatusBuildProgramFailure), "got %v", err)

		log, err := prog.BuildLog(f.dev)
		require.NoError(t, err)
		assert.Contains(t, log, "use of undeclared identifier 'nope'")

		_, err = prog.CreateKernel("k")
		assert.True(t, accel.IsStatus(err, accel.StatusInvalidProgramExecutable))
	})

	t.Run("unknown options are logged", func(t *testing.T) {
		prog, err := f.ctx.CreateProgram(aplusb)
		require.NoError(t, err)
		require.NoError(t, prog.Build(f.dev, "-cl-mad-enable"))
		log, err := prog.BuildLog(f.dev)
		require.NoError(t, err)
		assert.Contains(t, log, "unknown build option '-cl-mad-enable'")
	})

	t.Run("missing entry point", func(t *testing.T) {
		prog, err := f.ctx.CreateProgram(aplusb)
		require.NoError(t, err)
		require.NoError(t, prog.Build(f.dev, ""))
		_, err = prog.CreateKernel("aminusb")
		assert.True(t, accel.IsStatus(err, accel.StatusInvalidKernelName))
	})

	t.Run("foreign device", func(t *testing.T) {
		other := newFixture(t)
		prog, err := f.ctx.CreateProgram(aplusb)
		require.NoError(t, err)
		err = prog.Build(other.dev, "")
		assert.True(t, accel.IsStatus(err, accel.StatusInvalidDevice))
	})
}

func TestSetArg(t *testing.T) {
	f := newFixture(t)
	k := f.kernel(t, aplusb, "aplusb")

	readOnly, err := f.ctx.CreateBuffer(accel.MemReadOnly, accel.Float32, 8, nil)
	require.NoError(t, err)
	writeOnly, err := f.ctx.CreateBuffer(accel.MemWriteOnly, accel.Float32, 8, nil)
	require.NoError(t, err)
	ints, err := f.ctx.CreateBuffer(accel.MemReadWrite, accel.Int32, 8, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		index int
		value any
		want  accel.Status
	}{
		{"index out of range", 4, uint32(1), accel.StatusInvalidArgIndex},
		{"read from write-only buffer", 0, writeOnly, accel.StatusInvalidArgValue},
		{"write to read-only buffer", 2, readOnly, accel.StatusInvalidArgValue},
		{"element type mismatch", 0, ints, accel.StatusInvalidArgValue},
		{"scalar for buffer", 1, float32(1), accel.StatusInvalidArgValue},
		{"float for uint", 3, float32(1), accel.StatusInvalidArgValue},
		{"unsupported host type", 3, uint64(1), accel.StatusInvalidArgSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := k.SetArg(tt.index, tt.value)
			assert.True(t, accel.IsStatus(err, tt.want), "got %v", err)
		})
	}

	t.Run("buffer from another context", func(t *testing.T) {
		other := newFixture(t)
		foreign, err := other.ctx.CreateBuffer(accel.MemReadOnly, accel.Float32, 8, nil)
		require.NoError(t, err)
		err = k.SetArg(0, foreign)
		assert.True(t, accel.IsStatus(err, accel.StatusInvalidMemObject))
	})
}

func TestEnqueueKernelErrors(t *testing.T) {
	f := newFixture(t)
	k := f.kernel(t, aplusb, "aplusb")

	_, err := f.queue.EnqueueKernel(k, 256, 128)
	assert.True(t, accel.IsStatus(err, accel.StatusInvalidKernelArgs), "unset args: %v", err)

	buf, err := f.ctx.CreateBuffer(accel.MemReadWrite, accel.Float32, 256, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, k.SetArg(i, buf))
	}
	require.NoError(t, k.SetArg(3, uint32(256)))

	tests := []struct {
		name          string
		global, local int
		want          accel.Status
	}{
		{"zero global", 0, 128, accel.StatusInvalidGlobalWorkSize},
		{"indivisible", 200, 128, accel.StatusInvalidWorkGroupSize},
		{"local too large", 4096, 2048, accel.StatusInvalidWorkGroupSize},
		{"zero local", 256, 0, accel.StatusInvalidWorkGroupSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.queue.EnqueueKernel(k, tt.global, tt.local)
			assert.True(t, accel.IsStatus(err, tt.want), "got %v", err)
		})
	}

	t.Run("abort surfaces on wait", func(t *testing.T) {
		require.NoError(t, k.SetArg(3, uint32(512)))
		ev, err := f.queue.EnqueueKernel(k, 512, 128)
		require.NoError(t, err)
		err = ev.Wait()
		assert.True(t, accel.IsStatus(err, accel.StatusWaitListFailed), "got %v", err)
		assert.ErrorContains(t, err, "out-of-bounds")
		require.NoError(t, ev.Release())
		assert.True(t, accel.IsStatus(ev.Wait(), accel.StatusInvalidEvent))
	})
}

func TestQueueOrdering(t *testing.T) {
	f := newFixture(t)
	src := `__kernel void inc(__global int* v) { v[get_global_id(0)] += 1; }`
	k := f.kernel(t, src, "inc")
	buf, err := f.ctx.CreateBuffer(accel.MemReadWrite, accel.Int32, 128, make([]byte, 128*4))
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, buf))

	events := make([]accel.Event, 5)
	for i := range events {
		events[i], err = f.queue.EnqueueKernel(k, 128, 64)
		require.NoError(t, err)
	}
	require.NoError(t, f.queue.Finish())

	var prev accel.Profile
	for i, ev := range events {
		p, err := ev.(accel.Profiler).Profile()
		require.NoError(t, err)
		if i > 0 {
			assert.False(t, p.Start.Before(prev.End), "command %d started before %d ended", i, i-1)
		}
		prev = p
		require.NoError(t, ev.Release())
	}

	out := make([]int32, 128)
	require.NoError(t, f.queue.ReadBuffer(buf, accel.Bytes(out)))
	for _, v := range out {
		require.Equal(t, int32(5), v)
	}
}

func TestQueueRelease(t *testing.T) {
	f := newFixture(t)
	q, err := f.ctx.CreateQueue(0)
	require.NoError(t, err)
	require.NoError(t, q.Release())
	assert.True(t, accel.IsStatus(q.Release(), accel.StatusInvalidCommandQueue))
	assert.True(t, accel.IsStatus(q.Finish(), accel.StatusInvalidCommandQueue))

	_, err = f.ctx.CreateQueue(accel.QueueOutOfOrder)
	assert.True(t, accel.IsStatus(err, accel.StatusInvalidQueueProperties))
}

func TestWaitAndRelease(t *testing.T) {
	t.Run("released after success", func(t *testing.T) {
		ev := newEvent()
		ev.finish(nil)
		require.NoError(t, waitAndRelease(ev))
		assert.True(t, accel.IsStatus(ev.Release(), accel.StatusInvalidEvent))
	})

	t.Run("released after failed command", func(t *testing.T) {
		ev := newEvent()
		ev.finish(accel.NewError("aplusb", accel.StatusOutOfResources))
		err := waitAndRelease(ev)
		require.Len(t, multierr.Errors(err), 1)
		assert.True(t, accel.IsStatus(err, accel.StatusWaitListFailed))
		assert.True(t, accel.IsStatus(ev.Release(), accel.StatusInvalidEvent))
	})

	t.Run("release failure is reported", func(t *testing.T) {
		ev := newEvent()
		ev.finish(nil)
		require.NoError(t, ev.Release())
		errs := multierr.Errors(waitAndRelease(ev))
		require.Len(t, errs, 2, "wait and release both fail on a released event")
		for _, err := range errs {
			assert.True(t, accel.IsStatus(err, accel.StatusInvalidEvent), "err=%v", err)
		}
	})
}
