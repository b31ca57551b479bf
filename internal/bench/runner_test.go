package bench

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxnlabs/kernelbench/fixtures"
	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/accel/soft"
	"github.com/fxnlabs/kernelbench/internal/config"
	"github.com/fxnlabs/kernelbench/internal/gpu"
	"github.com/fxnlabs/kernelbench/internal/kernel"
	"github.com/fxnlabs/kernelbench/internal/metrics"
	"github.com/fxnlabs/kernelbench/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// corruptKernel is aplusb with element 77 off by one.
const corruptKernel = `__kernel void aplusb(__global const float* a,
                     __global const float* b,
                     __global       float* c,
                     unsigned int n)
{
    const unsigned int index = get_global_id(0);
    if (index >= n)
        return;
    float v = a[index] + b[index];
    if (index == 77)
        v = v + 1.0f;
    c[index] = v;
}`

func testConfig(elements int) *config.Config {
	cfg := config.Default()
	cfg.Benchmark.Elements = elements
	return cfg
}

func newManager(opts ...soft.Option) *gpu.Manager {
	opts = append([]soft.Option{soft.WithWorkers(4)}, opts...)
	return gpu.NewManager(zap.NewNop(), soft.NewDriver(nil, opts...))
}

// releasedCount returns the resource count of the last "scope closed" log.
func releasedCount(t *testing.T, logs *observer.ObservedLogs) int64 {
	t.Helper()
	closed := logs.FilterMessage("scope closed").All()
	require.NotEmpty(t, closed)
	return closed[len(closed)-1].ContextMap()["released"].(int64)
}

func TestRunAplusb(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	r, err := NewRunner(testConfig(10_000), newManager(), zap.New(core),
		WithSource(fixtures.AplusbKernel), WithRecorder(rec))
	require.NoError(t, err)

	report, err := r.Run()
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "soft", report.Driver)
	assert.Equal(t, 10_000, report.Elements)
	assert.Equal(t, 10_112, report.GlobalSize)
	assert.Equal(t, 20, report.Kernel.Count)
	assert.Equal(t, 12, report.Kernel.Used)
	assert.Equal(t, 20, report.Transfer.Count)
	assert.Positive(t, report.Kernel.Mean)
	assert.Positive(t, report.GFlops)
	assert.InEpsilon(t, 3*report.TransferGiB*report.Transfer.Mean/report.Kernel.Mean, report.KernelGiB, 1e-9)
	assert.True(t, report.Verification.OK())
	assert.Equal(t, 10_000, report.Verification.Checked)

	assert.Equal(t, int64(7), releasedCount(t, logs), "context, queue, three buffers, program and kernel")
	assert.Zero(t, logs.FilterMessage("failed to release resource").Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs.WithLabelValues(metrics.ResultPass)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.VerificationFailures))
	assert.Equal(t, report.GFlops, testutil.ToFloat64(rec.Throughput))

	var out bytes.Buffer
	require.NoError(t, report.Print(&out))
	assert.Contains(t, out.String(), "Kernel average time: ")
	assert.Contains(t, out.String(), "(12 of 20 laps used)")
	assert.Regexp(t, `VRAM bandwidth: [0-9.]+ GiB/s`, out.String())
	assert.Regexp(t, `VRAM -> RAM bandwidth: [0-9.]+ GiB/s`, out.String())
	assert.True(t, strings.HasSuffix(out.String(), "Result: OK (10000 elements checked)\n"))
}

func TestRunDetectsCorruptedElement(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	r, err := NewRunner(testConfig(1000), newManager(), nil, WithSource(corruptKernel), WithRecorder(rec))
	require.NoError(t, err)

	report, err := r.Run()
	var mm *verify.MismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, 77, mm.Index)
	assert.Equal(t, 1, mm.Total)
	assert.InDelta(t, mm.Expected+1, mm.Actual, 1e-6)

	require.NotNil(t, report, "the report is returned with the mismatch")
	assert.False(t, report.Verification.OK())

	var out bytes.Buffer
	require.NoError(t, report.Print(&out))
	assert.Contains(t, out.String(), "Result: FAIL at index 77")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs.WithLabelValues(metrics.ResultFail)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.VerificationFailures))
}

func TestRunStartupErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.cl")
	require.NoError(t, os.WriteFile(empty, []byte("  \n\t\n"), 0o644))

	tests := []struct {
		name    string
		path    string
		manager *gpu.Manager
		stage   string
		target  error
	}{
		{"missing kernel file", filepath.Join(dir, "missing.cl"), newManager(), "load kernel", os.ErrNotExist},
		{"empty kernel file", empty, newManager(), "load kernel", kernel.ErrEmptySource},
		{"no device", filepath.Join(dir, "unused.cl"), gpu.NewManager(nil), "select device", gpu.ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(100)
			cfg.Benchmark.KernelPath = tt.path
			var opts []Option
			if tt.target == gpu.ErrNoDevice {
				opts = append(opts, WithSource(fixtures.AplusbKernel))
			}
			r, err := NewRunner(cfg, tt.manager, nil, opts...)
			require.NoError(t, err)

			report, err := r.Run()
			assert.Nil(t, report)
			var se *StartupError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRunReleasesOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		entry    string
		opts     []soft.Option
		released int64
		check    func(t *testing.T, err error)
	}{
		{
			name:     "build failure",
			source:   "__kernel void aplusb(__global float* c) { c[0] = ; }",
			released: 6,
			check: func(t *testing.T, err error) {
				var be *kernel.BuildError
				require.ErrorAs(t, err, &be)
				assert.NotEmpty(t, be.Log)
			},
		},
		{
			name:     "missing entry point",
			source:   fixtures.AplusbKernel,
			entry:    "amulb",
			released: 6,
			check: func(t *testing.T, err error) {
				var ep *kernel.EntryPointNotFoundError
				require.ErrorAs(t, err, &ep)
				assert.Equal(t, "amulb", ep.Name)
			},
		},
		{
			name:     "device memory exhausted",
			source:   fixtures.AplusbKernel,
			opts:     []soft.Option{soft.WithMemoryLimit(1024)},
			released: 2,
			check: func(t *testing.T, err error) {
				assert.True(t, accel.IsStatus(err, accel.StatusMemObjectAllocationFailure), "err=%v", err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			cfg := testConfig(4096)
			if tt.entry != "" {
				cfg.Benchmark.EntryPoint = tt.entry
			}
			r, err := NewRunner(cfg, newManager(tt.opts...), zap.New(core), WithSource(tt.source))
			require.NoError(t, err)

			report, err := r.Run()
			assert.Nil(t, report)
			tt.check(t, err)
			assert.Equal(t, tt.released, releasedCount(t, logs))
		})
	}
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(0)
	_, err := NewRunner(cfg, newManager(), nil)
	assert.ErrorContains(t, err, "elements")
}

func TestHostDataIsSeeded(t *testing.T) {
	a1, b1 := hostData(64, 7)
	a2, b2 := hostData(64, 7)
	a3, _ := hostData(64, 8)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1, a3)
	assert.NotEqual(t, a1, b1)
}

func BenchmarkAplusb(b *testing.B) {
	r, err := NewRunner(testConfig(1<<20), newManager(), nil, WithSource(fixtures.AplusbKernel))
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		report, err := r.Run()
		if err != nil {
			b.Fatal(err)
		}
		b.ReportMetric(report.GFlops, "GFlops")
		b.ReportMetric(report.KernelGiB, "GiB/s")
		b.ReportMetric(report.Kernel.Mean*1e3, "ms/launch")
	}
}
