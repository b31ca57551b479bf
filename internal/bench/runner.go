// Package bench runs one kernel scenario end to end: device selection,
// uploads, build, timed dispatch, timed read-back and verification.
package bench

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/compute"
	"github.com/fxnlabs/kernelbench/internal/config"
	"github.com/fxnlabs/kernelbench/internal/dispatch"
	"github.com/fxnlabs/kernelbench/internal/gpu"
	"github.com/fxnlabs/kernelbench/internal/kernel"
	"github.com/fxnlabs/kernelbench/internal/lifetime"
	"github.com/fxnlabs/kernelbench/internal/metrics"
	"github.com/fxnlabs/kernelbench/internal/stats"
	"github.com/fxnlabs/kernelbench/internal/verify"
	"go.uber.org/zap"
)

// StartupError is a failure before any device resource exists.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed: %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

type Option func(*Runner)

// WithRecorder publishes laps and figures to rec.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithSource uses src instead of reading the configured kernel path.
func WithSource(src string) Option {
	return func(r *Runner) { r.source = src }
}

type Runner struct {
	cfg      config.BenchmarkConfig
	pref     gpu.Preference
	manager  *gpu.Manager
	logger   *zap.Logger
	recorder *metrics.Recorder
	source   string
}

func NewRunner(cfg *config.Config, manager *gpu.Manager, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pref, err := gpu.ParsePreference(cfg.Device.Preference)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg.Benchmark,
		pref:    pref,
		manager: manager,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the scenario once. Every device resource is released before
// Run returns. A verification failure returns the report together with a
// *verify.MismatchError.
func (r *Runner) Run() (report *Report, err error) {
	defer func() { r.recorder.RunFinished(resultOf(err)) }()

	source := r.source
	if source == "" {
		source, err = kernel.ReadSource(r.cfg.KernelPath)
		if err != nil {
			return nil, &StartupError{Stage: "load kernel", Err: err}
		}
	}

	sel, err := r.manager.Select(r.pref)
	if err != nil {
		return nil, &StartupError{Stage: "select device", Err: err}
	}

	scope := lifetime.New(r.logger)
	defer scope.CloseInto(&err)

	cc, err := compute.Create(scope, sel.Platform, sel.Device)
	if err != nil {
		return nil, err
	}

	n := r.cfg.Elements
	a, b := hostData(n, r.cfg.Seed)
	bufA, err := compute.Upload(scope, cc, accel.MemReadOnly, a)
	if err != nil {
		return nil, err
	}
	bufB, err := compute.Upload(scope, cc, accel.MemReadOnly, b)
	if err != nil {
		return nil, err
	}
	bufC, err := compute.Alloc[float32](scope, cc, accel.MemWriteOnly, n)
	if err != nil {
		return nil, err
	}

	builder := kernel.NewBuilder(r.logger)
	prog, err := builder.Build(scope, cc, source, r.cfg.BuildOptions)
	if err != nil {
		return nil, err
	}
	k, err := builder.Extract(scope, prog, r.cfg.EntryPoint)
	if err != nil {
		return nil, err
	}
	if err := dispatch.BindArgs(k, bufA, bufB, bufC, uint32(n)); err != nil {
		return nil, err
	}

	sched := dispatch.New(cc.Queue, r.logger,
		dispatch.WithIterations(r.cfg.Iterations),
		dispatch.WithLapObserver(r.recorder.ObserveKernelLap),
	)
	kernelTimer := stats.NewTimer()
	if err := sched.Run(k, n, r.cfg.LocalSize, kernelTimer); err != nil {
		return nil, err
	}

	c := make([]float32, n)
	transferTimer := stats.NewTimer()
	for i := 0; i < r.cfg.Iterations; i++ {
		if err := compute.Read(cc, bufC, c); err != nil {
			return nil, err
		}
		r.recorder.ObserveTransferLap(i, transferTimer.NextLap())
	}

	res, err := verify.Compare(c, a, b, verify.Add[float32], verify.Options{})
	if err != nil {
		return nil, err
	}

	report = newReport(sel, r.cfg, kernelTimer.Summary(), transferTimer.Summary(), res)
	r.recorder.SetFigures(report.GFlops, report.KernelGiB, report.TransferGiB)
	r.logger.Info("benchmark finished",
		zap.String("device", report.Device),
		zap.Float64("kernelMean", report.Kernel.Mean),
		zap.Float64("gflops", report.GFlops),
		zap.Bool("ok", res.OK()),
	)

	if !res.OK() {
		return report, &verify.MismatchError{
			Index:    res.First.Index,
			Expected: res.First.Expected,
			Actual:   res.First.Actual,
			Total:    res.Mismatches,
		}
	}
	return report, nil
}

// hostData fills both inputs from a PCG stream seeded with seed.
func hostData(n int, seed uint64) (a, b []float32) {
	rng := rand.New(rand.NewPCG(seed, seed))
	a, b = make([]float32, n), make([]float32, n)
	for i := range a {
		a[i] = rng.Float32()
		b[i] = rng.Float32()
	}
	return a, b
}

func resultOf(err error) string {
	var mm *verify.MismatchError
	switch {
	case err == nil:
		return metrics.ResultPass
	case errors.As(err, &mm):
		return metrics.ResultFail
	}
	return metrics.ResultError
}
