package main

import (
	"github.com/fxnlabs/kernelbench/internal/accel/soft"
	"github.com/fxnlabs/kernelbench/internal/bench"
	"github.com/fxnlabs/kernelbench/internal/config"
	"github.com/fxnlabs/kernelbench/internal/gpu"
	"github.com/fxnlabs/kernelbench/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Build the kernel, time it and verify the result (default)",
		Action: func(c *cli.Context) error { return runBenchmark(c, e) },
	}
}

func runBenchmark(c *cli.Context, e *env) error {
	manager := newManager(e.cfg, e.log)

	var (
		opts []bench.Option
		reg  *prometheus.Registry
	)
	if e.cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		opts = append(opts, bench.WithRecorder(metrics.NewRecorder(reg)))
	}

	runner, err := bench.NewRunner(e.cfg, manager, e.log, opts...)
	if err != nil {
		return err
	}
	report, err := runner.Run()
	if report != nil {
		if perr := report.Print(c.App.Writer); perr != nil {
			e.log.Warn("failed to print report", zap.Error(perr))
		}
	}
	if reg != nil {
		if derr := metrics.Dump(c.App.ErrWriter, reg); derr != nil {
			e.log.Warn("failed to write metrics", zap.Error(derr))
		}
	}
	return err
}

func newManager(cfg *config.Config, log *zap.Logger) *gpu.Manager {
	opts := []soft.Option{soft.WithWorkers(cfg.Device.Workers)}
	if cfg.Device.MemoryLimitMB > 0 {
		opts = append(opts, soft.WithMemoryLimit(uint64(cfg.Device.MemoryLimitMB)<<20))
	}
	return gpu.NewManager(log, gpu.DefaultDrivers(log, opts...)...)
}
