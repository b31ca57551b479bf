package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/kernelbench/internal/config"
	"github.com/fxnlabs/kernelbench/internal/kernel"
	"github.com/fxnlabs/kernelbench/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yaml"

// env is what the Before hook prepares for every command.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err with its call site and stack, followed by the
// compiler output when the kernel failed to build.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %+v\n", err)
	var be *kernel.BuildError
	if errors.As(err, &be) && be.Log != "" {
		fmt.Fprintf(w, "Build log:\n%s\n", be.Log)
	}
}

func newApp() *cli.App {
	e := &env{}
	var configPath string

	return &cli.App{
		Name:  "kernelbench",
		Usage: "Benchmark and verify a compute kernel on an accelerator",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       defaultConfigPath,
				Usage:       "Path to the configuration file; built-in defaults are used when the default path does not exist",
				EnvVars:     []string{"KERNELBENCH_CONFIG"},
				Destination: &configPath,
			},
		}, overrideFlags()...),
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(configPath, c.IsSet("config"))
			if err != nil {
				return err
			}
			applyOverrides(c, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error { return runBenchmark(c, e) },
		Commands: []*cli.Command{
			runCommand(e),
			devicesCommand(e),
			initCommand(),
		},
	}
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "verbosity", Usage: "Log level (debug, info, warn, error)"},
		&cli.StringFlag{Name: "log-format", Usage: "Log encoding (json or console)"},
		&cli.StringFlag{Name: "kernel", Usage: "Kernel source path"},
		&cli.StringFlag{Name: "entry", Usage: "Kernel entry point"},
		&cli.StringFlag{Name: "build-options", Usage: "Options passed to the kernel compiler"},
		&cli.IntFlag{Name: "elements", Aliases: []string{"n"}, Usage: "Number of elements per buffer"},
		&cli.IntFlag{Name: "iterations", Usage: "Timed launches and read-backs"},
		&cli.IntFlag{Name: "local-size", Usage: "Work-group size"},
		&cli.Uint64Flag{Name: "seed", Usage: "Seed of the input data"},
		&cli.StringFlag{Name: "device", Usage: "Device preference (auto, gpu or cpu)"},
		&cli.IntFlag{Name: "workers", Usage: "Goroutines of the software device (0 uses every CPU)"},
		&cli.Int64Flag{Name: "memory-limit-mb", Usage: "Memory of the software device (0 uses the host memory size)"},
		&cli.BoolFlag{Name: "metrics", Usage: "Write Prometheus metrics to stderr after the run"},
	}
}

// applyOverrides copies the flags given on the command line over cfg.
func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("verbosity") {
		cfg.Logger.Verbosity = c.String("verbosity")
	}
	if c.IsSet("log-format") {
		cfg.Logger.Format = c.String("log-format")
	}
	b := &cfg.Benchmark
	if c.IsSet("kernel") {
		b.KernelPath = c.String("kernel")
	}
	if c.IsSet("entry") {
		b.EntryPoint = c.String("entry")
	}
	if c.IsSet("build-options") {
		b.BuildOptions = c.String("build-options")
	}
	if c.IsSet("elements") {
		b.Elements = c.Int("elements")
	}
	if c.IsSet("iterations") {
		b.Iterations = c.Int("iterations")
	}
	if c.IsSet("local-size") {
		b.LocalSize = c.Int("local-size")
	}
	if c.IsSet("seed") {
		b.Seed = c.Uint64("seed")
	}
	if c.IsSet("device") {
		cfg.Device.Preference = c.String("device")
	}
	if c.IsSet("workers") {
		cfg.Device.Workers = c.Int("workers")
	}
	if c.IsSet("memory-limit-mb") {
		cfg.Device.MemoryLimitMB = c.Int64("memory-limit-mb")
	}
	if c.IsSet("metrics") {
		cfg.Metrics.Enabled = c.Bool("metrics")
	}
}
