package config

import (
	"fmt"
	"math"
	"os"

	"github.com/fxnlabs/kernelbench/internal/gpu"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Format    string `yaml:"format"`
	} `yaml:"logger"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Device    struct {
		Preference    string `yaml:"preference"`
		Workers       int    `yaml:"workers"`
		MemoryLimitMB int64  `yaml:"memoryLimitMB"`
	} `yaml:"device"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// BenchmarkConfig describes one kernel scenario.
type BenchmarkConfig struct {
	KernelPath   string `yaml:"kernelPath"`
	EntryPoint   string `yaml:"entryPoint"`
	BuildOptions string `yaml:"buildOptions"`
	Elements     int    `yaml:"elements"`
	Iterations   int    `yaml:"iterations"`
	LocalSize    int    `yaml:"localSize"`
	Seed         uint64 `yaml:"seed"`
}

// Default returns the aplusb scenario.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Benchmark = BenchmarkConfig{
		KernelPath: "kernels/aplusb.cl",
		EntryPoint: "aplusb",
		Elements:   10_000_000,
		Iterations: 20,
		LocalSize:  128,
		Seed:       42,
	}
	c.Device.Preference = string(gpu.PreferAuto)
	return &c
}

// LoadConfig reads path over the defaults. Keys missing from the file keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	b := c.Benchmark
	switch {
	case b.EntryPoint == "":
		return fmt.Errorf("benchmark.entryPoint must not be empty")
	case b.Elements < 1:
		return fmt.Errorf("benchmark.elements must be positive, got %d", b.Elements)
	case uint64(b.Elements) > math.MaxUint32:
		// The element count is passed to the kernel as a 32-bit uint.
		return fmt.Errorf("benchmark.elements must fit in 32 bits, got %d", b.Elements)
	case b.Iterations < 1:
		return fmt.Errorf("benchmark.iterations must be positive, got %d", b.Iterations)
	case b.LocalSize < 1:
		return fmt.Errorf("benchmark.localSize must be positive, got %d", b.LocalSize)
	case c.Device.Workers < 0:
		return fmt.Errorf("device.workers must not be negative, got %d", c.Device.Workers)
	case c.Device.MemoryLimitMB < 0:
		return fmt.Errorf("device.memoryLimitMB must not be negative, got %d", c.Device.MemoryLimitMB)
	}
	if _, err := gpu.ParsePreference(c.Device.Preference); err != nil {
		return err
	}
	return nil
}
