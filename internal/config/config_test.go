package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/kernelbench/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("template matches defaults", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, string(fixtures.ConfigTemplate)))
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
		assert.NoError(t, config.Validate())
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, `
logger:
  verbosity: debug
  format: console
benchmark:
  elements: 4096
device:
  preference: cpu
  workers: 2
metrics:
  enabled: true
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Format)
		assert.Equal(t, 4096, config.Benchmark.Elements)
		assert.Equal(t, 20, config.Benchmark.Iterations)
		assert.Equal(t, 128, config.Benchmark.LocalSize)
		assert.Equal(t, "aplusb", config.Benchmark.EntryPoint)
		assert.Equal(t, uint64(42), config.Benchmark.Seed)
		assert.Equal(t, "cpu", config.Device.Preference)
		assert.Equal(t, 2, config.Device.Workers)
		assert.True(t, config.Metrics.Enabled)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "benchmark: [elements"))
		assert.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "benchmark:\n  elements: many\n"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"empty entry point", func(c *Config) { c.Benchmark.EntryPoint = "" }, "entryPoint"},
		{"zero elements", func(c *Config) { c.Benchmark.Elements = 0 }, "elements"},
		{"largest 32-bit element count", func(c *Config) { c.Benchmark.Elements = math.MaxUint32 }, ""},
		{"element count above 32 bits", func(c *Config) { c.Benchmark.Elements = math.MaxUint32 + 1 }, "32 bits"},
		{"negative iterations", func(c *Config) { c.Benchmark.Iterations = -1 }, "iterations"},
		{"zero local size", func(c *Config) { c.Benchmark.LocalSize = 0 }, "localSize"},
		{"negative workers", func(c *Config) { c.Device.Workers = -2 }, "workers"},
		{"negative memory limit", func(c *Config) { c.Device.MemoryLimitMB = -1 }, "memoryLimitMB"},
		{"unknown preference", func(c *Config) { c.Device.Preference = "fpga" }, "fpga"},
		{"empty preference", func(c *Config) { c.Device.Preference = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
