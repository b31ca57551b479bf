package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err = app.Run(append([]string{"kernelbench", "--verbosity", "error"}, args...))
	return out.String(), errOut.String(), err
}

// initDir writes the starter files into a fresh directory.
func initDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out, _, err := runApp(t, "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "config.yaml"))
	return dir
}

func TestInit(t *testing.T) {
	dir := initDir(t)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "kernels", "aplusb.cl"))

	_, _, err := runApp(t, "init", "--dir", dir)
	assert.ErrorContains(t, err, "already exists")

	_, _, err = runApp(t, "init", "--dir", dir, "--force")
	assert.NoError(t, err)
}

func TestRun(t *testing.T) {
	dir := initDir(t)
	base := []string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--kernel", filepath.Join(dir, "kernels", "aplusb.cl"),
		"--elements", "5000",
		"--workers", "2",
	}

	t.Run("default command", func(t *testing.T) {
		out, _, err := runApp(t, base...)
		require.NoError(t, err)
		assert.Contains(t, out, "Kernel average time: ")
		assert.Contains(t, out, "GFlops: ")
		assert.Contains(t, out, "VRAM bandwidth: ")
		assert.Contains(t, out, "Result: OK (5000 elements checked)")
	})

	t.Run("metrics", func(t *testing.T) {
		out, errOut, err := runApp(t, append(base, "--metrics", "run")...)
		require.NoError(t, err)
		assert.Contains(t, out, "Result: OK")
		assert.Contains(t, errOut, `kernelbench_runs_total{result="pass"} 1`)
		assert.Contains(t, errOut, "kernelbench_kernel_lap_seconds_count 20")
	})

	t.Run("missing entry point", func(t *testing.T) {
		_, _, err := runApp(t, append(base, "--entry", "amulb", "run")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `entry point "amulb" not found`)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		_, _, err := runApp(t, append(base, "--local-size", "0")...)
		assert.ErrorContains(t, err, "localSize")
	})
}

func TestBuildFailurePrintsLog(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.cl")
	require.NoError(t, os.WriteFile(src, []byte("__kernel void aplusb(__global float* c) { c[0] = ; }"), 0o644))

	_, _, err := runApp(t, "--kernel", src, "--elements", "100", "--workers", "1")
	require.Error(t, err)

	var buf bytes.Buffer
	reportError(&buf, err)
	assert.Contains(t, buf.String(), "Error: kernel build failed")
	assert.Contains(t, buf.String(), "Build log:\n")
	assert.Contains(t, buf.String(), "expected expression")
}

func TestMissingConfig(t *testing.T) {
	_, _, err := runApp(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "devices")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDevices(t *testing.T) {
	out, _, err := runApp(t, "--workers", "3", "devices", "--no-banner")
	require.NoError(t, err)
	assert.Contains(t, out, "Number of platforms: ")
	assert.Contains(t, out, "(soft)")
	assert.Contains(t, out, "compute units: 3")
	assert.Contains(t, out, "Selected: ")
}
