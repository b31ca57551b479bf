//go:build !opencl
// +build !opencl

package gpu

import (
	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/accel/soft"
	"go.uber.org/zap"
)

// DefaultDrivers returns the drivers compiled into the binary. Without the
// opencl tag only the software runtime is available.
func DefaultDrivers(logger *zap.Logger, opts ...soft.Option) []accel.Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("compiled without OpenCL support, using the software runtime")
	return []accel.Driver{soft.NewDriver(logger, opts...)}
}
