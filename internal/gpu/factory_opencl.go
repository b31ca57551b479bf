//go:build opencl
// +build opencl

package gpu

import (
	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/accel/opencl"
	"github.com/fxnlabs/kernelbench/internal/accel/soft"
	"go.uber.org/zap"
)

// DefaultDrivers returns the OpenCL driver followed by the software runtime.
func DefaultDrivers(logger *zap.Logger, opts ...soft.Option) []accel.Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	drivers := make([]accel.Driver, 0, 2)
	if drv, err := opencl.NewDriver(logger); err == nil {
		drivers = append(drivers, drv)
	} else {
		logger.Warn("OpenCL driver unavailable", zap.Error(err))
	}
	return append(drivers, soft.NewDriver(logger, opts...))
}
