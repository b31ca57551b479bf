//go:build !opencl

package opencl

import (
	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/zap"
)

// Available reports whether the package was built against an OpenCL ICD.
const Available = false

// Driver is a placeholder when the binary is built without the opencl tag.
type Driver struct{}

// NewDriver always fails with ErrUnavailable.
func NewDriver(*zap.Logger) (*Driver, error) {
	return nil, ErrUnavailable
}

func (d *Driver) Name() string { return "opencl" }

func (d *Driver) Platforms() ([]accel.Platform, error) {
	return nil, ErrUnavailable
}
