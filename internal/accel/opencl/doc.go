// Package opencl binds the accel interfaces to a system OpenCL 1.2 runtime
// through cgo. It is compiled only with the opencl build tag; without it
// NewDriver reports ErrUnavailable and the software runtime is used alone.
package opencl

import "errors"

// ErrUnavailable is returned when OpenCL support was not compiled in.
var ErrUnavailable = errors.New("opencl: support not compiled in (rebuild with -tags opencl)")
