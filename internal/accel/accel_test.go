package accel

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "bare",
			err:  NewError("CreateContext", StatusDeviceNotAvailable),
			want: "CreateContext: error code -2 (CL_DEVICE_NOT_AVAILABLE)",
		},
		{
			name: "located with cause",
			err:  &APIError{Op: "BuildProgram", Code: StatusBuildProgramFailure, File: "kernel.go", Line: 42, Err: fmt.Errorf("2 errors")},
			want: "BuildProgram: error code -11 (CL_BUILD_PROGRAM_FAILURE) encountered at kernel.go:42: 2 errors",
		},
		{
			name: "unknown code",
			err:  NewError("Foo", Status(-9999)),
			want: "Foo: error code -9999 (CL_UNKNOWN_ERROR_-9999)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(nil))

	err := Check(NewError("EnqueueNDRangeKernel", StatusInvalidWorkGroupSize))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "accel_test.go", apiErr.File)
	assert.Positive(t, apiErr.Line)
	assert.True(t, IsStatus(err, StatusInvalidWorkGroupSize))

	// A second Check keeps the first call site.
	line := apiErr.Line
	again := Check(err)
	require.ErrorAs(t, again, &apiErr)
	assert.Equal(t, line, apiErr.Line)

	plain := errors.New("boom")
	_, ok := StatusOf(Check(plain))
	assert.False(t, ok)
}

func TestStatusOf(t *testing.T) {
	code, ok := StatusOf(nil)
	assert.True(t, ok)
	assert.Equal(t, StatusSuccess, code)

	wrapped := fmt.Errorf("dispatch: %w", Errorf("Finish", StatusOutOfResources, "device lost"))
	code, ok = StatusOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, StatusOutOfResources, code)
	assert.Equal(t, "CL_OUT_OF_RESOURCES", code.String())
}

func TestDeviceTypeString(t *testing.T) {
	assert.Equal(t, "GPU", DeviceTypeGPU.String())
	assert.Equal(t, "CPU|Default", (DeviceTypeCPU | DeviceTypeDefault).String())
	assert.Equal(t, "Unknown(0x0)", DeviceType(0).String())
}

func TestMemFlags(t *testing.T) {
	tests := []struct {
		flags     MemFlags
		read      bool
		write     bool
		rendering string
	}{
		{MemReadWrite, true, true, "read-write"},
		{MemReadOnly, true, false, "read-only"},
		{MemWriteOnly, false, true, "write-only"},
	}
	for _, tt := range tests {
		t.Run(tt.rendering, func(t *testing.T) {
			assert.Equal(t, tt.read, tt.flags.KernelCanRead())
			assert.Equal(t, tt.write, tt.flags.KernelCanWrite())
			assert.Equal(t, tt.rendering, tt.flags.String())
		})
	}
}

func TestKindInvalidStatus(t *testing.T) {
	assert.Equal(t, StatusInvalidMemObject, KindBuffer.InvalidStatus())
	assert.Equal(t, StatusInvalidCommandQueue, KindQueue.InvalidStatus())
	assert.Equal(t, StatusInvalidValue, KindSampler.InvalidStatus())
	assert.Equal(t, "kernel", KindKernel.String())
}

func TestScalarViews(t *testing.T) {
	assert.Equal(t, Float32, ElemOf[float32]())
	assert.Equal(t, Int32, ElemOf[int32]())
	assert.Equal(t, Uint32, ElemOf[uint32]())

	src := []float32{1.5, -2, 3.25}
	raw := Bytes(src)
	require.Len(t, raw, 12)

	view := View[float32](raw)
	assert.Equal(t, src, view)
	view[1] = 7
	assert.Equal(t, float32(7), src[1], "views share storage")

	assert.Nil(t, Bytes[int32](nil))
	assert.Nil(t, View[uint32](make([]byte, 3)))
}

func TestDeviceInfoMemoryMB(t *testing.T) {
	assert.Equal(t, uint64(2048), DeviceInfo{GlobalMemSize: 2 << 30}.MemoryMB())
}
