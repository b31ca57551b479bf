// Package kernel loads kernel source, builds it for the selected device and
// extracts entry points. The build log is fetched after every build, and
// never skipped when the build fails.
package kernel

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/compute"
	"github.com/fxnlabs/kernelbench/internal/lifetime"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrEmptySource is returned for a source file without any content.
var ErrEmptySource = stderrors.New("kernel source is empty")

// BuildError is a failed compilation. Log holds the complete compiler
// output for the target device.
type BuildError struct {
	Code accel.Status
	Log  string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("kernel build failed with code %d (%s)", int32(e.Code), e.Code)
}

func (e *BuildError) Unwrap() error { return e.Err }

// EntryPointNotFoundError is returned when the built program has no kernel
// with the requested name.
type EntryPointNotFoundError struct {
	Name string
	Err  error
}

func (e *EntryPointNotFoundError) Error() string {
	return fmt.Sprintf("entry point %q not found in program", e.Name)
}

func (e *EntryPointNotFoundError) Unwrap() error { return e.Err }

// ReadSource loads kernel source text from path.
func ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read kernel source %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.Wrapf(ErrEmptySource, "read kernel source %s", path)
	}
	return string(data), nil
}

// Builder compiles programs on a compute context.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("kernel")}
}

// Build creates a program from source and builds it for the context's
// device. The program is registered with scope whether or not the build
// succeeds.
func (b *Builder) Build(scope *lifetime.Scope, cc *compute.Context, source, options string) (accel.Program, error) {
	prog, err := cc.Context.CreateProgram(source)
	if err != nil {
		return nil, accel.Check(err)
	}
	scope.Register(prog)

	buildErr := prog.Build(cc.Device, options)
	buildLog, logErr := prog.BuildLog(cc.Device)
	buildLog = strings.TrimRight(buildLog, "\n")

	if buildErr != nil {
		if buildLog != "" {
			b.logger.Warn("kernel build log", zap.String("log", buildLog))
		}
		code, ok := accel.StatusOf(buildErr)
		if !ok {
			code = accel.StatusBuildProgramFailure
		}
		if logErr != nil {
			b.logger.Error("failed to fetch build log", zap.Error(logErr))
		}
		return nil, &BuildError{Code: code, Log: buildLog, Err: accel.Check(buildErr)}
	}
	if logErr != nil {
		return nil, accel.Check(logErr)
	}
	if buildLog != "" {
		b.logger.Info("kernel build log", zap.String("log", buildLog))
	}
	b.logger.Debug("program built", zap.String("options", options))
	return prog, nil
}

// Extract creates the named kernel and registers it with scope.
func (b *Builder) Extract(scope *lifetime.Scope, prog accel.Program, name string) (accel.Kernel, error) {
	k, err := prog.CreateKernel(name)
	if accel.IsStatus(err, accel.StatusInvalidKernelName) {
		return nil, &EntryPointNotFoundError{Name: name, Err: accel.Check(err)}
	}
	if err != nil {
		return nil, accel.Check(err)
	}
	scope.Register(k)
	b.logger.Debug("kernel extracted", zap.String("name", name), zap.Int("args", k.NumArgs()))
	return k, nil
}
