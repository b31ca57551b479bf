package soft

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"github.com/fxnlabs/kernelbench/internal/clc"
	"go.uber.org/zap"
)

// Program is kernel source compiled by clc.
type Program struct {
	handle
	ctx    *Context
	source string

	mu       sync.Mutex
	built    *clc.Program
	buildLog string
}

func (p *Program) Release() error {
	return p.release("ReleaseProgram")
}

func (p *Program) checkDevice(op string, device accel.Device) error {
	if err := p.live(op); err != nil {
		return err
	}
	if dev, ok := device.(*Device); !ok || dev != p.ctx.device {
		return accel.Errorf(op, accel.StatusInvalidDevice, "device %v is not associated with the program", device)
	}
	return nil
}

func (p *Program) Build(device accel.Device, options string) error {
	const op = "BuildProgram"
	if err := p.checkDevice(op, device); err != nil {
		return err
	}
	opts, unknown := clc.ParseOptions(options)
	prog, log := clc.Compile(p.source, opts)

	var sb strings.Builder
	for _, o := range unknown {
		fmt.Fprintf(&sb, "<options>: warning: unknown build option '%s' ignored\n", o)
	}
	sb.WriteString(log.String())

	p.mu.Lock()
	p.built = prog
	p.buildLog = sb.String()
	p.mu.Unlock()

	if prog == nil {
		return accel.Errorf(op, accel.StatusBuildProgramFailure, "%d error(s) in program source", log.Errors())
	}
	p.ctx.log.Debug("program built", zap.Stringer("program", p), zap.Strings("kernels", prog.Kernels()), zap.Int("warnings", log.Warnings()))
	return nil
}

func (p *Program) BuildLog(device accel.Device) (string, error) {
	if err := p.checkDevice("GetProgramBuildInfo", device); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildLog, nil
}

func (p *Program) CreateKernel(name string) (accel.Kernel, error) {
	const op = "CreateKernel"
	if err := p.live(op); err != nil {
		return nil, err
	}
	p.mu.Lock()
	built := p.built
	p.mu.Unlock()
	if built == nil {
		return nil, accel.Errorf(op, accel.StatusInvalidProgramExecutable, "program has no successfully built executable")
	}
	k, ok := built.Kernel(name)
	if !ok {
		return nil, accel.Errorf(op, accel.StatusInvalidKernelName, "no kernel named %q (program defines %s)", name, strings.Join(built.Kernels(), ", "))
	}
	return &Kernel{
		handle:  handle{kind: accel.KindKernel, id: nextID()},
		program: p,
		fn:      k,
		args:    make([]any, len(k.Params)),
	}, nil
}

// Kernel is a compiled entry point with its argument slots.
type Kernel struct {
	handle
	program *Program
	fn      *clc.Kernel

	mu   sync.Mutex
	args []any
}

func (k *Kernel) Name() string { return k.fn.Name }

func (k *Kernel) NumArgs() int { return len(k.fn.Params) }

func (k *Kernel) Release() error {
	return k.release("ReleaseKernel")
}

// SetArg binds a buffer or a 32-bit scalar. Buffers must hold the pointee
// type and allow the accesses the kernel body performs.
func (k *Kernel) SetArg(index int, value any) error {
	const op = "SetKernelArg"
	if err := k.live(op); err != nil {
		return err
	}
	if index < 0 || index >= len(k.fn.Params) {
		return accel.Errorf(op, accel.StatusInvalidArgIndex, "kernel '%s' has %d arguments, index %d", k.fn.Name, len(k.fn.Params), index)
	}
	p := k.fn.Params[index]

	if p.Type.Pointer {
		buf, ok := value.(*Buffer)
		if !ok {
			return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') needs a buffer, got %T", index, p.Name, value)
		}
		if err := buf.live(op); err != nil {
			return err
		}
		if buf.ctx != k.program.ctx {
			return accel.Errorf(op, accel.StatusInvalidMemObject, "buffer %v belongs to another context", buf)
		}
		if elemOf(p.Type.Base) != buf.elem {
			return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') is '%s', buffer holds %v", index, p.Name, p.Type, buf.elem)
		}
		if p.Read && !buf.flags.KernelCanRead() {
			return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') is read by the kernel but buffer is %v", index, p.Name, buf.flags)
		}
		if p.Written && !buf.flags.KernelCanWrite() {
			return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') is written by the kernel but buffer is %v", index, p.Name, buf.flags)
		}
	} else {
		switch value.(type) {
		case float32:
			if p.Type.Base != clc.Float {
				return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') is '%s', got float32", index, p.Name, p.Type)
			}
		case int32, uint32:
			if p.Type.Base == clc.Float {
				return accel.Errorf(op, accel.StatusInvalidArgValue, "argument %d ('%s') is 'float', got %T", index, p.Name, value)
			}
		default:
			return accel.Errorf(op, accel.StatusInvalidArgSize, "argument %d ('%s') has unsupported host type %T", index, p.Name, value)
		}
	}

	k.mu.Lock()
	k.args[index] = value
	k.mu.Unlock()
	return nil
}

// bind snapshots the current arguments into a launch.
func (k *Kernel) bind(op string) (*clc.Launch, error) {
	k.mu.Lock()
	args := make([]any, len(k.args))
	copy(args, k.args)
	k.mu.Unlock()

	for i, a := range args {
		switch v := a.(type) {
		case nil:
			return nil, accel.Errorf(op, accel.StatusInvalidKernelArgs, "argument %d ('%s') of kernel '%s' is not set", i, k.fn.Params[i].Name, k.fn.Name)
		case *Buffer:
			if v.released.Load() {
				return nil, accel.Errorf(op, accel.StatusInvalidKernelArgs, "argument %d refers to released %v", i, v)
			}
			args[i] = v.view()
		}
	}
	launch, err := k.fn.Bind(args)
	if err != nil {
		return nil, &accel.APIError{Op: op, Code: accel.StatusInvalidKernelArgs, Err: err}
	}
	return launch, nil
}

func elemOf(b clc.BaseType) accel.ElemType {
	switch b {
	case clc.Float:
		return accel.Float32
	case clc.Int:
		return accel.Int32
	case clc.Uint:
		return accel.Uint32
	}
	return 0
}
