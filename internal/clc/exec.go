package clc

import (
	"fmt"
)

type workItem struct {
	global     int64
	local      int64
	group      int64
	globalSize int64
	localSize  int64
	numGroups  int64
}

// frame is the private state of the work-item currently executing on one
// goroutine. Locals live in typed slot arrays sized at compile time.
type frame struct {
	f      []float32
	i      []int64
	fb     [][]float32
	ib     [][]int32
	ub     [][]uint32
	item   workItem
	launch *Launch
}

// Param describes a kernel parameter and how the kernel body uses it.
type Param struct {
	Name string
	Type Type

	// Read and Written report whether the body loads from or stores
	// through a pointer parameter.
	Read    bool
	Written bool

	slot int
}

// Kernel is a compiled entry point.
type Kernel struct {
	Name   string
	Params []Param

	nf, ni        int
	nfb, nib, nub int
	prologue      []func(*frame)
	body          stmtFn
}

// ArgError reports an argument that does not match the kernel signature.
type ArgError struct {
	Index  int
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %d: %s", e.Index, e.Reason)
}

// BoundsError is raised when a work-item indexes outside a buffer.
type BoundsError struct {
	Param string
	Index int64
	Len   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("out-of-bounds access to '%s' at index %d (length %d)", e.Param, e.Index, e.Len)
}

// ExecError reports a work-item that aborted.
type ExecError struct {
	Kernel   string
	GlobalID int64
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("kernel '%s' aborted in work-item %d: %v", e.Kernel, e.GlobalID, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Launch is a kernel with its arguments bound.
type Launch struct {
	k  *Kernel
	fb [][]float32
	ib [][]int32
	ub [][]uint32
	sf []float32
	si []int64
}

// Bind checks args against the kernel signature. Pointer parameters take
// []float32, []int32 or []uint32 of the matching element type; scalar
// parameters take float32, int32 or uint32.
func (k *Kernel) Bind(args []any) (*Launch, error) {
	if len(args) != len(k.Params) {
		return nil, &ArgError{Index: len(args), Reason: fmt.Sprintf("kernel '%s' takes %d arguments, got %d", k.Name, len(k.Params), len(args))}
	}
	l := &Launch{
		k:  k,
		fb: make([][]float32, k.nfb),
		ib: make([][]int32, k.nib),
		ub: make([][]uint32, k.nub),
		sf: make([]float32, len(k.Params)),
		si: make([]int64, len(k.Params)),
	}
	for i, p := range k.Params {
		arg := args[i]
		mismatch := &ArgError{Index: i, Reason: fmt.Sprintf("parameter '%s' has type '%s', got %T", p.Name, p.Type, arg)}
		if p.Type.Pointer {
			switch p.Type.Base {
			case Float:
				s, ok := arg.([]float32)
				if !ok {
					return nil, mismatch
				}
				l.fb[p.slot] = s
			case Int:
				s, ok := arg.([]int32)
				if !ok {
					return nil, mismatch
				}
				l.ib[p.slot] = s
			case Uint:
				s, ok := arg.([]uint32)
				if !ok {
					return nil, mismatch
				}
				l.ub[p.slot] = s
			}
			continue
		}
		switch v := arg.(type) {
		case float32:
			if p.Type.Base != Float {
				return nil, mismatch
			}
			l.sf[i] = v
		case int32:
			if p.Type.Base == Float {
				return nil, mismatch
			}
			l.si[i] = wrap(p.Type.Base, int64(v))
		case uint32:
			if p.Type.Base == Float {
				return nil, mismatch
			}
			l.si[i] = wrap(p.Type.Base, int64(v))
		default:
			return nil, mismatch
		}
	}
	return l, nil
}

// Run executes work-groups [first, last) of a one-dimensional range of
// globalSize work-items split into groups of localSize. Work-items of a
// group run one after another on the calling goroutine.
func (l *Launch) Run(first, last, localSize, globalSize int) (err error) {
	k := l.k
	fr := &frame{
		f:      make([]float32, k.nf),
		i:      make([]int64, k.ni),
		fb:     l.fb,
		ib:     l.ib,
		ub:     l.ub,
		launch: l,
	}
	fr.item.globalSize = int64(globalSize)
	fr.item.localSize = int64(localSize)
	fr.item.numGroups = int64(globalSize / localSize)

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = &ExecError{Kernel: k.Name, GlobalID: fr.item.global, Err: cause}
		}
	}()

	for g := first; g < last; g++ {
		fr.item.group = int64(g)
		base := int64(g) * int64(localSize)
		for li := 0; li < localSize; li++ {
			fr.item.local = int64(li)
			fr.item.global = base + int64(li)
			for _, load := range k.prologue {
				load(fr)
			}
			k.body(fr)
		}
	}
	return nil
}
