// Package verify recomputes a kernel's result on the host and compares it
// element by element with what the device produced.
package verify

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/fxnlabs/kernelbench/internal/accel"
)

// Options relaxes the comparison. The zero value compares exactly.
type Options struct {
	// MaxULP is the largest distance in units of least precision tolerated
	// between float32 values. Integer results are always compared exactly.
	MaxULP uint32
}

// Mismatch is one element that differs from the host reference.
type Mismatch struct {
	Index    int
	Expected float64
	Actual   float64
}

// Result summarises a comparison.
type Result struct {
	Checked    int
	Mismatches int
	First      *Mismatch
}

// OK reports whether every element matched.
func (r Result) OK() bool { return r.Mismatches == 0 }

// MismatchError is the first element where device and host disagree.
type MismatchError struct {
	Index    int
	Expected float64
	Actual   float64
	Total    int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("result mismatch at index %d: expected %v, got %v (%d mismatching elements)",
		e.Index, e.Expected, e.Actual, e.Total)
}

// LengthError is returned when the inputs are not the same length.
type LengthError struct {
	Device, A, B int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("length mismatch: device result %d, a %d, b %d", e.Device, e.A, e.B)
}

// Compare checks device[i] == op(a[i], b[i]) for every i.
func Compare[T accel.Scalar](device, a, b []T, op func(x, y T) T, opts Options) (Result, error) {
	if len(device) != len(a) || len(a) != len(b) {
		return Result{}, &LengthError{Device: len(device), A: len(a), B: len(b)}
	}
	res := Result{Checked: len(device)}
	for i := range device {
		want := op(a[i], b[i])
		if equal(want, device[i], opts) {
			continue
		}
		res.Mismatches++
		if res.First == nil {
			res.First = &Mismatch{Index: i, Expected: float64(want), Actual: float64(device[i])}
		}
	}
	return res, nil
}

// Verify is Compare reduced to an error: nil when everything matched,
// otherwise a *MismatchError for the first differing element.
func Verify[T accel.Scalar](device, a, b []T, op func(x, y T) T, opts Options) error {
	res, err := Compare(device, a, b, op, opts)
	if err != nil {
		return err
	}
	if res.OK() {
		return nil
	}
	return &MismatchError{
		Index:    res.First.Index,
		Expected: res.First.Expected,
		Actual:   res.First.Actual,
		Total:    res.Mismatches,
	}
}

// Add is the reference operation of the aplusb kernel.
func Add[T accel.Scalar](x, y T) T { return x + y }

func equal[T accel.Scalar](want, got T, opts Options) bool {
	if want == got {
		return true
	}
	w, ok := any(want).(float32)
	if !ok || opts.MaxULP == 0 {
		return false
	}
	return ulpDistance(w, any(got).(float32)) <= opts.MaxULP
}

// ulpDistance counts representable float32 values between a and b. NaNs
// are never close to anything.
func ulpDistance(a, b float32) uint32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return ^uint32(0)
	}
	ia, ib := ordered(a), ordered(b)
	if ia > ib {
		return uint32(ia - ib)
	}
	return uint32(ib - ia)
}

// ordered maps float32 bit patterns onto a monotonic integer line.
func ordered(f float32) int64 {
	bits := int64(int32(math.Float32bits(f)))
	if bits < 0 {
		return -(bits & 0x7fffffff)
	}
	return bits
}
