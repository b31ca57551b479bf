package accel

import "unsafe"

// Scalar is the set of host element types that map onto an ElemType.
type Scalar interface {
	float32 | int32 | uint32
}

// ElemOf returns the ElemType matching T.
func ElemOf[T Scalar]() ElemType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	default:
		return Uint32
	}
}

// Bytes reinterprets a host slice as its raw bytes without copying.
func Bytes[T Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}

// View reinterprets raw bytes as a slice of T without copying. Trailing
// bytes that do not form a whole element are ignored.
func View[T Scalar](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
