package heap

import "unsafe"

// asBytes views an allocated block's payload as a byte slice for test
// assertions, without claiming any lifetime guarantee beyond the
// corresponding deallocate.
func asBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// asPointer recovers the unsafe.Pointer backing a slice produced by
// asBytes, for passing back into Deallocate/Reallocate.
func asPointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
