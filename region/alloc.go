// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import "unsafe"

// allocator is satisfied by both *Region and *Local, letting the generic
// helpers below work identically whether the caller bound a handle or not.
type allocator interface {
	AllocateAligned(n int) []byte
}

var (
	_ allocator = (*Region)(nil)
	_ allocator = (*Local)(nil)
)

// Alloc returns a pointer to a zeroed T carved out of a. The bytes are
// cleared explicitly: a user-owned initial block is reused after Reset, and
// a custom BlockAlloc may hand back memory that is not zeroed.
func Alloc[T any](a allocator) *T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	b := a.AllocateAligned(max(size, 1))
	clear(b)
	return (*T)(unsafe.Pointer(&b[0]))
}

// AllocSlice returns a slice of n contiguous, zeroed T values carved out of
// a. Returns nil if n <= 0.
func AllocSlice[T any](a allocator, n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	b := a.AllocateAligned(max(elemSize*n, 1))
	clear(b)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
