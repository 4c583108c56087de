// Package sysalloc is the region library's default block allocator: the
// Alloc/Dealloc pair a Region falls back to when no AllocationPolicy
// override is supplied. Platform-specific strategies live in the
// build-tagged files alongside this one.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package sysalloc

// Alloc obtains a fresh block of at least size bytes from the platform's
// preferred bulk allocation path, falling back to the Go heap on failure.
func Alloc(size int) ([]byte, error) {
	return alloc(size)
}

// Dealloc releases memory previously returned by Alloc. It is a no-op for
// memory that fell back to the Go heap.
func Dealloc(buf []byte) {
	dealloc(buf)
}
