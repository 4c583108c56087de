//go:build linux

// Linux block allocator: anonymous mmap, optionally backed by 2 MiB
// hugepages, generalizing the hugepage-backed slab allocator strategy to an
// arbitrary block size instead of one fixed slab size. A failed hugepage
// mapping falls back to a plain mapping, and a failed plain mapping falls
// back to the Go heap.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sysalloc

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const hugePageSize = 2 << 20 // 2 MiB

// mmapped records the mapped length of every buffer this file handed out
// via mmap, keyed by the address of its first byte. dealloc consults this
// registry before ever calling Munmap: a heap-fallback buffer's address
// can coincidentally fall inside a real mmap'd region the Go runtime
// itself manages (large heap allocations are backed by mmap'd arenas), so
// Munmap must never be attempted on a buffer this file didn't map itself.
var mmapped sync.Map // map[uintptr]int: base address -> mapped length

func baseAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

func alloc(size int) ([]byte, error) {
	if size >= hugePageSize {
		length := ((size + hugePageSize - 1) / hugePageSize) * hugePageSize
		data, err := unix.Mmap(-1, 0, length,
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_ANONYMOUS|unix.MAP_PRIVATE|unix.MAP_HUGETLB)
		if err == nil {
			// Keep the full rounded-up mapping as the block's capacity
			// rather than reslicing down to size, so dealloc's Munmap
			// length matches what was actually mapped.
			mmapped.Store(baseAddr(data), length)
			return data, nil
		}
	}

	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, size), nil
	}
	mmapped.Store(baseAddr(data), size)
	return data, nil
}

func dealloc(buf []byte) {
	if len(buf) == 0 {
		return
	}
	addr := baseAddr(buf)
	length, ok := mmapped.Load(addr)
	if !ok {
		// A Go heap fallback buffer: let the garbage collector reclaim it.
		return
	}
	mmapped.Delete(addr)
	_ = unix.Munmap(unsafe.Slice((*byte)(unsafe.Pointer(addr)), length.(int)))
}
