//go:build windows

// Windows block allocator: VirtualAlloc/VirtualFree via golang.org/x/sys/windows,
// generalizing the bufferpool's Win32 allocation path to arbitrary block sizes.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sysalloc

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// reserved tracks every address this file handed out via VirtualAlloc, so
// dealloc never calls VirtualFree on a Go heap fallback buffer. A
// coincidentally matching address there would otherwise corrupt the
// runtime's own memory instead of harmlessly no-oping.
var reserved sync.Map // map[uintptr]struct{}

func alloc(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil || addr == 0 {
		return make([]byte, size), nil
	}
	reserved.Store(addr, struct{}{})
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func dealloc(buf []byte) {
	if len(buf) == 0 {
		return
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	if _, ok := reserved.Load(addr); !ok {
		// A Go heap fallback buffer: let the garbage collector reclaim it.
		return
	}
	reserved.Delete(addr)
	_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
