//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows backing for region.Local.PinCPU, via the Win32
// SetThreadAffinityMask API resolved lazily from kernel32.dll.

package affinity

import "syscall"

var (
	kernel32                  = syscall.NewLazyDLL("kernel32.dll")
	procGetCurrentThread      = kernel32.NewProc("GetCurrentThread")
	procSetThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
)

// setAffinityPlatform restricts the calling OS thread to the single logical
// CPU cpuID by setting its affinity mask to just that bit.
func setAffinityPlatform(cpuID int) error {
	if cpuID < 0 || cpuID >= 64 {
		return syscall.EINVAL
	}
	thread, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << uint(cpuID)
	prevMask, _, callErr := procSetThreadAffinityMask.Call(thread, mask)
	if prevMask == 0 {
		return callErr
	}
	return nil
}
