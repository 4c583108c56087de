//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback for GOOS values with no pinning primitive wired in this package.
// region.Local.PinCPU treats this as "pinning failed" and falls back to an
// unpinned handle; correctness never depends on this succeeding.

package affinity

import "fmt"

// setAffinityPlatform always fails on a platform with no known pinning
// primitive.
func setAffinityPlatform(cpuID int) error {
	return fmt.Errorf("affinity: cpu pinning unsupported on this platform (cpuID=%d)", cpuID)
}
