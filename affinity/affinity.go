// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.
//
// region.Local's PinCPU uses this as a best-effort locality hint: pinning
// the OS thread behind one Local handle keeps that handle's shard's blocks
// allocated close to the CPU that actually touches them. It is never
// required for correctness — an unpinned Local behaves identically, just
// without the locality hint.

package affinity

// SetAffinity pins current OS thread to a given logical CPU/core on supported platforms.
// On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
