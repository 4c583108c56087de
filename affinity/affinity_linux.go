//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux backing for region.Local.PinCPU: pins the calling OS thread to one
// logical CPU via pthread_setaffinity_np, so a Shard's blocks are touched
// from a single core for the rest of the handle's life.

package affinity

/*
#define _GNU_SOURCE
#include <sched.h>
#include <pthread.h>

// pin_calling_thread binds the calling pthread to the single CPU cpu,
// returning whatever pthread_setaffinity_np returns (0 on success, an
// errno value otherwise).
static int pin_calling_thread(int cpu) {
	cpu_set_t mask;
	CPU_ZERO(&mask);
	CPU_SET(cpu, &mask);
	return pthread_setaffinity_np(pthread_self(), sizeof(mask), &mask);
}
*/
import "C"

import "fmt"

// setAffinityPlatform pins the calling OS thread to cpuID. cpuID must be a
// valid, non-negative logical CPU index on this machine; an invalid index
// is reported back as a Go error rather than silently ignored.
func setAffinityPlatform(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: negative cpuID %d", cpuID)
	}
	if rc := C.pin_calling_thread(C.int(cpuID)); rc != 0 {
		return fmt.Errorf("affinity: pthread_setaffinity_np(cpu=%d) failed, errno %d", cpuID, int(rc))
	}
	return nil
}
