// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shard

import "unsafe"

// CleanupFunc runs a caller-registered destructor over an opaque element.
// It must not fail: a panicking CleanupFunc is not caught by RunCleanup and
// terminates the program under normal Go panic/recover rules, mirroring the
// "must not fail" contract of the surrounding library's callback surface.
type CleanupFunc func(elem unsafe.Pointer)

// CleanupRecord pairs an opaque pointer with the destructor that must run
// over it exactly once, at reset or destroy time.
type CleanupRecord struct {
	Elem    unsafe.Pointer
	Cleanup CleanupFunc
}

// cleanupRecordSize is the accounting unit used when reserving cleanup
// slots against a Block's capacity, mirroring sizeof(CleanupRecord) in the
// original C++ arena.
const cleanupRecordSize = int(unsafe.Sizeof(CleanupRecord{}))

// MinCleanupReservation is the comfortable minimum slot count a block that
// must fit an allocation and a cleanup record tries to preserve room for.
const MinCleanupReservation = 8

// MaxCleanupReservation bounds how many cleanup slots a single growth step
// (GrowAndAllocateWithCleanup) will provision for, so one pathological
// request can't inflate a block without limit. Grounded on
// original_source's kMaxCleanupListElements.
const MaxCleanupReservation = 64
