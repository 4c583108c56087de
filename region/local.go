// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import (
	"runtime"
	"unsafe"

	"github.com/momentics/region/affinity"
	"github.com/momentics/region/internal/shard"
)

// Local is an explicit, caller-held binding between one goroutine and one
// Shard of a Region — "bind once, reuse many times", with a Pin/Unpin
// lifecycle. A goroutine that binds a Local and
// keeps it for repeated allocations gets the literal zero-atomic fast path:
// Local caches (lifecycleID, *shard.Shard) and only falls back to the
// region's slow path (list walk / shard creation) when the cached
// lifecycleID no longer matches the region's current one, i.e. after Reset.
//
// A Local must not be shared between goroutines concurrently: its cached
// Shard is single-writer, exactly like shard.Shard itself.
type Local struct {
	region *Region
	owner  shard.Owner

	cachedLifecycleID uint64
	cachedShard       *shard.Shard

	pinnedCPU int
	pinned    bool
}

// Pin binds a new Local handle to r. The handle is usable immediately; its
// first allocation resolves (or creates) its dedicated shard.
func (r *Region) Pin() *Local {
	return &Local{
		region: r,
		owner:  r.mintOwner(),
	}
}

// PinCPU is like Pin, but additionally tries to pin the calling goroutine's
// OS thread to cpuID, keeping this handle's allocations issued from a
// single core for the rest of its life. This is a best-effort locality hint
// only; it never affects correctness. Failure to pin is not an error:
// PinCPU always returns a usable handle, falling back to an unpinned Local
// on any platform or runtime failure.
func (r *Region) PinCPU(cpuID int) *Local {
	l := r.Pin()
	runtime.LockOSThread()
	if err := affinity.SetAffinity(cpuID); err == nil {
		l.pinnedCPU = cpuID
		l.pinned = true
	} else {
		runtime.UnlockOSThread()
	}
	return l
}

// CPU returns the logical CPU this handle is pinned to, and whether
// PinCPU actually succeeded in pinning it.
func (l *Local) CPU() (cpuID int, pinned bool) {
	return l.pinnedCPU, l.pinned
}

// Unpin releases an OS thread lock taken by PinCPU, if any. It is a no-op
// for handles obtained via Pin. Safe to call more than once.
func (l *Local) Unpin() {
	if l.pinned {
		runtime.UnlockOSThread()
		l.pinned = false
	}
}

// resolveShard returns this handle's cached Shard and whether it was a
// cache hit, re-resolving through the region's slow path if the region's
// lifecycle id has moved on (Reset) or this is the handle's first use.
func (l *Local) resolveShard() (sh *shard.Shard, hit bool) {
	if l.cachedShard != nil && l.cachedLifecycleID == l.region.lifecycleID() {
		return l.cachedShard, true
	}
	sh = l.region.getOrCreateShardFor(l.owner)
	l.cachedShard = sh
	l.cachedLifecycleID = l.region.lifecycleID()
	return sh, false
}

// AllocateAligned allocates n bytes (rounded up to 8) through this handle's
// dedicated shard. On a warm cache hit this is the zero-atomic fast path
// spec.md describes and never touches the metrics collector, matching
// "fast path thread-cache hit never notifies metrics"; only a cold
// resolution (first use, or after Reset) reports through Metrics.OnAlloc
// when recordAllocs is set.
func (l *Local) AllocateAligned(n int) []byte {
	sh, hit := l.resolveShard()
	if !hit && l.region.recordAllocs() && l.region.policy.Metrics != nil {
		l.region.policy.Metrics.OnAlloc(nil, n)
	}
	return sh.AllocateAligned(n)
}

// AllocateAlignedTyped is like AllocateAligned but forwards typ to the
// configured MetricsCollector's OnAlloc without interpreting it.
func (l *Local) AllocateAlignedTyped(n int, typ TypeDescriptor) []byte {
	sh, hit := l.resolveShard()
	if !hit && l.region.recordAllocs() && l.region.policy.Metrics != nil {
		l.region.policy.Metrics.OnAlloc(typ, n)
	}
	return sh.AllocateAligned(n)
}

// AllocateAlignedWithCleanup allocates n bytes and reserves one cleanup slot
// through this handle's dedicated shard.
func (l *Local) AllocateAlignedWithCleanup(n int) (payload []byte, rec *shard.CleanupRecord) {
	sh, hit := l.resolveShard()
	if !hit && l.region.recordAllocs() && l.region.policy.Metrics != nil {
		l.region.policy.Metrics.OnAlloc(nil, n)
	}
	return sh.AllocateAlignedWithCleanup(n)
}

// AddCleanup registers fn(elem) through this handle's dedicated shard, to
// run exactly once at the region's next reset or destroy.
func (l *Local) AddCleanup(elem unsafe.Pointer, fn shard.CleanupFunc) {
	sh, _ := l.resolveShard()
	sh.AddCleanup(elem, fn)
}
