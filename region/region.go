// Package region implements a thread-safe region (bump) allocator: many
// small heterogeneous allocations sharing one owner's lifetime, reset or
// destroyed together. Individual allocations are never freed on their own.
//
// A Region owns a lock-free list of Shards, one per concurrent contributor.
// Callers that want the fastest possible path should bind a *Local handle
// (see local.go) once per goroutine and reuse it; callers that just want
// correctness without managing a handle can call the Region's methods
// directly, which borrow a Shard from an internal pool for the duration of
// one call.
//
// Concurrency: AllocateAligned, AllocateAlignedWithCleanup, AddCleanup,
// SpaceAllocated, and SpaceUsed may be called concurrently from any number
// of goroutines. InitializeFrom, InitializeWithPolicy, Reset, and Destroy
// are not concurrency-safe: the caller must ensure no other goroutine holds
// a reference to the Region during those calls. Concurrency tests that
// exercise the shard list and bump paths are meant to be run with
// `go test -race`.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package region

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/region/internal/arenaerr"
	"github.com/momentics/region/internal/shard"
)

// perThreadIDs batches lifecycle id issuance, matching the original arena's
// kPerThreadIds batch size: one atomic add claims 32 even ids at once so
// constructing many Regions concurrently doesn't serialize on one counter.
const perThreadIDs = 32

// idDelta is the step between consecutive lifecycle ids; ids are always
// even so the low bit is free to encode the record-allocations flag.
const idDelta = 2

var globalLifecycleCounter atomic.Uint64

// idBatch is a small per-goroutine-ish cache of unissued lifecycle ids,
// recycled through a sync.Pool the same way the teacher recycles buffers in
// pool/objpool.go's SyncPool[T] — approximate thread-affinity, not exact.
type idBatch struct {
	next      uint64
	remaining int
}

var idBatchPool = sync.Pool{New: func() any { return &idBatch{} }}

// nextLifecycleID issues the next even, globally unique lifecycle id.
func nextLifecycleID() uint64 {
	b := idBatchPool.Get().(*idBatch)
	defer idBatchPool.Put(b)

	if b.remaining == 0 {
		b.next = globalLifecycleCounter.Add(perThreadIDs * idDelta) - perThreadIDs*idDelta
		b.remaining = perThreadIDs
	}
	id := b.next
	b.next += idDelta
	b.remaining--
	return id
}

// recordAllocsFlag is the low bit of tag_and_id.
const recordAllocsFlag = uint64(1)

// shardSelfHostOverhead stands in for sizeof(Shard) in the original: bytes
// reserved at the front of a user-supplied initial block when a shard claims
// it, so SpaceUsed reports only the caller's own bytes. Blocks the region
// allocates itself reserve no such overhead.
const shardSelfHostOverhead = 64

// policyOverhead stands in for sizeof(AllocationPolicy) in the original:
// additional bytes reserved in a user-supplied initial block only when the
// policy record is conceptually hosted in the arena (InitializeWithPolicy).
const policyOverhead = 48

// Region is the thread-safe top-level arena.
type Region struct {
	shardsHead atomic.Pointer[shard.Shard]
	hint       atomic.Pointer[shard.Shard]

	tagAndID atomic.Uint64 // low bit: recordAllocs; remaining bits: lifecycleID

	policy AllocationPolicy

	ownerSeq atomic.Uint64

	initialBlock        []byte
	initialBlockClaimed atomic.Bool
	initialOverhead     int

	pool sync.Pool // handle-free borrow/return of *shard.Shard
}

// New constructs a Region with no initial block and the default policy; a
// shard is lazily allocated on first use.
func New() *Region {
	r, err := newRegion(nil, false, defaultPolicy(), false)
	if err != nil {
		// defaultPolicy() always validates cleanly; a failure here would be
		// an internal bug, not a user-facing error.
		panic(fmt.Errorf("region: default policy failed validation: %w", err))
	}
	return r
}

// InitializeFrom constructs a Region with no policy and no allocation
// recording. If mem is non-nil, 8-byte aligned, and large enough to host
// the region's own first-shard bookkeeping, it is installed as the
// user-owned initial block: the region uses it but never deallocates it.
// Otherwise (nil, too small, or misaligned) the block is silently ignored
// and a shard is lazily allocated on first use — misalignment is treated
// identically to "too small" per this implementation's resolution of the
// corresponding Open Question.
func InitializeFrom(mem []byte) *Region {
	r, err := newRegion(mem, false, defaultPolicy(), false)
	if err != nil {
		panic(fmt.Errorf("region: default policy failed validation: %w", err))
	}
	return r
}

// InitializeWithPolicy constructs a Region with an explicit AllocationPolicy.
// The supplied mem, if usable, must also fit the policy's own bookkeeping;
// this implementation reserves a fixed, representative overhead for that
// purpose (see DESIGN.md) rather than literally embedding the policy struct
// in mem, since Go's garbage collector cannot safely scan a policy's
// pointer-bearing fields (BlockAlloc, BlockDealloc, Metrics) if they are
// reinterpreted into a raw []byte. An invalid policy (StartBlockSize or
// MaxBlockSize not a multiple of 8, or StartBlockSize > MaxBlockSize)
// returns a non-nil *arenaerr.Error instead of panicking — the one
// recoverable error path this module exposes.
func InitializeWithPolicy(mem []byte, recordAllocs bool, policy AllocationPolicy) (*Region, error) {
	return newRegion(mem, recordAllocs, policy, true)
}

// hostPolicy is true only for InitializeWithPolicy: it reserves the extra
// representative overhead for the policy record conceptually hosted in the
// arena's first block, matching the original's self-hosting of both the
// Shard and the AllocationPolicy at InitializeWithPolicy time.
func newRegion(mem []byte, recordAllocs bool, policy AllocationPolicy, hostPolicy bool) (*Region, error) {
	validated, err := validatePolicy(policy)
	if err != nil {
		return nil, err
	}

	r := &Region{policy: validated}

	id := nextLifecycleID()
	tag := id
	if recordAllocs {
		tag |= recordAllocsFlag
	}
	r.tagAndID.Store(tag)

	overhead := shardSelfHostOverhead
	if hostPolicy {
		overhead += policyOverhead
	}
	r.initialOverhead = overhead

	if mem != nil && isAligned8(mem) && len(mem) >= overhead {
		r.initialBlock = mem
	}

	r.pool.New = func() any {
		return r.newShard(r.mintOwner())
	}

	return r, nil
}

func isAligned8(mem []byte) bool {
	if len(mem) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&mem[0]))&7 == 0
}

// lifecycleID returns the current lifecycle id, masking off the
// recordAllocs flag bit.
func (r *Region) lifecycleID() uint64 {
	return r.tagAndID.Load() &^ recordAllocsFlag
}

func (r *Region) recordAllocs() bool {
	return r.tagAndID.Load()&recordAllocsFlag != 0
}

func (r *Region) mintOwner() shard.Owner {
	return shard.Owner(r.ownerSeq.Add(1))
}

func (r *Region) growthPolicy() shard.GrowthPolicy {
	return shard.GrowthPolicy{
		StartBlockSize: r.policy.StartBlockSize,
		MaxBlockSize:   r.policy.MaxBlockSize,
		Alloc:          r.policy.BlockAlloc,
		Dealloc:        r.policy.BlockDealloc,
	}
}

// newShard builds a fresh Shard for owner, claiming the region's initial
// block if one is available and unclaimed, otherwise allocating a new block
// sized to StartBlockSize. The shard is pushed onto the region's lock-free
// list with a CAS retry loop before being returned.
func (r *Region) newShard(owner shard.Owner) *shard.Shard {
	var sh *shard.Shard

	if r.initialBlock != nil && r.initialBlockClaimed.CompareAndSwap(false, true) {
		sh = shard.New(owner, r.initialBlock, true, r.initialOverhead, r.growthPolicy())
	} else {
		buf, err := r.policy.BlockAlloc(r.policy.StartBlockSize)
		if err != nil {
			panic(fmt.Errorf("region: block allocator failed: %w", arenaerr.New(arenaerr.CodeResourceExhausted, err.Error())))
		}
		sh = shard.New(owner, buf, false, 0, r.growthPolicy())
	}

	for {
		head := r.shardsHead.Load()
		sh.SetNext(head)
		if r.shardsHead.CompareAndSwap(head, sh) {
			break
		}
	}
	r.hint.Store(sh)
	return sh
}

// findShard walks the region's shard list looking for owner, used by Local
// to re-resolve its dedicated shard after a Reset invalidates the cache.
func (r *Region) findShard(owner shard.Owner) *shard.Shard {
	for sh := r.shardsHead.Load(); sh != nil; sh = sh.Next() {
		if sh.Owner() == owner {
			return sh
		}
	}
	return nil
}

// getOrCreateShardFor returns owner's existing shard if the list already
// has one, otherwise creates and registers a new one.
func (r *Region) getOrCreateShardFor(owner shard.Owner) *shard.Shard {
	if sh := r.findShard(owner); sh != nil {
		r.hint.Store(sh)
		return sh
	}
	return r.newShard(owner)
}

// borrowShard obtains an exclusively-held shard for one handle-free call.
// Correctness never depends on two calls observing the same shard, only
// that no two calls use one shard concurrently, which sync.Pool guarantees.
func (r *Region) borrowShard() *shard.Shard {
	return r.pool.Get().(*shard.Shard)
}

func (r *Region) returnShard(sh *shard.Shard) {
	r.pool.Put(sh)
}

// AllocateAligned allocates n bytes (rounded up to 8), valid until the
// Region is reset or destroyed. Prefer binding a *Local (see Pin) in
// allocation-heavy hot loops to avoid this call's pool borrow/return.
func (r *Region) AllocateAligned(n int) []byte {
	if r.recordAllocs() && r.policy.Metrics != nil {
		r.policy.Metrics.OnAlloc(nil, n)
	}
	sh := r.borrowShard()
	defer r.returnShard(sh)
	return sh.AllocateAligned(n)
}

// AllocateAlignedTyped is like AllocateAligned but forwards typ to the
// configured MetricsCollector's OnAlloc without interpreting it.
func (r *Region) AllocateAlignedTyped(n int, typ TypeDescriptor) []byte {
	if r.recordAllocs() && r.policy.Metrics != nil {
		r.policy.Metrics.OnAlloc(typ, n)
	}
	sh := r.borrowShard()
	defer r.returnShard(sh)
	return sh.AllocateAligned(n)
}

// AllocateAlignedWithCleanup allocates n bytes and reserves one cleanup
// slot in the same call, returning a record the caller must populate.
func (r *Region) AllocateAlignedWithCleanup(n int) (payload []byte, rec *shard.CleanupRecord) {
	if r.recordAllocs() && r.policy.Metrics != nil {
		r.policy.Metrics.OnAlloc(nil, n)
	}
	sh := r.borrowShard()
	defer r.returnShard(sh)
	return sh.AllocateAlignedWithCleanup(n)
}

// AddCleanup registers fn(elem) to run exactly once at the next reset or
// destroy, without allocating any payload bytes.
func (r *Region) AddCleanup(elem unsafe.Pointer, fn shard.CleanupFunc) {
	sh := r.borrowShard()
	defer r.returnShard(sh)
	sh.AddCleanup(elem, fn)
}

// SpaceAllocated sums SpaceAllocated across every shard created by this
// Region since its construction or last Reset.
func (r *Region) SpaceAllocated() uint64 {
	var total uint64
	for sh := r.shardsHead.Load(); sh != nil; sh = sh.Next() {
		total += sh.SpaceAllocated()
	}
	return total
}

// SpaceUsed sums SpaceUsed across every shard, net of each shard's own
// self-hosting overhead (already excluded per-shard by shard.SpaceUsed).
func (r *Region) SpaceUsed() uint64 {
	var total uint64
	for sh := r.shardsHead.Load(); sh != nil; sh = sh.Next() {
		total += sh.SpaceUsed()
	}
	return total
}

// Reset runs every registered cleanup, frees every block except a
// user-owned initial block, and re-initializes the region with the same
// policy, returning the number of bytes freed. If a MetricsCollector is
// configured, OnReset is called exactly once, before re-initialization.
func (r *Region) Reset() uint64 {
	r.runAllCleanups()

	var bytesFreed uint64
	wasClaimed := r.initialBlockClaimed.Load()
	var survivingInitialBlock []byte

	for sh := r.shardsHead.Load(); sh != nil; {
		next := sh.Next()
		bytesFreed += sh.SpaceAllocated()
		oldest, userOwned := sh.Free()
		if userOwned {
			survivingInitialBlock = oldest
		} else {
			r.policy.BlockDealloc(oldest)
		}
		sh = next
	}

	if r.policy.Metrics != nil {
		r.policy.Metrics.OnReset(bytesFreed)
	}

	r.shardsHead.Store(nil)
	r.hint.Store(nil)
	r.initialBlockClaimed.Store(false)
	if wasClaimed {
		// The initial block was actually handed to a shard and reclaimed by
		// Free above; re-adopt it. If it was never claimed (no allocation
		// happened before this Reset), r.initialBlock is untouched and
		// still available for the next shard.
		r.initialBlock = survivingInitialBlock
	}

	tag := nextLifecycleID()
	if r.recordAllocs() {
		tag |= recordAllocsFlag
	}
	r.tagAndID.Store(tag)

	r.pool = sync.Pool{New: func() any { return r.newShard(r.mintOwner()) }}

	return bytesFreed
}

// Destroy runs every registered cleanup and frees every block (respecting
// the user-owned initial block's exemption). If a MetricsCollector is
// configured, OnDestroy is called exactly once.
func (r *Region) Destroy() {
	r.runAllCleanups()

	var bytesFreed uint64
	for sh := r.shardsHead.Load(); sh != nil; sh = sh.Next() {
		bytesFreed += sh.SpaceAllocated()
		oldest, userOwned := sh.Free()
		if !userOwned {
			r.policy.BlockDealloc(oldest)
		}
	}

	if r.policy.Metrics != nil {
		r.policy.Metrics.OnDestroy(bytesFreed)
	}

	r.shardsHead.Store(nil)
	r.hint.Store(nil)
}

// runAllCleanups invokes RunCleanup on every shard. Relative order between
// shards is unspecified; within a shard, order is reverse-of-registration
// within each block, newest block first across blocks (see shard.RunCleanup).
func (r *Region) runAllCleanups() {
	for sh := r.shardsHead.Load(); sh != nil; sh = sh.Next() {
		sh.RunCleanup()
	}
}
