// Package shard implements the single-writer bump allocator ("Shard") that
// backs one logical owner (typically one goroutine) inside a Region, plus
// the Block chain it grows. Every exported method that mutates bump state
// must only ever be called by the shard's single owner; SpaceAllocated and
// SpaceUsed are the only methods safe to call from any goroutine.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package shard

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/region/internal/arenaerr"
)

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}

// Owner is an opaque identity token distinguishing one Shard's caller from
// another's. The region package mints these; Shard never interprets the
// value beyond equality comparison.
type Owner uintptr

// GrowthPolicy carries the growth bounds and allocator hooks a Shard needs
// to grow its own block chain. The region package owns the canonical
// AllocationPolicy; this is the minimal projection shard.Shard depends on,
// which keeps this package free of an import cycle back to region.
type GrowthPolicy struct {
	StartBlockSize int
	MaxBlockSize   int
	// Alloc must return a slice of at least the requested size. A nil
	// Alloc is never called directly by Shard; region always supplies one
	// (falling back to internal/sysalloc's default).
	Alloc func(size int) ([]byte, error)
	// Dealloc releases memory returned by Alloc. It is never called for a
	// user-owned initial block.
	Dealloc func(buf []byte)
}

// Shard is a single-threaded arena chained from one or more Blocks
// belonging to one logical owner.
type Shard struct {
	owner Owner
	head  *Block

	allocOff   int // alloc_ptr, relative to head.buf
	allocLimit int // alloc_limit, == head.cleanupTail while head is current

	spaceAllocated atomic.Uint64 // written only by owner (relaxed load+store), read by anyone
	spaceUsedCarry int           // bytes used in retired (non-head) blocks; single-writer

	selfHostOverhead int // bytes reserved at the front of the first block for this Shard's own bookkeeping (Go analogue of "the Shard struct lives inside the first block")

	next atomic.Pointer[Shard] // singly-linked lock-free shard list

	policy GrowthPolicy

	cleanupReservationSlotsAppliedLastGrowth int // observability only, for tests
}

// New builds a Shard rooted at the given block. selfHostOverhead bytes are
// treated as already consumed at the front of buf, mirroring the C
// original's self-hosting of the Shard struct inside its first block; it
// is subtracted back out by SpaceUsed so callers never see it.
func New(owner Owner, buf []byte, userOwnedBlock bool, selfHostOverhead int, policy GrowthPolicy) *Shard {
	b := newBlock(buf, nil, userOwnedBlock)
	s := &Shard{
		owner:            owner,
		head:             b,
		allocOff:         selfHostOverhead,
		allocLimit:       b.cleanupTail,
		selfHostOverhead: selfHostOverhead,
		policy:           policy,
	}
	s.spaceAllocated.Store(uint64(len(buf)))
	return s
}

// Owner returns the shard's owner token.
func (s *Shard) Owner() Owner { return s.owner }

// Next returns the next shard in the region's lock-free list.
func (s *Shard) Next() *Shard { return s.next.Load() }

// SetNext links this shard ahead of prev in a CAS push; used only by the
// region's newShard.
func (s *Shard) SetNext(prev *Shard) { s.next.Store(prev) }

// NextPtr exposes the raw atomic pointer for CAS-based list pushes.
func (s *Shard) NextPtr() *atomic.Pointer[Shard] { return &s.next }

// AllocateAligned rounds n up to 8 bytes and bump-allocates it, growing the
// block chain if the current head has no room.
func (s *Shard) AllocateAligned(n int) []byte {
	n = align8(n)
	if s.allocOff+n <= s.allocLimit {
		p := s.head.buf[s.allocOff : s.allocOff+n : s.allocOff+n]
		s.allocOff += n
		return p
	}
	return s.growAndAllocate(n)
}

// MaybeAllocateAligned is the non-growing variant: it succeeds only if the
// current head already has room, and never installs a new block.
func (s *Shard) MaybeAllocateAligned(n int) ([]byte, bool) {
	n = align8(n)
	if s.allocOff+n <= s.allocLimit {
		p := s.head.buf[s.allocOff : s.allocOff+n : s.allocOff+n]
		s.allocOff += n
		return p, true
	}
	return nil, false
}

// AllocateAlignedWithCleanup allocates n bytes and reserves one cleanup
// slot in the same block, growing if either doesn't fit. The returned
// record is uninitialised; the caller must fill Elem and Cleanup.
func (s *Shard) AllocateAlignedWithCleanup(n int) (payload []byte, rec *CleanupRecord) {
	n = align8(n)
	if s.allocOff+n <= s.allocLimit {
		if idx, ok := s.head.reserveCleanupSlot(s.allocOff + n); ok {
			s.allocLimit = s.head.cleanupTail
			p := s.head.buf[s.allocOff : s.allocOff+n : s.allocOff+n]
			s.allocOff += n
			return p, &s.head.cleanups[idx]
		}
	}
	return s.growAndAllocateWithCleanup(n)
}

// AddCleanup reserves a cleanup slot (growing if necessary) and writes it.
func (s *Shard) AddCleanup(elem unsafe.Pointer, fn CleanupFunc) {
	if idx, ok := s.head.reserveCleanupSlot(s.allocOff); ok {
		s.allocLimit = s.head.cleanupTail
		s.head.cleanups[idx] = CleanupRecord{Elem: elem, Cleanup: fn}
		return
	}
	_, rec := s.growAndAllocateWithCleanup(0)
	rec.Elem = elem
	rec.Cleanup = fn
}

// RunCleanup invokes every cleanup registered in this shard, newest block
// first, newest record within a block first. Each cleanup runs exactly
// once; the bump state itself is left untouched.
func (s *Shard) RunCleanup() {
	for b := s.head; b != nil; b = b.prev {
		b.runCleanup()
	}
}

// Free releases every block but the oldest (which, if it is the region's
// user-owned initial block, must never be handed to Dealloc) and returns
// the oldest block's backing storage plus whether it is user-owned.
func (s *Shard) Free() (oldest []byte, oldestUserOwned bool) {
	b := s.head
	var blocks []*Block
	for b != nil {
		blocks = append(blocks, b)
		b = b.prev
	}
	for i := 0; i < len(blocks)-1; i++ {
		if s.policy.Dealloc != nil {
			s.policy.Dealloc(blocks[i].buf)
		}
	}
	last := blocks[len(blocks)-1]
	return last.buf, last.userOwned
}

// SpaceAllocated returns the total bytes ever obtained for this shard's
// blocks. Safe to call from any goroutine.
func (s *Shard) SpaceAllocated() uint64 {
	return s.spaceAllocated.Load()
}

// SpaceUsed returns bytes the shard's owner has actually consumed, net of
// this shard's own self-hosting overhead. Single-writer state; callers
// other than the owner may observe a stale (but monotonically increasing)
// value.
func (s *Shard) SpaceUsed() uint64 {
	used := s.allocOff + s.spaceUsedCarry - s.selfHostOverhead
	if used < 0 {
		used = 0
	}
	return uint64(used)
}

// growAndAllocate installs a new block sized to fit at least n bytes and
// allocates from it.
func (s *Shard) growAndAllocate(n int) []byte {
	s.installNextBlock(n)
	p := s.head.buf[s.allocOff : s.allocOff+n : s.allocOff+n]
	s.allocOff += n
	return p
}

// cleanupReservationSlots picks how many cleanup slots' worth of headroom
// to reserve in the block about to be installed. A shard that is
// registering cleanups heavily (many slots used in the retiring head)
// reserves proportionally more next time, up to MaxCleanupReservation, so
// it doesn't pay for a new block on every single AddCleanup call; a shard
// with light cleanup use keeps the MinCleanupReservation floor.
func (s *Shard) cleanupReservationSlots() int {
	used := len(s.head.cleanups)
	slots := 2 * used
	if slots < MinCleanupReservation {
		slots = MinCleanupReservation
	}
	if slots > MaxCleanupReservation {
		slots = MaxCleanupReservation
	}
	s.cleanupReservationSlotsAppliedLastGrowth = slots
	return slots
}

// growAndAllocateWithCleanup installs a new block sized to fit n bytes plus
// one cleanup record, and tries to reserve headroom for several more
// cleanup slots (see cleanupReservationSlots) so a run of AddCleanup calls
// doesn't force a new block every time.
func (s *Shard) growAndAllocateWithCleanup(n int) ([]byte, *CleanupRecord) {
	need := n + cleanupRecordSize
	target := n + s.cleanupReservationSlots()*cleanupRecordSize
	if target < need {
		target = need
	}
	s.installNextBlock(target)
	idx, ok := s.head.reserveCleanupSlot(s.allocOff + n)
	if !ok {
		// sizeNextBlock guarantees room; this would indicate a sizing bug.
		panic("shard: newly installed block has no room for its own cleanup slot")
	}
	s.allocLimit = s.head.cleanupTail
	p := s.head.buf[s.allocOff : s.allocOff+n : s.allocOff+n]
	s.allocOff += n
	return p, &s.head.cleanups[idx]
}

// installNextBlock computes the next block's size, obtains storage for it,
// retires the current head (freezing its cleanup boundary and folding its
// used bytes into space_used_carry), and installs the new block as head.
func (s *Shard) installNextBlock(minBytes int) {
	size := s.sizeNextBlock(minBytes)
	buf, err := s.policy.Alloc(size)
	if err != nil {
		panic(fmt.Errorf("shard: block allocator failed: %w", arenaerr.New(arenaerr.CodeResourceExhausted, err.Error())))
	}

	old := s.head
	old.freeze(s.allocLimit)
	s.spaceUsedCarry += s.allocOff

	nb := newBlock(buf, old, false)
	s.head = nb
	s.allocOff = 0
	s.allocLimit = nb.cleanupTail
	// Plain load+store, not an RMW: only the owner ever writes this counter.
	s.spaceAllocated.Store(s.spaceAllocated.Load() + uint64(len(buf)))
}

// sizeNextBlock implements the geometric growth policy for every block
// after the shard's first: double the current head's size, capped at
// MaxBlockSize, then raise to fit the triggering request. The shard's very
// first block is sized once by the caller (the region's newShard) before
// Shard.New is invoked, so this method never needs a StartBlockSize branch —
// s.head always exists and is non-empty by the time installNextBlock runs.
func (s *Shard) sizeNextBlock(minBytes int) int {
	size := 2 * s.head.size()
	if size > s.policy.MaxBlockSize {
		size = s.policy.MaxBlockSize
	}
	if size < minBytes {
		size = minBytes
	}
	return size
}
