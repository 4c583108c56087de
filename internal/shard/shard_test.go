package shard

import (
	"testing"
	"unsafe"
)

func testPolicy(start, max int) GrowthPolicy {
	return GrowthPolicy{
		StartBlockSize: start,
		MaxBlockSize:   max,
		Alloc: func(size int) ([]byte, error) {
			return make([]byte, size), nil
		},
		Dealloc: func(buf []byte) {},
	}
}

func TestShard_BumpAllocatesWithinBlock(t *testing.T) {
	s := New(1, make([]byte, 256), false, 0, testPolicy(256, 4096))

	a := s.AllocateAligned(10)
	b := s.AllocateAligned(10)
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("expected 16-byte (10 rounded up to 8) allocations, got %d and %d", len(a), len(b))
	}
	if cap(a) != 16 || cap(b) != 16 {
		t.Fatalf("allocations must be capacity-bounded to their own slot")
	}
	if s.SpaceUsed() != 32 {
		t.Fatalf("expected 32 bytes used (16+16 aligned), got %d", s.SpaceUsed())
	}
	if s.SpaceAllocated() != 256 {
		t.Fatalf("expected 256 bytes allocated, got %d", s.SpaceAllocated())
	}
}

func TestShard_GrowthLadderDoublesEachBlock(t *testing.T) {
	// Growth ladder with start=256, max=4096: the second 200-byte request no
	// longer fits the 256-byte first block and forces growth to 512; the
	// fourth forces growth to 1024.
	s := New(1, make([]byte, 256), false, 0, testPolicy(256, 4096))

	s.AllocateAligned(200) // fits in the 256-byte first block (200 -> aligned 200)
	if s.SpaceAllocated() != 256 {
		t.Fatalf("first alloc should not grow, got SpaceAllocated=%d", s.SpaceAllocated())
	}

	s.AllocateAligned(200) // 400 > 256, must grow
	if s.SpaceAllocated() != 256+512 {
		t.Fatalf("expected second block sized 512 (2x256), SpaceAllocated=%d", s.SpaceAllocated())
	}

	s.AllocateAligned(200) // 512-byte block holds at most two 200s aligned
	s.AllocateAligned(200) // third 200 in the 512-byte block, forces growth to 1024
	s.AllocateAligned(200) // fits in the 1024-byte block
	if s.SpaceAllocated() != 256+512+1024 {
		t.Fatalf("expected third block sized 1024 (2x512), SpaceAllocated=%d", s.SpaceAllocated())
	}
}

func TestShard_GrowthCapsAtMaxBlockSize(t *testing.T) {
	s := New(1, make([]byte, 256), false, 0, testPolicy(256, 512))

	s.AllocateAligned(200)
	s.AllocateAligned(200) // forces growth; doubled would be 512, already at cap
	if s.SpaceAllocated() != 256+512 {
		t.Fatalf("expected growth capped at MaxBlockSize=512, SpaceAllocated=%d", s.SpaceAllocated())
	}

	s.AllocateAligned(500) // does not fit the 312 bytes left; next block stays at the 512 cap instead of doubling to 1024
	if s.SpaceAllocated() != 256+512+512 {
		t.Fatalf("expected next block held at MaxBlockSize=512, SpaceAllocated=%d", s.SpaceAllocated())
	}
}

func TestShard_SelfHostOverheadExcludedFromSpaceUsed(t *testing.T) {
	const overhead = 64
	s := New(1, make([]byte, 256), false, overhead, testPolicy(256, 4096))

	if s.SpaceUsed() != 0 {
		t.Fatalf("expected zero space used before any allocation net of overhead, got %d", s.SpaceUsed())
	}
	s.AllocateAligned(32)
	if s.SpaceUsed() != 32 {
		t.Fatalf("expected 32 bytes used net of self-host overhead, got %d", s.SpaceUsed())
	}
	if s.SpaceAllocated() != 256 {
		t.Fatalf("self-host overhead must not affect SpaceAllocated, got %d", s.SpaceAllocated())
	}
}

func TestShard_CleanupRunsNewestFirstAcrossBlocks(t *testing.T) {
	s := New(1, make([]byte, 128), false, 0, testPolicy(128, 1024))

	var order []int
	register := func(id int) {
		s.AddCleanup(unsafe.Pointer(&order), func(unsafe.Pointer) {
			order = append(order, id)
		})
	}

	register(1)
	register(2)
	s.AllocateAligned(200) // exceeds the whole first block, forcing growth onto a new block
	register(3)
	register(4)

	s.RunCleanup()

	want := []int{4, 3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("expected %d cleanups to run, got %d", len(want), len(order))
	}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("cleanup order mismatch at %d: want %d got %d", i, id, order[i])
		}
	}
}

func TestShard_RunCleanupIsIdempotentPerBlock(t *testing.T) {
	s := New(1, make([]byte, 128), false, 0, testPolicy(128, 1024))

	calls := 0
	s.AddCleanup(nil, func(unsafe.Pointer) { calls++ })

	s.RunCleanup()
	s.RunCleanup()

	if calls != 1 {
		t.Fatalf("expected cleanup to run exactly once, ran %d times", calls)
	}
}

func TestShard_AllocateAlignedWithCleanupFillsBothInOneBlock(t *testing.T) {
	s := New(1, make([]byte, 256), false, 0, testPolicy(256, 4096))

	payload, rec := s.AllocateAlignedWithCleanup(16)
	if len(payload) != 16 {
		t.Fatalf("expected 16-byte payload, got %d", len(payload))
	}
	ran := false
	rec.Elem = unsafe.Pointer(&payload)
	rec.Cleanup = func(unsafe.Pointer) { ran = true }

	s.RunCleanup()
	if !ran {
		t.Fatalf("expected registered cleanup to run")
	}
}

func TestShard_MaybeAllocateAlignedNeverGrows(t *testing.T) {
	s := New(1, make([]byte, 16), false, 0, testPolicy(16, 4096))

	if _, ok := s.MaybeAllocateAligned(8); !ok {
		t.Fatalf("expected first 8-byte allocation to fit")
	}
	if _, ok := s.MaybeAllocateAligned(8); !ok {
		t.Fatalf("expected second 8-byte allocation to fit exactly")
	}
	if _, ok := s.MaybeAllocateAligned(8); ok {
		t.Fatalf("expected third allocation to fail without growing")
	}
	if s.SpaceAllocated() != 16 {
		t.Fatalf("MaybeAllocateAligned must never install a new block, SpaceAllocated=%d", s.SpaceAllocated())
	}
}

func TestShard_CleanupReservationGrowsWithPriorBlockUsageCappedAtMax(t *testing.T) {
	const blockSize = 4096
	s := New(1, make([]byte, blockSize), false, 0, testPolicy(blockSize, 1<<20))

	const priorCleanups = 40 // 2x this exceeds MaxCleanupReservation, forcing the cap
	for i := 0; i < priorCleanups; i++ {
		s.AddCleanup(nil, func(unsafe.Pointer) {})
	}
	if used := len(s.head.cleanups); used != priorCleanups {
		t.Fatalf("expected all %d cleanups to fit in the first block, got %d", priorCleanups, used)
	}

	// Consume payload space until only 8 bytes remain, one 8-byte step short
	// of room for one more cleanup slot, so the next AddCleanup call is exactly what forces
	// growAndAllocateWithCleanup (not a plain payload-driven growth).
	room := s.allocLimit - s.allocOff
	s.AllocateAligned(room - cleanupRecordSize + 8)
	s.AddCleanup(nil, func(unsafe.Pointer) {})

	got := s.cleanupReservationSlotsAppliedLastGrowth
	if got != MaxCleanupReservation {
		t.Fatalf("reservation slots = %d, want it capped at MaxCleanupReservation (%d) given %d prior cleanups",
			got, MaxCleanupReservation, priorCleanups)
	}
}

func TestShard_CleanupReservationFloorsAtMinimumWhenPriorUsageIsLight(t *testing.T) {
	const blockSize = 128
	s := New(1, make([]byte, blockSize), false, 0, testPolicy(blockSize, 1024))

	s.AddCleanup(nil, func(unsafe.Pointer) {}) // one prior cleanup: 2x1 floors to Min

	room := s.allocLimit - s.allocOff
	s.AllocateAligned(room - cleanupRecordSize + 8)
	s.AddCleanup(nil, func(unsafe.Pointer) {})

	if got := s.cleanupReservationSlotsAppliedLastGrowth; got != MinCleanupReservation {
		t.Fatalf("reservation slots = %d, want the MinCleanupReservation floor (%d)", got, MinCleanupReservation)
	}
}

func TestShard_FreeReturnsOldestBlockAndItsOwnership(t *testing.T) {
	initial := make([]byte, 64)
	s := New(1, initial, true, 0, testPolicy(64, 256))

	s.AllocateAligned(48)
	s.AllocateAligned(48) // 48+48 > 64, forces a second block

	oldest, userOwned := s.Free()
	if !userOwned {
		t.Fatalf("expected the original user-owned block to be reported as such")
	}
	if &oldest[0] != &initial[0] {
		t.Fatalf("expected Free to return the original caller-supplied buffer")
	}
}
