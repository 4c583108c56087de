// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import "testing"

// TestRingCollector_DropsOnlyOnAllocOnOverflow confirms OnAlloc events are
// dropped oldest-first once capacity is exceeded, while OnReset/OnDestroy
// are never dropped regardless of how many OnAlloc events preceded them.
func TestRingCollector_DropsOnlyOnAllocOnOverflow(t *testing.T) {
	c := NewRingCollector(4)

	for i := 0; i < 10; i++ {
		c.OnAlloc(nil, i)
	}
	c.OnReset(123)
	c.OnDestroy(456)

	events := c.Drain()

	var allocCount, resetCount, destroyCount int
	var sawReset, sawDestroy bool
	for _, e := range events {
		switch e.Kind {
		case EventAlloc:
			allocCount++
		case EventReset:
			resetCount++
			sawReset = e.BytesFreed == 123
		case EventDestroy:
			destroyCount++
			sawDestroy = e.BytesFreed == 456
		}
	}

	if allocCount > 4 {
		t.Fatalf("retained %d OnAlloc events, want at most capacity (4)", allocCount)
	}
	if resetCount != 1 || !sawReset {
		t.Fatalf("OnReset event missing or corrupted: count=%d sawReset=%v", resetCount, sawReset)
	}
	if destroyCount != 1 || !sawDestroy {
		t.Fatalf("OnDestroy event missing or corrupted: count=%d sawDestroy=%v", destroyCount, sawDestroy)
	}
}

// TestRingCollector_DrainEmptiesTheRing confirms Drain leaves the ring empty
// for the next round of collection.
func TestRingCollector_DrainEmptiesTheRing(t *testing.T) {
	c := NewRingCollector(8)
	c.OnAlloc(nil, 1)
	c.OnAlloc(nil, 2)

	first := c.Drain()
	if len(first) != 2 {
		t.Fatalf("len(first) = %d, want 2", len(first))
	}

	second := c.Drain()
	if len(second) != 0 {
		t.Fatalf("len(second) = %d, want 0 after drain", len(second))
	}
}

// TestRingCollector_RetainsMostRecentOnAllocEvents confirms the dropped
// events are the oldest ones, not an arbitrary subset.
func TestRingCollector_RetainsMostRecentOnAllocEvents(t *testing.T) {
	c := NewRingCollector(3)
	for i := 0; i < 5; i++ {
		c.OnAlloc(nil, i)
	}
	events := c.Drain()
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	want := []int{2, 3, 4}
	for i, e := range events {
		if e.N != want[i] {
			t.Fatalf("events[%d].N = %d, want %d", i, e.N, want[i])
		}
	}
}

// TestRegion_RingCollectorIntegration exercises a RingCollector wired
// through a live Region end to end.
func TestRegion_RingCollectorIntegration(t *testing.T) {
	collector := NewRingCollector(16)
	r, err := InitializeWithPolicy(nil, true, AllocationPolicy{
		StartBlockSize: 256,
		MaxBlockSize:   1024,
		Metrics:        collector,
	})
	if err != nil {
		t.Fatalf("InitializeWithPolicy: %v", err)
	}

	r.AllocateAligned(8)
	r.Reset()
	r.Destroy()

	events := collector.Drain()
	var resets, destroys int
	for _, e := range events {
		if e.Kind == EventReset {
			resets++
		}
		if e.Kind == EventDestroy {
			destroys++
		}
	}
	if resets != 1 {
		t.Fatalf("resets = %d, want 1", resets)
	}
	if destroys != 1 {
		t.Fatalf("destroys = %d, want 1", destroys)
	}
}
