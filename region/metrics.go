// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import (
	"sync"

	"github.com/eapache/queue"
)

// EventKind classifies a recorded lifecycle Event.
type EventKind int

const (
	EventAlloc EventKind = iota
	EventReset
	EventDestroy
)

// Event is one lifecycle notification recorded by RingCollector.
type Event struct {
	Kind       EventKind
	Type       TypeDescriptor // only meaningful for EventAlloc
	N          int            // only meaningful for EventAlloc
	BytesFreed uint64         // only meaningful for EventReset/EventDestroy
}

// RingCollector is a reference MetricsCollector that records the last N
// OnAlloc events into a ring backed by github.com/eapache/queue,
// generalizing the teacher's probe-registry idea (control/debug.go) onto a
// bounded FIFO instead of a map. Once full, OnAlloc events are dropped
// oldest-first; OnReset and OnDestroy events are kept in a separate,
// unbounded store so they are never evicted to make room for an OnAlloc,
// and Drain reassembles both stores back into one true chronological order.
type RingCollector struct {
	mu       sync.Mutex
	capacity int
	seq      uint64
	allocs   *queue.Queue // of seqEvent, EventAlloc only
	other    []seqEvent   // EventReset / EventDestroy, never dropped
}

// seqEvent pairs an Event with the global sequence number it was recorded
// under, so Drain can merge the two stores back into recording order.
type seqEvent struct {
	seq uint64
	ev  Event
}

// NewRingCollector builds a RingCollector retaining at most capacity
// OnAlloc events (OnReset/OnDestroy events are always retained regardless
// of capacity).
func NewRingCollector(capacity int) *RingCollector {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingCollector{capacity: capacity, allocs: queue.New()}
}

func (c *RingCollector) OnAlloc(typ TypeDescriptor, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocs.Length() >= c.capacity {
		c.allocs.Remove()
	}
	c.seq++
	c.allocs.Add(seqEvent{seq: c.seq, ev: Event{Kind: EventAlloc, Type: typ, N: n}})
}

func (c *RingCollector) OnReset(bytesFreed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.other = append(c.other, seqEvent{seq: c.seq, ev: Event{Kind: EventReset, BytesFreed: bytesFreed}})
}

func (c *RingCollector) OnDestroy(bytesFreed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.other = append(c.other, seqEvent{seq: c.seq, ev: Event{Kind: EventDestroy, BytesFreed: bytesFreed}})
}

// Drain removes and returns every event currently recorded, oldest first,
// merging the bounded alloc ring and the unbounded reset/destroy store back
// into the order they actually happened in.
func (c *RingCollector) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	allocs := make([]seqEvent, 0, c.allocs.Length())
	for c.allocs.Length() > 0 {
		allocs = append(allocs, c.allocs.Remove().(seqEvent))
	}
	other := c.other
	c.other = nil

	out := make([]Event, 0, len(allocs)+len(other))
	i, j := 0, 0
	for i < len(allocs) || j < len(other) {
		switch {
		case j >= len(other) || (i < len(allocs) && allocs[i].seq < other[j].seq):
			out = append(out, allocs[i].ev)
			i++
		default:
			out = append(out, other[j].ev)
			j++
		}
	}
	return out
}

var _ MetricsCollector = (*RingCollector)(nil)
