// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import "testing"

type point struct {
	X, Y int64
}

func TestAlloc_ReturnsZeroedPointerThroughRegion(t *testing.T) {
	r := New()
	p := Alloc[point](r)
	if p.X != 0 || p.Y != 0 {
		t.Fatalf("p = %+v, want zero value", p)
	}
	p.X, p.Y = 3, 4
	if p.X != 3 || p.Y != 4 {
		t.Fatalf("writes through p did not stick")
	}
}

func TestAlloc_ReturnsZeroedPointerThroughLocal(t *testing.T) {
	r := New()
	local := r.Pin()
	p := Alloc[point](local)
	if p.X != 0 || p.Y != 0 {
		t.Fatalf("p = %+v, want zero value", p)
	}
}

func TestAllocSlice_ReturnsRequestedLengthAndIsWritable(t *testing.T) {
	r := New()
	s := AllocSlice[point](r, 10)
	if len(s) != 10 {
		t.Fatalf("len(s) = %d, want 10", len(s))
	}
	for i := range s {
		s[i].X = int64(i)
	}
	for i := range s {
		if s[i].X != int64(i) {
			t.Fatalf("s[%d].X = %d, want %d", i, s[i].X, i)
		}
	}
}

func TestAllocSlice_NonPositiveCountReturnsNil(t *testing.T) {
	r := New()
	if s := AllocSlice[point](r, 0); s != nil {
		t.Fatalf("AllocSlice(0) = %v, want nil", s)
	}
	if s := AllocSlice[point](r, -5); s != nil {
		t.Fatalf("AllocSlice(-5) = %v, want nil", s)
	}
}

func TestAlloc_ZeroSizedTypeDoesNotPanic(t *testing.T) {
	r := New()
	type empty struct{}
	p := Alloc[empty](r)
	if p == nil {
		t.Fatalf("Alloc[empty] returned nil")
	}
}
