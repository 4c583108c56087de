package sysalloc

import "testing"

func TestAlloc_ReturnsRequestedCapacity(t *testing.T) {
	buf, err := Alloc(4096)
	if err != nil {
		t.Fatalf("Alloc returned error: %v", err)
	}
	if len(buf) < 4096 {
		t.Fatalf("expected at least 4096 bytes, got %d", len(buf))
	}
	buf[0] = 1
	buf[len(buf)-1] = 2
	Dealloc(buf)
}

func TestAlloc_SmallSizesRoundTrip(t *testing.T) {
	buf, err := Alloc(64)
	if err != nil {
		t.Fatalf("Alloc returned error: %v", err)
	}
	if len(buf) < 64 {
		t.Fatalf("expected at least 64 bytes, got %d", len(buf))
	}
	for i := range buf[:64] {
		buf[i] = byte(i)
	}
	for i := range buf[:64] {
		if buf[i] != byte(i) {
			t.Fatalf("byte %d corrupted: want %d got %d", i, byte(i), buf[i])
		}
	}
	Dealloc(buf)
}
