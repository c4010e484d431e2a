// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block

import (
	"testing"
)

func TestTryAllocBumpsCursor(t *testing.T) {
	b := New(make([]byte, 64))

	p1, ok := b.TryAlloc(8, false)
	if !ok || p1 == nil {
		t.Fatalf("first alloc failed")
	}
	if b.Available() != 56 {
		t.Fatalf("Available() = %d, want 56", b.Available())
	}

	p2, ok := b.TryAlloc(8, false)
	if !ok {
		t.Fatalf("second alloc failed")
	}
	if uintptr(p2)-uintptr(p1) != 8 {
		t.Fatalf("unaligned allocations not contiguous: delta=%d", uintptr(p2)-uintptr(p1))
	}
}

func TestTryAllocAlignedRoundsUp(t *testing.T) {
	b := New(make([]byte, 64))

	// Force an odd cursor, then request an aligned allocation.
	if _, ok := b.TryAlloc(3, false); !ok {
		t.Fatal("setup alloc failed")
	}
	p, ok := b.TryAlloc(8, true)
	if !ok {
		t.Fatalf("aligned alloc failed")
	}
	if uintptr(p)%WordAlignment != 0 {
		t.Fatalf("aligned pointer %p is not word-aligned", p)
	}
}

func TestTryAllocRejectsOversize(t *testing.T) {
	b := New(make([]byte, 16))
	if _, ok := b.TryAlloc(17, false); ok {
		t.Fatal("expected TryAlloc to reject a request larger than the block")
	}
}

func TestIncFailedAndRetired(t *testing.T) {
	b := New(make([]byte, 16))
	for i := 1; i <= FailureThreshold+1; i++ {
		if b.Retired() {
			t.Fatalf("block retired too early at failed=%d", i-1)
		}
		b.IncFailed()
	}
	if !b.Retired() {
		t.Fatalf("block should be retired once failed exceeds %d, got failed=%d", FailureThreshold, b.Failed())
	}
}

func TestResetCursorClearsState(t *testing.T) {
	b := New(make([]byte, 16))
	b.TryAlloc(8, false)
	b.IncFailed()
	b.IncFailed()

	b.ResetCursor()

	if b.Available() != 16 {
		t.Fatalf("Available() after reset = %d, want 16", b.Available())
	}
	if b.Failed() != 0 {
		t.Fatalf("Failed() after reset = %d, want 0", b.Failed())
	}
}

func TestChainLinking(t *testing.T) {
	a := New(make([]byte, 8))
	c := New(make([]byte, 8))
	if a.Next() != nil {
		t.Fatal("fresh block should have no successor")
	}
	a.SetNext(c)
	if a.Next() != c {
		t.Fatal("SetNext did not link the successor")
	}
}
