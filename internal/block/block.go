// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package block implements the pool's bump-pointer block chain: the
// fixed-size memory chunks that serve small allocations, and the
// failed-counter state machine that retires saturated blocks from future
// searches.
package block

import "unsafe"

// WordAlignment is the platform natural word size, used by the aligned
// small-path allocation variant.
const WordAlignment = unsafe.Sizeof(uintptr(0))

// FailureThreshold is the number of unsatisfied searches a block may absorb
// before it is retired from the chain's `current` search window. It is
// deliberately not configurable: the small-path amortization argument in
// the allocator's design depends on it being small and fixed.
const FailureThreshold = 4

// Block is one fixed-capacity chunk in the pool's block chain. It owns no
// header bytes of its own in mem — all pool- and block-level bookkeeping
// lives in separate Go structs outside the backing storage, so every byte
// of mem is available to the bump allocator. See the module's DESIGN.md for
// the reasoning behind that choice.
type Block struct {
	mem    []byte
	last   int
	failed int
	next   *Block
}

// New wraps mem as a fresh block with nothing allocated from it yet.
func New(mem []byte) *Block {
	return &Block{mem: mem}
}

// Bytes returns the block's backing storage.
func (b *Block) Bytes() []byte { return b.mem }

// Next returns the next block in the chain, or nil at the tail.
func (b *Block) Next() *Block { return b.next }

// SetNext links the new tail of the chain.
func (b *Block) SetNext(n *Block) { b.next = n }

// Failed returns the block's current failed-search count.
func (b *Block) Failed() int { return b.failed }

// IncFailed increments the block's failed-search counter and returns the
// new value. Called once per block-grow event for every block from the
// pool's current block through the old tail, before the new block is linked.
func (b *Block) IncFailed() int {
	b.failed++
	return b.failed
}

// Retired reports whether the block has been pushed past the failure
// threshold and should no longer be considered by a `current`-rooted
// search.
func (b *Block) Retired() bool { return b.failed > FailureThreshold }

// Available returns the number of bytes still free in the block.
func (b *Block) Available() int { return len(b.mem) - b.last }

// TryAlloc attempts to bump-allocate size bytes from the block. When
// aligned is true, the bump cursor is rounded up to WordAlignment before
// the size check, matching the pool's aligned small-path variant.
func (b *Block) TryAlloc(size int, aligned bool) (unsafe.Pointer, bool) {
	m := b.last
	if aligned {
		m = alignUp(m, int(WordAlignment))
	}
	if len(b.mem)-m < size {
		return nil, false
	}
	b.last = m + size
	return b.ptrAt(m), true
}

// ResetCursor returns the block to its freshly-grown state: nothing
// allocated, no recorded failures. Used by Pool.Reset.
func (b *Block) ResetCursor() {
	b.last = 0
	b.failed = 0
}

func (b *Block) ptrAt(offset int) unsafe.Pointer {
	if len(b.mem) == 0 {
		return nil
	}
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(b.mem)), offset)
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}
