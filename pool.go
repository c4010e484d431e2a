// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpool

import (
	"log/slog"
	"reflect"
	"unsafe"

	"github.com/hybscloud/rpool/cleanup"
	"github.com/hybscloud/rpool/internal/block"
	"github.com/hybscloud/rpool/internal/cacheline"
	"github.com/hybscloud/rpool/internal/sysmem"
)

// Tuning constants. The failure threshold and large-slot scan cap are
// load-bearing for the amortization arguments behind the `current` hint
// and the large list's reuse window, and are deliberately not
// configurable.
const (
	// PoolAlignment is the alignment requested for every block allocation.
	PoolAlignment = cacheline.PoolAlignment

	// WordAlignment is the platform natural word size.
	WordAlignment = block.WordAlignment

	// FailureThreshold is the number of failed searches, strictly
	// exceeded, that retires a block from the small-path search window.
	FailureThreshold = block.FailureThreshold

	// LargeScanCap bounds how many large descriptors allocLarge inspects
	// for a vacant slot before allocating a fresh one.
	LargeScanCap = 4
)

// SystemSmallCeiling is the largest allocation size the small path may
// ever serve, independent of block size: one page minus one machine
// word's worth of headroom, the conventional value.
var SystemSmallCeiling = int(sysmem.PageSize) - int(WordAlignment)

// largeDescriptor is a bookkeeping node for one large-heap allocation. Its
// mem field carries a close closure that the garbage collector must keep
// reachable, so the descriptor is an ordinary Go-heap value rather than
// something reinterpreted out of block memory: the memory backing a block
// can be an anonymous mapping the collector never scans, and a Go pointer
// living only inside unscanned memory is eligible for collection out from
// under it.
type largeDescriptor struct {
	alloc unsafe.Pointer
	mem   sysmem.Region
	next  *largeDescriptor
}

// CleanupNode is a (handler, data) pair run once at pool destruction, or
// earlier via RunCleanupFile. Callers obtain one via CleanupAdd and then
// populate Handler and the memory behind Data. Handler is a closure, so —
// for the same reason as largeDescriptor above — the node itself is an
// ordinary Go-heap value; only the opaque Data payload it points to may
// live in block memory.
type CleanupNode struct {
	// Handler is invoked with Data at destruction time, in
	// reverse-registration order. A nil Handler makes the node inert.
	Handler func(data unsafe.Pointer)
	// Data is the opaque payload passed to Handler. It is nil unless
	// CleanupAdd was called with a positive data size.
	Data unsafe.Pointer
	next *CleanupNode
}

// Pool is a bounded collection of memory blocks plus the bookkeeping that
// lets callers make many small allocations and release them all at once.
// A Pool is owned by exactly one logical task at a time; none of its
// methods are safe for concurrent use — see package poolset for sharing a
// Pool across worker tasks.
type Pool struct {
	blockSize    int
	maxSmall     int
	current      *block.Block
	blocksHead   *block.Block
	blockRegions []sysmem.Region
	largeHead    *largeDescriptor
	cleanupHead  *CleanupNode
	log          *slog.Logger
}

// New allocates a pool's first block of exactly blockSize bytes at
// PoolAlignment and returns the pool ready for use. log is an opaque
// handle the pool stores and never reads, interprets or mutates through;
// the bundled cleanup handlers in package cleanup take their logger from
// their own data, not from the pool.
func New(blockSize int, log *slog.Logger) (*Pool, error) {
	if blockSize <= 0 {
		return nil, ErrOutOfMemory
	}

	region, err := sysmem.AlignedAlloc(blockSize, PoolAlignment)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	b := block.New(region.Bytes())

	maxSmall := blockSize
	if maxSmall > SystemSmallCeiling {
		maxSmall = SystemSmallCeiling
	}

	return &Pool{
		blockSize:    blockSize,
		maxSmall:     maxSmall,
		current:      b,
		blocksHead:   b,
		blockRegions: []sysmem.Region{region},
		log:          log,
	}, nil
}

// Alloc allocates size bytes, word-aligned, from the small path when size
// is at or below the pool's max-small threshold, otherwise from the large
// path with no special alignment. Returns nil on OutOfMemory.
func (p *Pool) Alloc(size int) unsafe.Pointer {
	if size <= p.maxSmall {
		return p.allocSmall(size, true)
	}
	return p.allocLarge(size)
}

// Nalloc is identical to Alloc except the small path is unaligned; the
// large path is unaffected since it never aligns beyond what the system
// allocator already guarantees.
func (p *Pool) Nalloc(size int) unsafe.Pointer {
	if size <= p.maxSmall {
		return p.allocSmall(size, false)
	}
	return p.allocLarge(size)
}

// Calloc allocates via the normal dispatch and then zero-fills the
// returned region. Zeroing is unconditional on success; it is the pool's
// only guaranteed-zeroing path.
func (p *Pool) Calloc(size int) unsafe.Pointer {
	ptr := p.Alloc(size)
	if ptr == nil {
		return nil
	}
	sysmem.Zero(ptr, size)
	return ptr
}

// Memalign always serves size from the large path, at the requested
// alignment, regardless of the pool's max-small threshold. alignment must
// be a power of two. Unlike Alloc/Nalloc's large path, Memalign never
// scans the descriptor list for a vacant slot to reuse: a caller asking
// for a specific alignment always gets a fresh descriptor and a fresh
// system allocation.
func (p *Pool) Memalign(size, alignment int) unsafe.Pointer {
	return p.allocLargeAligned(size, alignment)
}

// allocSmall implements the small-path walk: starting from current, try
// every block in the chain; if none can satisfy the request, grow the
// chain.
func (p *Pool) allocSmall(size int, aligned bool) unsafe.Pointer {
	for b := p.current; b != nil; b = b.Next() {
		if ptr, ok := b.TryAlloc(size, aligned); ok {
			return ptr
		}
	}
	return p.growBlock(size)
}

// growBlock allocates a new block, consumes the triggering allocation from
// it atomically, and links it as the chain's new tail. While walking from
// current to the old tail, it increments every intermediate block's
// failed counter and advances current past any block whose counter now
// exceeds FailureThreshold — the mechanism that keeps small-path search
// cost amortized as the chain grows.
func (p *Pool) growBlock(size int) unsafe.Pointer {
	region, err := sysmem.AlignedAlloc(p.blockSize, PoolAlignment)
	if err != nil {
		return nil
	}
	nb := block.New(region.Bytes())

	ptr, ok := nb.TryAlloc(size, true)
	if !ok {
		// Alloc and Nalloc only get here with size <= maxSmall <= blockSize,
		// which always fits a freshly grown, empty block; CleanupAdd's data
		// size is not bounded that way and fails here above blockSize.
		region.Free()
		return nil
	}

	// Every block from current to the old tail just failed to satisfy
	// this allocation (that is why growBlock was called at all), so each
	// absorbs exactly one failure. Whichever block's counter crosses the
	// threshold hands the `current` hint to its successor; if that
	// happens to be the old tail, the hint advances to the new block
	// once it is linked.
	tail := p.current
	for {
		next := tail.Next()
		if tail.IncFailed() > FailureThreshold && next != nil {
			p.current = next
		}
		if next == nil {
			break
		}
		tail = next
	}
	tail.SetNext(nb)
	if tail.Retired() {
		p.current = nb
	}
	p.blockRegions = append(p.blockRegions, region)

	return ptr
}

// allocLarge serves size bytes directly from the system heap with no
// special alignment, first scanning up to LargeScanCap existing
// descriptors for one whose allocation was already freed, before
// allocating a fresh descriptor and prepending it to the large list.
func (p *Pool) allocLarge(size int) unsafe.Pointer {
	region, err := sysmem.Alloc(size)
	if err != nil {
		return nil
	}
	ptr := region.Ptr()

	scanned := 0
	for d := p.largeHead; d != nil && scanned < LargeScanCap; d, scanned = d.next, scanned+1 {
		if d.alloc == nil {
			d.alloc = ptr
			d.mem = region
			return ptr
		}
	}

	d := &largeDescriptor{alloc: ptr, mem: region, next: p.largeHead}
	p.largeHead = d

	return ptr
}

// allocLargeAligned serves size bytes aligned to alignment, always via a
// fresh descriptor — it never scans the large list for a slot to reuse,
// per Memalign's contract.
func (p *Pool) allocLargeAligned(size, alignment int) unsafe.Pointer {
	region, err := sysmem.AlignedAlloc(size, alignment)
	if err != nil {
		return nil
	}
	ptr := region.Ptr()

	d := &largeDescriptor{alloc: ptr, mem: region, next: p.largeHead}
	p.largeHead = d

	return ptr
}

// Free releases a large allocation previously returned by Alloc, Nalloc,
// Calloc, or Memalign. It reports ErrNotFound if ptr is not tracked by
// any live large-allocation descriptor — in particular, Free is never
// valid for a small-path pointer. The descriptor's slot is marked vacant
// for allocLarge's reuse scan, not removed from the list.
func (p *Pool) Free(ptr unsafe.Pointer) error {
	for d := p.largeHead; d != nil; d = d.next {
		if d.alloc != nil && d.alloc == ptr {
			err := d.mem.Free()
			d.alloc = nil
			d.mem = sysmem.Region{}
			return err
		}
	}
	return ErrNotFound
}

// CleanupAdd allocates a cleanup node as an ordinary Go value — so the
// collector keeps Handler reachable once the caller assigns it — and, if
// dataSize > 0, its data via the small path, then prepends the node to the
// cleanup list. The caller sets Handler and populates Data before the pool
// runs it.
func (p *Pool) CleanupAdd(dataSize int) *CleanupNode {
	n := &CleanupNode{}

	if dataSize > 0 {
		data := p.allocSmall(dataSize, true)
		if data == nil {
			return nil
		}
		n.Data = data
	}

	n.next = p.cleanupHead
	p.cleanupHead = n
	return n
}

// RunCleanupFile walks the cleanup list for a node whose handler is the
// bundled close-file handler and whose data names fd, invokes it
// immediately, and clears its handler so Destroy will not run it again.
// Other nodes, including delete-file nodes, are left untouched. Returns
// after the first match.
func (p *Pool) RunCleanupFile(fd int) {
	closeFilePtr := reflect.ValueOf(cleanup.CloseFile).Pointer()

	for n := p.cleanupHead; n != nil; n = n.next {
		if n.Handler == nil {
			continue
		}
		if reflect.ValueOf(n.Handler).Pointer() != closeFilePtr {
			continue
		}
		data := (*cleanup.FileData)(n.Data)
		if data.Fd != fd {
			continue
		}
		n.Handler(n.Data)
		n.Handler = nil
		return
	}
}

// Stats reports point-in-time counts useful for tests and diagnostics.
// Nothing in the allocator's invariants depends on these values; they are
// purely observational.
type Stats struct {
	Blocks          int
	LargeAllocs     int
	LiveLargeAllocs int
	CleanupNodes    int
}

// Stats walks all three chains and reports their current sizes.
func (p *Pool) Stats() Stats {
	var s Stats
	for b := p.blocksHead; b != nil; b = b.Next() {
		s.Blocks++
	}
	for d := p.largeHead; d != nil; d = d.next {
		s.LargeAllocs++
		if d.alloc != nil {
			s.LiveLargeAllocs++
		}
	}
	for n := p.cleanupHead; n != nil; n = n.next {
		s.CleanupNodes++
	}
	return s
}

// Reset returns the pool to a state behaviorally equivalent to a freshly
// constructed pool with the same block size, except that block memory is
// retained (not freed and not rezeroed). Cleanup nodes are discarded
// without being invoked — only destruction-time cleanup is ever run, by
// design.
func (p *Pool) Reset() {
	for d := p.largeHead; d != nil; d = d.next {
		if d.alloc != nil {
			d.mem.Free()
			d.alloc = nil
			d.mem = sysmem.Region{}
		}
	}
	for b := p.blocksHead; b != nil; b = b.Next() {
		b.ResetCursor()
	}
	p.current = p.blocksHead
	p.largeHead = nil
	p.cleanupHead = nil
}

// Destroy runs every still-armed cleanup handler in reverse-registration
// order, frees every live large allocation, then frees every block
// region. The pool must not be used, and Destroy must not be called
// again, afterward.
func (p *Pool) Destroy() {
	for n := p.cleanupHead; n != nil; n = n.next {
		if n.Handler != nil {
			n.Handler(n.Data)
		}
	}
	for d := p.largeHead; d != nil; d = d.next {
		if d.alloc != nil {
			d.mem.Free()
		}
	}
	for _, region := range p.blockRegions {
		region.Free()
	}

	p.blocksHead = nil
	p.current = nil
	p.blockRegions = nil
	p.largeHead = nil
	p.cleanupHead = nil
}
