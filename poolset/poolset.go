// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package poolset arranges the cross-worker sharing that a single rpool.Pool
// explicitly cannot do on its own (rpool.Pool is single-owner, non-thread-
// safe): a bounded, lock-free MPMC registry that hands out *rpool.Pool
// handles to worker goroutines and reclaims them, after an automatic Reset,
// on return.
package poolset

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	"github.com/hybscloud/rpool"
	"github.com/hybscloud/rpool/internal/cacheline"
)

// Recycler is a bounded handle registry with configurable blocking
// semantics. Get blocks until a handle is available in blocking mode, or
// returns iox.ErrWouldBlock immediately in non-blocking mode; Put is the
// converse for returning a handle.
type Recycler[T any] interface {
	// Put returns item to the set. Returns iox.ErrWouldBlock if
	// non-blocking and full.
	Put(item T) error

	// Get acquires an item from the set. Returns iox.ErrWouldBlock if
	// non-blocking and empty.
	Get() (item T, err error)
}

// noCopy is a sentinel used to prevent copying of synchronization
// primitives; it implements sync.Locker solely so `go vet -copylocks`
// flags accidental copies of a PoolSet.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

var _ Recycler[*rpool.Pool] = (*PoolSet)(nil)

// New creates a PoolSet holding capacity pools, each constructed by calling
// rpool.New(blockSize, log). capacity is rounded up to the next power of
// two, required by the ring's turn-based slot arithmetic below. If any
// underlying rpool.New call fails, New returns the error from that call and
// the PoolSet is not usable.
func New(capacity, blockSize int, log *slog.Logger) (*PoolSet, error) {
	if capacity < 1 || capacity > math.MaxUint32 {
		return nil, fmt.Errorf("poolset: capacity must be between 1 and MaxUint32")
	}
	capacity--
	capacity |= capacity >> 1
	capacity |= capacity >> 2
	capacity |= capacity >> 4
	capacity |= capacity >> 8
	capacity |= capacity >> 16
	capacity++

	remapM := min(int(cacheline.Size)/int(unsafe.Sizeof(atomic.Uint64{})), capacity)
	remapN := max(1, capacity/remapM)

	ps := &PoolSet{
		items:     make([]*rpool.Pool, 0, capacity),
		capacity:  uint32(capacity),
		mask:      uint32(capacity - 1),
		remapM:    uint32(remapM),
		remapN:    uint32(remapN),
		remapMask: uint32(remapN - 1),
	}

	for range capacity {
		p, err := rpool.New(blockSize, log)
		if err != nil {
			return nil, fmt.Errorf("poolset: %w", err)
		}
		ps.items = append(ps.items, p)
	}
	ps.entries = make([]atomic.Uint64, ps.capacity)
	for i := range ps.capacity {
		ps.entries[i].Store(uint64(i))
	}
	ps.tail.Store(ps.capacity)

	return ps, nil
}

// PoolSet is a fixed-capacity, lock-free MPMC ring of *rpool.Pool handles.
// It is safe for concurrent use; the Pool handles it hands out are not —
// each handle is owned exclusively by whichever caller currently holds it,
// per rpool's single-owner contract. The ring implements the bounded MPMC
// queue algorithm from
// https://nikitakoval.org/publications/ppopp20-queues.pdf, domain-correct
// for a concurrent recycler even though it would be wrong inside the
// allocator core itself.
type PoolSet struct {
	_ noCopy

	items      []*rpool.Pool
	capacity   uint32
	mask       uint32
	entries    []atomic.Uint64
	remapM     uint32
	remapN     uint32
	remapMask  uint32
	head, tail atomic.Uint32

	nonblocking bool
}

// SetNonblock enables or disables the set's non-blocking mode.
func (ps *PoolSet) SetNonblock(nonblocking bool) {
	ps.nonblocking = nonblocking
}

// Cap returns the set's capacity.
func (ps *PoolSet) Cap() int {
	return int(ps.capacity)
}

// Get acquires a pool handle from the set. In blocking mode it uses
// adaptive waiting (iox.Backoff) when the set is momentarily empty:
// exhaustion here is an external scheduling event (a worker is still using
// its pool), not a hardware-latency event, so OS-level yielding is
// preferred over a hot spin.
func (ps *PoolSet) Get() (*rpool.Pool, error) {
	var aw iox.Backoff
	for {
		entry, err := ps.tryGet()
		if err == nil {
			return ps.items[entry&uint64(ps.mask)], nil
		}
		if err == iox.ErrWouldBlock {
			if ps.nonblocking {
				return nil, err
			}
			aw.Wait()
			continue
		}
		return nil, err
	}
}

// Put returns a pool handle to the set, resetting it first so the next
// acquirer sees a pool with no allocations, large tracks, or cleanup
// nodes outstanding from the previous borrower.
func (ps *PoolSet) Put(item *rpool.Pool) error {
	item.Reset()

	indirect := -1
	for i, p := range ps.items {
		if p == item {
			indirect = i
			break
		}
	}
	if indirect < 0 {
		return fmt.Errorf("poolset: pool handle not owned by this set")
	}

	entry := uint64(indirect)
	var aw iox.Backoff
	for {
		err := ps.tryPut(entry)
		if err == nil {
			return nil
		}
		if err == iox.ErrWouldBlock {
			if ps.nonblocking {
				return err
			}
			aw.Wait()
			continue
		}
		return err
	}
}

const (
	poolSetEntryEmpty    = 1 << 62
	poolSetEntryTurnMask = poolSetEntryEmpty>>32 - 1
)

func (ps *PoolSet) tryGet() (entry uint64, err error) {
	sw := spin.Wait{}
	for {
		h, t := ps.head.Load(), ps.tail.Load()
		hi := ps.remap(h & ps.mask)
		e := ps.entries[hi].Load()

		if h != ps.head.Load() {
			sw.Once()
			continue
		}

		if h == t {
			return poolSetEntryEmpty, iox.ErrWouldBlock
		}

		nextTurn := (h/ps.capacity + 1) & poolSetEntryTurnMask
		if e == ps.empty(nextTurn) {
			ps.head.CompareAndSwap(h, h+1)
			sw.Once()
			continue
		}
		ok := ps.entries[hi].CompareAndSwap(e, ps.empty(nextTurn))
		ps.head.CompareAndSwap(h, h+1)
		if ok {
			return e, nil
		}
		sw.Once()
	}
}

func (ps *PoolSet) tryPut(e uint64) error {
	sw := spin.Wait{}
	for {
		h, t := ps.head.Load(), ps.tail.Load()
		if t != ps.tail.Load() {
			sw.Once()
			continue
		}
		if t == h+ps.capacity {
			return iox.ErrWouldBlock
		}
		turn, ti := (t/ps.capacity)&poolSetEntryTurnMask, ps.remap(t)
		ok := ps.entries[ti].CompareAndSwap(ps.empty(turn), e)
		ps.tail.CompareAndSwap(t, t+1)
		if ok {
			return nil
		}
		sw.Once()
	}
}

func (ps *PoolSet) remap(cursor uint32) int {
	p, q := cursor/ps.remapN, cursor&ps.remapMask
	return int(q*ps.remapM + p%ps.remapM)
}

func (ps *PoolSet) empty(turn uint32) uint64 {
	return poolSetEntryEmpty | uint64(turn&poolSetEntryTurnMask)
}
