// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpool provides a region-based memory pool for request-scoped
// lifetimes in long-running server processes.
//
// A Pool is a bounded collection of fixed-size memory blocks plus the
// bookkeeping that lets callers make many small, fast allocations and
// release them all at once by destroying the pool. It is optimized for
// workloads where allocation greatly outnumbers individual deallocation
// and where an object's natural lifetime coincides with a unit of work: a
// request, a connection, a configuration parse.
//
// # Allocation paths
//
// Allocations at or below the pool's max-small threshold are served by a
// bump pointer walking a chain of fixed-size blocks (the "small path").
// Larger allocations go to the system heap directly and are tracked by a
// small linked list of descriptors (the "large path"):
//
//	pool, err := rpool.New(4096, nil)
//	if err != nil {
//	    // handle OutOfMemory
//	}
//	defer pool.Destroy()
//
//	buf := pool.Alloc(128)           // small path, word-aligned
//	raw := pool.Nalloc(128)          // small path, unaligned
//	zeroed := pool.Calloc(64)        // either path, zero-filled
//	big := pool.Memalign(1<<20, 64)  // always large path, custom alignment
//
// # Cleanup
//
// Callers register (handler, data) pairs that run once, in
// reverse-registration order, when the pool is destroyed:
//
//	n := pool.CleanupAdd(int(unsafe.Sizeof(cleanup.FileData{})))
//	n.Handler = cleanup.CloseFile
//	(*cleanup.FileData)(n.Data).Fd = fd
//
// # Ownership and concurrency
//
// A Pool is owned by exactly one logical task at a time; none of its
// methods are safe for concurrent use. Sharing a Pool across worker tasks
// is arranged externally — see the poolset package for a lock-free
// recycling registry built for exactly that pattern.
package rpool
