// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpool

import "errors"

// ErrOutOfMemory is returned by New when the pool's first block cannot be
// allocated. Every later allocation entry point (Alloc, Nalloc, Calloc,
// Memalign) reports the same condition the Go-idiomatic way: a nil
// unsafe.Pointer, per the allocator's error-handling contract. OutOfMemory
// never invokes cleanups and never partially mutates pool state beyond
// what a failed operation already did.
var ErrOutOfMemory = errors.New("rpool: out of memory")

// ErrNotFound is returned by Free when the pointer is not tracked by any
// live large-allocation descriptor. It is benign and informational.
var ErrNotFound = errors.New("rpool: pointer not tracked by any large allocation")
