// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package netio flushes a set of pool-owned allocations to the wire in a
// single vectored write, the natural operation a server built on rpool
// performs before destroying a request's pool.
package netio

import (
	"net"
	"unsafe"
)

// IoVec is a scatter/gather I/O descriptor with the same memory layout as
// the standard Linux struct iovec:
//
//	struct iovec {
//	    void  *iov_base;
//	    size_t iov_len;
//	};
//
// The caller must ensure Base points to memory that stays valid for the
// duration of any I/O operation built from it — in particular, the owning
// rpool.Pool must not be Reset or Destroyed first.
type IoVec struct {
	Base *byte
	Len  uint64
}

// FromAllocs builds one IoVec per (pointer, length) pair. ptrs and lens
// must be the same length; a mismatch panics, same as indexing past a
// slice's bounds.
func FromAllocs(ptrs []unsafe.Pointer, lens []int) []IoVec {
	if len(ptrs) != len(lens) {
		panic("netio: ptrs and lens must have the same length")
	}
	if len(ptrs) == 0 {
		return nil
	}
	vec := make([]IoVec, len(ptrs))
	for i := range ptrs {
		vec[i] = IoVec{Base: (*byte)(ptrs[i]), Len: uint64(lens[i])}
	}
	return vec
}

// AddrLen extracts the raw pointer and element count from an IoVec slice
// for direct syscall consumption (readv, writev, io_uring submission).
// Returns (0, 0) for an empty or nil slice.
func AddrLen(vec []IoVec) (addr uintptr, n int) {
	if len(vec) == 0 {
		return 0, 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(vec))), len(vec)
}

// WriteAllocs writes every allocation named by ptrs/lens to conn in a
// single vectored call, without copying any of the pool's memory into an
// intermediate buffer. It relies on net.Buffers, which dispatches to
// writev on platforms that support it and falls back to sequential Write
// calls elsewhere.
//
// The allocations must outlive the call — do not Reset or Destroy the
// owning rpool.Pool until WriteAllocs returns.
func WriteAllocs(conn net.Conn, ptrs []unsafe.Pointer, lens []int) (int64, error) {
	if len(ptrs) != len(lens) {
		panic("netio: ptrs and lens must have the same length")
	}
	if len(ptrs) == 0 {
		return 0, nil
	}

	bufs := make(net.Buffers, len(ptrs))
	for i := range ptrs {
		bufs[i] = unsafe.Slice((*byte)(ptrs[i]), lens[i])
	}
	return bufs.WriteTo(conn)
}
