// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sysmem is the pool's external page-allocator collaborator: plain
// and aligned system allocation, system free, and zero-fill. It is the only
// package in this module that touches raw memory outside Go's normal
// allocator guarantees.
package sysmem

import (
	"errors"
	"unsafe"
)

// PageSize is the system page size used to size SystemSmallCeiling. It is a
// package-level variable, not a runtime-detected constant, so callers can
// override it for platforms where detection is unavailable.
var PageSize uintptr = 4096

// SetPageSize updates the package-level page size.
func SetPageSize(size int) {
	PageSize = uintptr(size)
}

// ErrOutOfMemory is returned when the underlying allocator cannot satisfy
// a request. It is converted to a nil sentinel pointer at the pool's public
// API boundary, per the pool's error-handling contract.
var ErrOutOfMemory = errors.New("sysmem: out of memory")

// ErrInvalidSize is returned for non-positive sizes or alignments.
var ErrInvalidSize = errors.New("sysmem: invalid size or alignment")

// Region is one system allocation owned by the pool. Free releases any
// resource that Go's garbage collector would not otherwise reclaim (e.g. an
// mmap mapping); for ordinary GC-backed memory, Free is a no-op, matching
// the fact that Go offers no direct equivalent of a C free().
type Region struct {
	bytes []byte
	close func() error
}

// Bytes returns the backing slice of the region.
func (r Region) Bytes() []byte { return r.bytes }

// Ptr returns the address of the first byte of the region.
func (r Region) Ptr() unsafe.Pointer {
	if len(r.bytes) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(r.bytes))
}

// Len returns the region size in bytes.
func (r Region) Len() int { return len(r.bytes) }

// Free releases the region. It is safe to call on the zero Region.
func (r Region) Free() error {
	if r.close != nil {
		return r.close()
	}
	return nil
}

// Alloc obtains size bytes from the system heap with no special alignment
// guarantee beyond what Go's allocator already provides.
func Alloc(size int) (Region, error) {
	if size <= 0 {
		return Region{}, ErrInvalidSize
	}
	return safeMake(size)
}

// AlignedAlloc obtains size bytes aligned to the requested power-of-two
// alignment. On Unix platforms it prefers an anonymous mmap mapping, which
// is naturally page-aligned and therefore satisfies any alignment up to the
// page size without padding; otherwise, and whenever a larger alignment is
// requested, it falls back to the portable over-allocate-and-trim technique.
func AlignedAlloc(size, alignment int) (Region, error) {
	if size <= 0 || alignment <= 0 || alignment&(alignment-1) != 0 {
		return Region{}, ErrInvalidSize
	}
	if uintptr(alignment) <= PageSize {
		if r, ok, err := mmapAligned(size); ok {
			if err != nil {
				return Region{}, err
			}
			return r, nil
		}
	}
	return alignedSlice(size, alignment)
}

// Zero fills size bytes starting at ptr with zero. It is the pool's only
// guaranteed-zeroing primitive, used solely by Calloc.
func Zero(ptr unsafe.Pointer, size int) {
	if size <= 0 {
		return
	}
	clear(unsafe.Slice((*byte)(ptr), size))
}

// alignedSlice allocates size+alignment-1 bytes and trims to the
// first offset aligned to the requested boundary, generalized to an
// arbitrary power-of-two alignment and wrapped for graceful out-of-memory
// reporting.
func alignedSlice(size, alignment int) (region Region, err error) {
	defer func() {
		if recover() != nil {
			region, err = Region{}, ErrOutOfMemory
		}
	}()
	raw := make([]byte, size+alignment-1)
	base := unsafe.Pointer(unsafe.SliceData(raw))
	a := uintptr(alignment)
	offset := ((uintptr(base)+a-1)/a)*a - uintptr(base)
	aligned := unsafe.Slice((*byte)(unsafe.Add(base, offset)), size)
	return Region{bytes: aligned}, nil
}

func safeMake(size int) (region Region, err error) {
	defer func() {
		if recover() != nil {
			region, err = Region{}, ErrOutOfMemory
		}
	}()
	buf := make([]byte, size)
	return Region{bytes: buf}, nil
}
