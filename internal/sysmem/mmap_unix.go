// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

// mmapAligned maps size bytes anonymously. Anonymous mappings are placed on
// a page boundary by the kernel, so the result already satisfies any
// alignment request up to the page size with no trimming. ok is false when
// this platform has no mmap support for the caller to fall back on; that
// never happens in this build (the build tag guarantees unix), but the
// signature is shared with mmap_other.go's stub.
func mmapAligned(size int) (region Region, ok bool, err error) {
	b, mmapErr := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if mmapErr != nil {
		return Region{}, true, ErrOutOfMemory
	}
	mapped := b
	return Region{
		bytes: mapped,
		close: func() error { return unix.Munmap(mapped) },
	}, true, nil
}
