// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package sysmem

// mmapAligned has no implementation on this platform; ok=false tells the
// caller to use the portable over-allocate-and-trim path instead.
func mmapAligned(size int) (region Region, ok bool, err error) {
	return Region{}, false, nil
}
