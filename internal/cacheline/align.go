// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cacheline exposes architecture-specific cache line sizes and
// derives the pool's block alignment from them.
package cacheline

// PoolAlignment is the alignment requested for every pool block allocation.
// It tracks the architecture's cache line size. Every Size value defined in
// this package is already >= 16, the minimum a pool alignment may fall to
// regardless of platform, so no further clamping is needed.
const PoolAlignment = Size

// assertMinAlignment fails to compile (constant overflow) if Size ever
// drops below the platform-minimum pool alignment.
const assertMinAlignment uintptr = Size - 16

