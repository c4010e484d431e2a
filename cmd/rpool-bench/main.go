// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rpool-bench exercises block growth, large-allocation reuse, and
// cleanup ordering end to end, and reports how long each phase took.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unsafe"

	"github.com/hybscloud/rpool"
)

func main() {
	blockSize := flag.Int("block-size", 4096, "pool block size in bytes")
	smallAllocs := flag.Int("small-allocs", 100000, "number of small allocations to perform")
	smallSize := flag.Int("small-size", 64, "size in bytes of each small allocation")
	largeAllocs := flag.Int("large-allocs", 1000, "number of large allocations to perform")
	largeSize := flag.Int("large-size", 1<<20, "size in bytes of each large allocation")
	verbose := flag.Bool("verbose", false, "log pool diagnostics after each phase")
	flag.Parse()

	var log *slog.Logger
	if *verbose {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	pool, err := rpool.New(*blockSize, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rpool-bench: failed to create pool:", err)
		os.Exit(1)
	}
	defer pool.Destroy()

	runSmallAllocs(pool, *smallAllocs, *smallSize)
	if log != nil {
		log.Info("rpool-bench: phase done", "phase", "small allocs", "stats", pool.Stats())
	}
	runLargeAllocs(pool, *largeAllocs, *largeSize)
	if log != nil {
		log.Info("rpool-bench: phase done", "phase", "large allocs", "stats", pool.Stats())
	}
	runCleanupOrdering(*blockSize, log)
	if log != nil {
		log.Info("rpool-bench: phase done", "phase", "cleanup ordering", "stats", pool.Stats())
	}

	fmt.Printf("stats: %+v\n", pool.Stats())
}

func runSmallAllocs(pool *rpool.Pool, n, size int) {
	start := time.Now()
	for i := 0; i < n; i++ {
		if pool.Alloc(size) == nil {
			fmt.Fprintln(os.Stderr, "rpool-bench: small allocation failed, out of memory")
			os.Exit(1)
		}
	}
	fmt.Printf("small allocs: %d x %d bytes in %s (%d blocks)\n",
		n, size, time.Since(start), pool.Stats().Blocks)
}

func runLargeAllocs(pool *rpool.Pool, n, size int) {
	start := time.Now()
	for i := 0; i < n; i++ {
		ptr := pool.Alloc(size)
		if ptr == nil {
			fmt.Fprintln(os.Stderr, "rpool-bench: large allocation failed, out of memory")
			os.Exit(1)
		}
		// Free every third allocation immediately so later allocations
		// exercise allocLarge's vacant-slot reuse scan.
		if i%3 == 0 {
			if err := pool.Free(ptr); err != nil {
				fmt.Fprintln(os.Stderr, "rpool-bench: unexpected Free error:", err)
				os.Exit(1)
			}
		}
	}
	fmt.Printf("large allocs: %d x %d bytes in %s (%d tracked, %d live)\n",
		n, size, time.Since(start), pool.Stats().LargeAllocs, pool.Stats().LiveLargeAllocs)
}

// runCleanupOrdering runs in a throwaway pool of its own, since it exists
// to demonstrate Destroy's ordering guarantee and Destroy is terminal.
func runCleanupOrdering(blockSize int, log *slog.Logger) {
	pool, err := rpool.New(blockSize, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rpool-bench: failed to create cleanup-order pool:", err)
		os.Exit(1)
	}

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		n := pool.CleanupAdd(0)
		n.Handler = func(unsafe.Pointer) { order = append(order, i) }
	}
	pool.Destroy()

	want := []int{4, 3, 2, 1, 0}
	ok := len(order) == len(want)
	for i := range want {
		if ok && order[i] != want[i] {
			ok = false
		}
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "rpool-bench: cleanup order mismatch: got %v, want %v\n", order, want)
		os.Exit(1)
	}
	fmt.Printf("cleanup order: %v (reverse-registration, as specified)\n", order)
}
