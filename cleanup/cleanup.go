// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cleanup provides the pool's bundled cleanup handlers: close-file
// and delete-file. Both are external-collaborator dependent (they touch
// real file descriptors and the filesystem) and are opt-in — a pool never
// registers them on its own.
package cleanup

import (
	"log/slog"
	"os"
	"unsafe"
)

// FileData is the opaque data a close-file cleanup node carries. Allocate
// it via Pool.CleanupAdd(int(unsafe.Sizeof(cleanup.FileData{}))) and populate it
// before the pool may run the handler.
type FileData struct {
	Fd  int
	Log *slog.Logger
}

// CloseFile closes the file descriptor named by data. It is the handler a
// caller assigns to a cleanup node to have the pool close a file when the
// pool is destroyed, or targeted directly via Pool.RunCleanupFile. Failures
// are logged, not propagated — a cleanup handler has no return value by
// contract.
func CloseFile(data unsafe.Pointer) {
	d := (*FileData)(data)
	if err := os.NewFile(uintptr(d.Fd), "").Close(); err != nil && d.Log != nil {
		d.Log.Error("rpool: close-file cleanup failed", "fd", d.Fd, "error", err)
	}
}

// DeleteFileData is the opaque data a delete-file cleanup node carries.
type DeleteFileData struct {
	Path string
	Fd   int
	Log  *slog.Logger
}

// DeleteFile removes the named filesystem entry and then closes the
// descriptor, exactly as the pool's bundled delete-file handler. A missing
// target is not an error — the file may already have been removed by the
// time the pool is destroyed.
func DeleteFile(data unsafe.Pointer) {
	d := (*DeleteFileData)(data)
	if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) && d.Log != nil {
		d.Log.Error("rpool: delete-file cleanup failed", "path", d.Path, "error", err)
	}
	CloseFile(unsafe.Pointer(&FileData{Fd: d.Fd, Log: d.Log}))
}
