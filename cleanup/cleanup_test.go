// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanup

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"unsafe"
)

func TestCloseFileClosesDescriptor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rpool-cleanup-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	fd := int(f.Fd())

	data := FileData{Fd: fd}
	CloseFile(unsafe.Pointer(&data))

	if err := f.Close(); err == nil {
		t.Fatalf("expected second Close to fail, descriptor was not closed")
	}
}

func TestDeleteFileRemovesAndCloses(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rpool-cleanup-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	path := f.Name()
	fd := int(f.Fd())

	data := DeleteFileData{Path: path, Fd: fd}
	DeleteFile(unsafe.Pointer(&data))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err = %v", err)
	}
	if err := f.Close(); err == nil {
		t.Fatalf("expected second Close to fail, descriptor was not closed")
	}
}

func TestDeleteFileMissingPathIsNotAnError(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rpool-cleanup-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	path := f.Name()
	fd := int(f.Fd())
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var logged bytes.Buffer
	data := DeleteFileData{Path: path, Fd: fd, Log: slog.New(slog.NewTextHandler(&logged, nil))}
	DeleteFile(unsafe.Pointer(&data))
	if logged.Len() != 0 {
		t.Fatalf("DeleteFile logged an error for a missing path: %s", logged.String())
	}
}
