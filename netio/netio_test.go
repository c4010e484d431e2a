// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package netio_test

import (
	"io"
	"net"
	"testing"
	"unsafe"

	"github.com/hybscloud/rpool"
	"github.com/hybscloud/rpool/netio"
)

func TestWriteAllocsVectoredWrite(t *testing.T) {
	p, err := rpool.New(4096, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer p.Destroy()

	parts := [][]byte{[]byte("hello, "), []byte("vectored "), []byte("world")}
	ptrs := make([]unsafe.Pointer, len(parts))
	lens := make([]int, len(parts))
	for i, part := range parts {
		ptr := p.Alloc(len(part))
		if ptr == nil {
			t.Fatalf("Alloc failed for part %d", i)
		}
		copy(unsafe.Slice((*byte)(ptr), len(part)), part)
		ptrs[i] = ptr
		lens[i] = len(part)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	var got []byte
	go func() {
		defer close(done)
		got, _ = io.ReadAll(server)
	}()

	n, err := netio.WriteAllocs(client, ptrs, lens)
	if err != nil {
		t.Fatalf("WriteAllocs failed: %v", err)
	}
	client.Close()
	<-done

	if n != int64(len(got)) {
		t.Fatalf("WriteAllocs returned n=%d, read %d bytes", n, len(got))
	}
	if string(got) != "hello, vectored world" {
		t.Fatalf("got %q", got)
	}
}

func TestFromAllocsAndAddrLen(t *testing.T) {
	p, err := rpool.New(256, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer p.Destroy()

	a := p.Alloc(4)
	b := p.Alloc(8)
	vec := netio.FromAllocs([]unsafe.Pointer{a, b}, []int{4, 8})
	if len(vec) != 2 {
		t.Fatalf("len(vec) = %d, want 2", len(vec))
	}
	if vec[0].Len != 4 || vec[1].Len != 8 {
		t.Fatalf("unexpected lengths: %+v", vec)
	}

	addr, n := netio.AddrLen(vec)
	if n != 2 || addr == 0 {
		t.Fatalf("AddrLen() = (%d, %d)", addr, n)
	}
}

func TestWriteAllocsEmpty(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	n, err := netio.WriteAllocs(client, nil, nil)
	if err != nil || n != 0 {
		t.Fatalf("WriteAllocs(nil, nil) = (%d, %v), want (0, nil)", n, err)
	}
}
