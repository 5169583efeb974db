// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2017 The Memory Authors.
// Further modifications for this package: rewritten against
// golang.org/x/sys/unix instead of raw syscall, and split into two
// named primitives (heap-extension vs page-map) instead of a single
// mmap/unmap pair.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

package heap

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/unix"
)

var osPageSize = os.Getpagesize()

// osExtend is the heap-extension primitive. Go exposes no portable
// sbrk/program-break call, so "advancing the data segment end" is
// realized as an anonymous, private mmap of n bytes (n is always a
// multiple of 16). Memory is writable; contents are whatever the
// kernel zero-fills anonymous mappings with.
func osExtend(n int) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	if addr&uintptr(osPageSize-1) != 0 {
		panic("heap: mmap returned misaligned region")
	}
	return addr, nil
}

// osPageMap is the page-map primitive: a fresh, page-aligned,
// zero-filled, writable anonymous mapping.
func osPageMap(n int) (uintptr, error) {
	return osExtend(n)
}

// osUnmapRaw returns pages to the OS.
func osUnmapRaw(addr uintptr, n int) error {
	var b []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = n
	sh.Cap = n
	return unix.Munmap(b)
}

func osPageUnmap(addr uintptr, n int) error { return osUnmapRaw(addr, n) }
