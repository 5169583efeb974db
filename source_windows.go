// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2017 The Memory Authors.
// Further modifications for this package: rewritten against
// golang.org/x/sys/windows' VirtualAlloc/VirtualFree instead of
// CreateFileMapping/MapViewOfFile — VirtualAlloc is the direct Windows
// analogue of POSIX anonymous mmap and needs no backing file handle.

package heap

import (
	"os"

	"golang.org/x/sys/windows"
)

var osPageSize = func() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return int(info.PageSize)
}()

// osExtend realizes the heap-extension primitive via
// VirtualAlloc(MEM_COMMIT|MEM_RESERVE). As on unix, Go has no portable
// program-break call, so this is the chosen realization.
func osExtend(n int) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, os.NewSyscallError("VirtualAlloc", err)
	}
	if addr&uintptr(osPageSize-1) != 0 {
		panic("heap: VirtualAlloc returned misaligned region")
	}
	return addr, nil
}

// osPageMap is the page-map primitive.
func osPageMap(n int) (uintptr, error) { return osExtend(n) }

// osPageUnmap returns pages to the OS via VirtualFree(MEM_RELEASE).
func osPageUnmap(addr uintptr, n int) error {
	err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	if err != nil {
		return os.NewSyscallError("VirtualFree", err)
	}
	return nil
}
