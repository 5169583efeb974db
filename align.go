// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// Only roundup is carried over from that source; mallocAlign,
// maxRequestSize, align16, effectiveSize, and footprint below are new
// for this package.

package heap

import "math"

// mallocAlign is the alignment, in bytes, guaranteed for every pointer
// handed back by Allocate and for every block header's address.
const mallocAlign = 16

// maxRequestSize is the largest size argument effectiveSize can round
// up to a mallocAlign boundary without the addition wrapping past
// math.MaxInt. Callers must reject anything larger before rounding it.
const maxRequestSize = math.MaxInt - (mallocAlign - 1)

// roundup returns the smallest multiple of m that is >= n. m must be a
// power of two.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }

// align16 rounds n up to the next multiple of 16.
func align16(n int) int { return roundup(n, mallocAlign) }

// effectiveSize computes the effective payload size for a request of s
// bytes: the smallest 16-byte-aligned value that is both >= s and >=
// the 16-byte minimum payload. s must already be <= maxRequestSize;
// callers check that before calling, since effectiveSize has no error
// return and a value above the limit would silently wrap instead of
// rounding up.
func effectiveSize(s int) int {
	e := align16(s)
	if e < mallocAlign {
		e = mallocAlign
	}
	return e
}

// footprint returns the total bytes a block of effective payload size e
// occupies on the heap, header included.
func footprint(e int) int { return headerSize + e }
