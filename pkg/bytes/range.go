// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytes provides byte-window helpers shared by the VPD parsers
// and the EEPROM editor.
package bytes

import "fmt"

// Range describes a window of bytes within a VPD image.
type Range struct {
	Offset uint32
	Length uint32
}

func (r Range) String() string {
	return fmt.Sprintf(`{"Offset":"0x%x", "Length":"0x%x"}`, r.Offset, r.Length)
}

// End returns the exclusive end offset of the window.
func (r Range) End() uint32 {
	return r.Offset + r.Length
}

// Intersect returns true if ranges "r" and "cmp" have at least
// one byte with the same offset.
func (r Range) Intersect(cmp Range) bool {
	if r.Length == 0 || cmp.Length == 0 {
		return false
	}
	if r.End() <= cmp.Offset {
		return false
	}
	if r.Offset >= cmp.End() {
		return false
	}
	return true
}

// In returns true if the whole window lies inside a buffer of size bufLen.
func (r Range) In(bufLen int) bool {
	return int(r.Offset) <= bufLen && int(r.End()) <= bufLen && r.End() >= r.Offset
}

// Slice returns the bytes of buf referenced by the window. The window must
// satisfy In(len(buf)).
func (r Range) Slice(buf []byte) []byte {
	return buf[r.Offset:r.End()]
}
