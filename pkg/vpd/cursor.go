// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import "fmt"

// cursor walks a byte buffer. Every advance is bounds-checked through
// need; this is the single chokepoint where ErrMalformedData originates
// for truncated blobs.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return fmt.Errorf("%w: truncated at byte %d (need %d, have %d)",
			ErrMalformedData, c.pos, n, len(c.buf)-c.pos)
	}
	return nil
}

func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return fmt.Errorf("%w: offset %d outside blob of %d bytes",
			ErrMalformedData, pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) str(n int) (string, error) {
	b, err := c.bytes(n)
	return string(b), err
}

func (c *cursor) byte1() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// u16 reads a 2-byte little-endian value. All multi-byte lengths and
// offsets in IPZ VPD are little-endian unsigned.
func (c *cursor) u16() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return le16(b), nil
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
