// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"fmt"

	pkgbytes "github.com/openpower/govpd/pkg/bytes"
)

// Tags of the flat keyword-VPD container, one byte each.
const (
	kwVPDStartTag        = 0x84 // large resource type
	kwVPDPairStartTag    = 0x90 // vendor defined pair start
	kwVPDAltPairStartTag = 0x91 // acceptable variant of the pair start
	kwVPDPairEndTag      = 0x78 // small resource type end
	kwVPDEndTag          = 0x79 // end of the whole container
)

// kwSlot is one keyword's value window within a keyword-VPD blob.
type kwSlot struct {
	name  string
	value pkgbytes.Range
}

// kwLayout is the byte layout of a keyword-VPD blob: the window the
// checksum covers, the offset of the stored checksum byte, and the value
// slot of every keyword.
type kwLayout struct {
	sumStart int // offset of the pair-start tag, inclusive
	sumEnd   int // offset of the pair-end tag, exclusive end of the sum
	checksum int // offset of the stored checksum byte
	slots    []kwSlot
}

func (l *kwLayout) slot(keyword string) (pkgbytes.Range, bool) {
	for _, s := range l.slots {
		if s.name == keyword {
			return s.value, true
		}
	}
	return pkgbytes.Range{}, false
}

// sum accumulates the bytes the checksum covers. The stored checksum is
// the two's complement of this sum.
func (l *kwLayout) sum(blob []byte) byte {
	var s byte
	for _, b := range blob[l.sumStart:l.sumEnd] {
		s += b
	}
	return s
}

// walkKeywordVPD decodes the container structure without interpreting the
// values. Both the parser and the editor build on this walk.
func walkKeywordVPD(blob []byte) (*kwLayout, error) {
	c := cursor{buf: blob}

	tag, err := c.byte1()
	if err != nil {
		return nil, err
	}
	if tag != kwVPDStartTag {
		return nil, fmt.Errorf("%w: invalid keyword VPD start tag %#02x", ErrMalformedData, tag)
	}
	hdrSize, err := c.u16()
	if err != nil {
		return nil, err
	}
	if err := c.skip(int(hdrSize)); err != nil {
		return nil, err
	}

	layout := &kwLayout{sumStart: c.pos}
	tag, err = c.byte1()
	if err != nil {
		return nil, err
	}
	if tag != kwVPDPairStartTag && tag != kwVPDAltPairStartTag {
		return nil, fmt.Errorf("%w: invalid keyword pair start tag %#02x", ErrMalformedData, tag)
	}
	total, err := c.u16()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: zero keyword payload size", ErrMalformedData)
	}

	remaining := int(total)
	for remaining > 0 {
		name, err := c.str(keywordNameLength)
		if err != nil {
			return nil, err
		}
		length, err := c.byte1()
		if err != nil {
			return nil, err
		}
		slot := pkgbytes.Range{Offset: uint32(c.pos), Length: uint32(length)}
		if err := c.skip(int(length)); err != nil {
			return nil, err
		}
		layout.slots = append(layout.slots, kwSlot{name: name, value: slot})
		remaining -= keywordNameLength + 1 + int(length)
	}

	layout.sumEnd = c.pos
	tag, err = c.byte1()
	if err != nil {
		return nil, err
	}
	if tag != kwVPDPairEndTag {
		return nil, fmt.Errorf("%w: invalid small resource end tag %#02x", ErrMalformedData, tag)
	}
	layout.checksum = c.pos
	if err := c.skip(1 + 2); err != nil { // checksum byte and 2 reserved bytes
		return nil, err
	}
	tag, err = c.byte1()
	if err != nil {
		return nil, err
	}
	if tag != kwVPDEndTag {
		return nil, fmt.Errorf("%w: invalid keyword VPD end tag %#02x", ErrMalformedData, tag)
	}
	return layout, nil
}

// ParseKeywordVPD decodes a flat keyword-VPD blob into a KeywordMap. The
// checksum over the pair section must hold.
func ParseKeywordVPD(blob []byte) (*KeywordMap, error) {
	layout, err := walkKeywordVPD(blob)
	if err != nil {
		return nil, err
	}
	if layout.sum(blob)+blob[layout.checksum] != 0 {
		return nil, fmt.Errorf("%w: keyword VPD checksum mismatch", ErrMalformedData)
	}
	m := &KeywordMap{}
	for _, s := range layout.slots {
		m.add(s.name, clone(s.value.Slice(blob)))
	}
	return m, nil
}

// ReadKeywordVPD returns the value of one keyword from a flat container.
func ReadKeywordVPD(blob []byte, keyword string) ([]byte, error) {
	m, err := ParseKeywordVPD(blob)
	if err != nil {
		return nil, err
	}
	v, ok := m.Value(keyword)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeywordNotFound, keyword)
	}
	return v, nil
}
