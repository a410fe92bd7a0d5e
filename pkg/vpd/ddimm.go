// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"fmt"

	"github.com/openpower/govpd/pkg/log"
)

// SPD bytes and fields consumed by the DDIMM decoder.
const (
	spdByteDRAMType = 2
	spdByteDensity  = 4
	spdByteWidth    = 6
	spdByteRanks    = 234
	spdByteChannels = 235

	spdDRAMTypeDDR5       = 0x12
	spdDRAMTypeDDR4       = 0x0C
	spdDRAMTypeNibbleMask = 0x0F

	// The 11S barcode holds the identity fields: part number, serial
	// number and CCIN, in that order, after a 3-byte format tag.
	ddimmBarcodeOffset = 416
	ddimmBarcodeTag    = "11S"
	ddimmPartNumberLen = 7
	ddimmSerialLen     = 12
	ddimmCCINLen       = 4
)

// DDIMM is the decoded view of a DDR5 DDIMM SPD image.
type DDIMM struct {
	// SizeKB is the module capacity in kilobytes.
	SizeKB uint64
	// Keywords holds PN, FN, SN and CC extracted from the 11S barcode.
	Keywords KeywordMap
}

// ParseDDIMM decodes a DDR5 DDIMM SPD image. DDR4 modules are rejected; a
// capacity that evaluates to zero fails the parse.
func ParseDDIMM(blob []byte) (*DDIMM, error) {
	if len(blob) <= spdByteChannels {
		return nil, fmt.Errorf("%w: SPD image shorter than %d bytes", ErrMalformedData, spdByteChannels+1)
	}
	size := ddimmSizeKB(blob)
	if size == 0 {
		return nil, fmt.Errorf("%w: computed DDIMM capacity is 0", ErrMalformedData)
	}

	c := cursor{buf: blob}
	if err := c.seek(ddimmBarcodeOffset); err != nil {
		return nil, err
	}
	tag, err := c.str(len(ddimmBarcodeTag))
	if err != nil {
		return nil, err
	}
	if tag != ddimmBarcodeTag {
		return nil, fmt.Errorf("%w: 11S barcode tag not found at byte %d", ErrMalformedData, ddimmBarcodeOffset)
	}
	pn, err := c.bytes(ddimmPartNumberLen)
	if err != nil {
		return nil, err
	}
	sn, err := c.bytes(ddimmSerialLen)
	if err != nil {
		return nil, err
	}
	cc, err := c.bytes(ddimmCCINLen)
	if err != nil {
		return nil, err
	}

	d := &DDIMM{SizeKB: size}
	d.Keywords.add("PN", clone(pn))
	d.Keywords.add("FN", clone(pn))
	d.Keywords.add("SN", clone(sn))
	d.Keywords.add("CC", clone(cc))
	return d, nil
}

// ddimmSizeKB computes the module capacity in kilobytes, or 0 when any
// bitfield is outside its validity range.
func ddimmSizeKB(b []byte) uint64 {
	if b[spdByteDRAMType] != spdDRAMTypeDDR5 {
		log.Warnf("DDIMM is not DDR5, SPD byte 2 is %#02x", b[spdByteDRAMType])
		return 0
	}
	return ddr5SizeKB(b)
}

func ddr5SizeKB(b []byte) uint64 {
	byte235 := b[spdByteChannels]
	if !fieldInRange("channels per DIMM", byte235&0x03, 0, 1, 3) ||
		!fieldInRange("channels per DIMM", byte235&0x38, 3, 1, 3) {
		return 0
	}
	channels := uint64(0)
	if byte235&0x03 != 0 {
		channels++
	}
	if byte235&0x38 != 0 {
		channels++
	}

	if !fieldInRange("bus width per channel", byte235&0x07, 0, 1, 3) {
		return 0
	}
	busWidth := uint64(32)

	byte4 := b[spdByteDensity]
	if !fieldInRange("die per package", byte4&0xE0, 5, 0, 5) {
		return 0
	}
	diePerPackage := ddr5DiePerPackage((byte4 & 0xE0) >> 5)

	if !fieldInRange("density per die", byte4&0x1F, 0, 1, 8) {
		return 0
	}
	densityGB := ddr5DensityPerDie(byte4 & 0x1F)
	if densityGB == 0 {
		return 0
	}

	byte234 := b[spdByteRanks]
	ranks := uint64((byte234&0x38)>>3) + uint64(byte234&0x07) + 2

	byte6 := b[spdByteWidth]
	if !fieldInRange("DRAM width", byte6&0xE0, 5, 0, 3) {
		return 0
	}
	dramWidth := uint64(4) << ((byte6 & 0xE0) >> 5)

	sizeMB := channels * busWidth * diePerPackage * densityGB * ranks / (8 * dramWidth)
	return 1024 * sizeMB
}

// ddr5DensityPerDie maps the density bitfield to gigabytes per die.
func ddr5DensityPerDie(v byte) uint64 {
	if v >= 1 && v <= 4 {
		return 4 * uint64(v)
	}
	switch v {
	case 5:
		return 24
	case 6:
		return 32
	case 7:
		return 48
	case 8:
		return 64
	default:
		log.Warnf("undefined SDRAM density per die value %d", v)
		return 0
	}
}

// ddr5DiePerPackage maps the die-per-package bitfield to a die count.
func ddr5DiePerPackage(v byte) uint64 {
	if v < 2 {
		return uint64(v) + 1
	}
	return 1 << (v - 1)
}

// fieldInRange reports whether a masked SPD bitfield, shifted down, falls
// inside its validity range.
func fieldInRange(what string, masked byte, shift, min, max byte) bool {
	v := masked >> shift
	if v < min || v > max {
		log.Warnf("capacity calculation failed for %s: value %d outside [%d..%d]", what, v, min, max)
		return false
	}
	return true
}
