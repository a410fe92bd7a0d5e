// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDDIMM lays out a minimal DDR5 SPD image: the capacity bitfields
// and the 11S barcode carrying PN, SN and CC.
func buildDDIMM(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 512)
	b[spdByteDRAMType] = spdDRAMTypeDDR5
	b[spdByteDensity] = 0x04  // 1 die per package, 16 GB per die
	b[spdByteWidth] = 0x20    // x8 DRAM
	b[spdByteRanks] = 0x00    // 2 ranks
	b[spdByteChannels] = 0x09 // two channels, 32-bit bus
	copy(b[ddimmBarcodeOffset:], ddimmBarcodeTag)
	copy(b[ddimmBarcodeOffset+3:], "78P4191")
	copy(b[ddimmBarcodeOffset+10:], "YH30UF123456")
	copy(b[ddimmBarcodeOffset+22:], "329A")
	return b
}

func TestParseDDIMM(t *testing.T) {
	d, err := ParseDDIMM(buildDDIMM(t))
	require.NoError(t, err)

	// 2 channels x 32-bit bus x 1 die x 16 GB x 2 ranks / (8 x 8 bits).
	require.Equal(t, uint64(32*1024), d.SizeKB)

	for kw, want := range map[string]string{
		"PN": "78P4191",
		"FN": "78P4191",
		"SN": "YH30UF123456",
		"CC": "329A",
	} {
		v, ok := d.Keywords.Value(kw)
		require.True(t, ok, kw)
		require.Equal(t, want, string(v), kw)
	}
}

// An SPD whose channel bitfield is out of range computes to capacity 0
// and fails the parse.
func TestParseDDIMMZeroCapacity(t *testing.T) {
	b := buildDDIMM(t)
	b[spdByteDensity] = 0x62
	b[spdByteWidth] = 0x00
	b[spdByteRanks] = 0x09
	b[spdByteChannels] = 0x08

	_, err := ParseDDIMM(b)
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseDDIMMRejectsDDR4(t *testing.T) {
	b := buildDDIMM(t)
	b[spdByteDRAMType] = spdDRAMTypeDDR4

	_, err := ParseDDIMM(b)
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseDDIMMShortBlob(t *testing.T) {
	_, err := ParseDDIMM(make([]byte, 64))
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseDDIMMMissingBarcode(t *testing.T) {
	b := buildDDIMM(t)
	copy(b[ddimmBarcodeOffset:], "XXX")

	_, err := ParseDDIMM(b)
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestDDR5DensityPerDie(t *testing.T) {
	for v, want := range map[byte]uint64{
		1: 4, 2: 8, 3: 12, 4: 16, 5: 24, 6: 32, 7: 48, 8: 64,
		0: 0, 9: 0,
	} {
		require.Equal(t, want, ddr5DensityPerDie(v), "value %d", v)
	}
}

func TestDDR5DiePerPackage(t *testing.T) {
	for v, want := range map[byte]uint64{
		0: 1, 1: 2, 2: 2, 3: 4, 4: 8, 5: 16,
	} {
		require.Equal(t, want, ddr5DiePerPackage(v), "value %d", v)
	}
}
