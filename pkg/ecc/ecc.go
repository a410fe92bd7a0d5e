// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ecc implements the error-correcting code protecting VPD record
// windows. The code is a single-error-correcting, double-error-detecting
// Hamming code over the bits of the data window, with the parity bits
// packed into the leading bytes of the ECC region. Callers must treat the
// ECC bytes as opaque.
package ecc

import (
	"fmt"
	"math/bits"
)

// Verdict is the outcome of a Check call.
type Verdict int

const (
	// VerdictOK means the data window matches its ECC.
	VerdictOK Verdict = iota
	// VerdictCorrectable means a single-bit error was repaired in the
	// data window; the caller must write the window back to persistent
	// storage.
	VerdictCorrectable
	// VerdictFail means the window is damaged beyond repair.
	VerdictFail
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "OK"
	case VerdictCorrectable:
		return "CORRECTABLE"
	default:
		return "FAIL"
	}
}

// parityCount returns the number of Hamming parity bits needed to protect
// m data bits.
func parityCount(m int) int {
	r := 0
	for (1 << r) < m+r+1 {
		r++
	}
	return r
}

func dataBit(data []byte, i int) int {
	return int(data[i>>3]>>(uint(i)&7)) & 1
}

func flipDataBit(data []byte, i int) {
	data[i>>3] ^= 1 << (uint(i) & 7)
}

func eccBit(ecc []byte, i int) int {
	return int(ecc[i>>3]>>(uint(i)&7)) & 1
}

// dataIndex maps a non-parity codeword position (1-based) to the 0-based
// index of the data bit stored there.
func dataIndex(pos int) int {
	return pos - 1 - bits.Len(uint(pos))
}

// Create computes fresh ECC bytes over data into a buffer of eccLen bytes.
func Create(data []byte, eccLen int) ([]byte, error) {
	if len(data) == 0 || eccLen == 0 {
		return nil, fmt.Errorf("empty data or ECC window")
	}
	m := len(data) * 8
	r := parityCount(m)
	if eccLen*8 < r+1 {
		return nil, fmt.Errorf("ECC window too small: need %d bits, have %d", r+1, eccLen*8)
	}

	n := m + r
	parity := make([]int, r)
	overall := 0
	di := 0
	for pos := 1; pos <= n; pos++ {
		if pos&(pos-1) == 0 {
			// Parity position.
			continue
		}
		if dataBit(data, di) == 1 {
			for j := 0; j < r; j++ {
				if pos&(1<<uint(j)) != 0 {
					parity[j] ^= 1
				}
			}
			overall ^= 1
		}
		di++
	}

	ecc := make([]byte, eccLen)
	for j := 0; j < r; j++ {
		if parity[j] == 1 {
			ecc[j>>3] |= 1 << (uint(j) & 7)
			overall ^= 1
		}
	}
	if overall == 1 {
		ecc[r>>3] |= 1 << (uint(r) & 7)
	}
	return ecc, nil
}

// Check validates a data window against its ECC. A single-bit error in the
// data window is repaired in place and reported as VerdictCorrectable.
// Single-bit errors confined to the ECC bytes leave the data intact and
// report VerdictOK, since no write-back of the data window is needed.
func Check(data, ecc []byte) Verdict {
	if len(data) == 0 || len(ecc) == 0 {
		return VerdictFail
	}
	m := len(data) * 8
	r := parityCount(m)
	if len(ecc)*8 < r+1 {
		return VerdictFail
	}

	n := m + r
	syndrome := 0
	overall := 0
	di := 0
	for pos := 1; pos <= n; pos++ {
		if pos&(pos-1) == 0 {
			continue
		}
		if dataBit(data, di) == 1 {
			syndrome ^= pos
			overall ^= 1
		}
		di++
	}
	for j := 0; j < r; j++ {
		if eccBit(ecc, j) == 1 {
			syndrome ^= 1 << uint(j)
			overall ^= 1
		}
	}
	overall ^= eccBit(ecc, r)

	// Trailing ECC bits beyond the code are defined to be zero; damage
	// there is outside the protected window.
	for i := r + 1; i < len(ecc)*8; i++ {
		if eccBit(ecc, i) != 0 {
			return VerdictFail
		}
	}

	switch {
	case syndrome == 0 && overall == 0:
		return VerdictOK
	case syndrome == 0 && overall == 1:
		// The overall parity bit itself flipped.
		return VerdictOK
	case overall == 1:
		if syndrome > n {
			return VerdictFail
		}
		if syndrome&(syndrome-1) == 0 {
			// A stored parity bit flipped; data is intact.
			return VerdictOK
		}
		flipDataBit(data, dataIndex(syndrome))
		return VerdictCorrectable
	default:
		// Non-zero syndrome with matching overall parity: double error.
		return VerdictFail
	}
}
