// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import "strings"

// Build-date values carry a 3-byte prefix before the YYYYMMDDHHMM digits.
const dateValuePrefix = 3

// EncodeKeyword renders a keyword value for publication using the encoding
// declared in the system config. Recognized encodings are "MAC"
// (colon-separated hex bytes) and "DATE" (YYYY-MM-DD HH:MM); anything else
// passes the value through.
func EncodeKeyword(value []byte, encoding string) string {
	switch encoding {
	case "MAC":
		return encodeMAC(value)
	case "DATE":
		return encodeDate(value)
	default:
		return string(value)
	}
}

func encodeMAC(value []byte) string {
	const hexDigits = "0123456789abcdef"
	var sb strings.Builder
	for i, b := range value {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0x0F])
	}
	return sb.String()
}

func encodeDate(value []byte) string {
	// <year>-<month>-<day> <hour>:<min>
	if len(value) < dateValuePrefix+12 {
		return string(value)
	}
	d := string(value[dateValuePrefix : dateValuePrefix+12])
	return d[0:4] + "-" + d[4:6] + "-" + d[6:8] + " " + d[8:10] + ":" + d[10:12]
}
