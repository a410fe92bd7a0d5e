// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

// Identify selects the concrete parser for a VPD blob from its leading
// bytes. It is total: every blob maps to exactly one Kind, with
// KindUnknown standing for malformed data.
func Identify(blob []byte) Kind {
	if len(blob) >= vhdrNameOffset+recordNameLength &&
		string(blob[vhdrNameOffset:vhdrNameOffset+recordNameLength]) == vhdrRecordName {
		return KindIPZ
	}
	if len(blob) > 0 && blob[0] == kwVPDStartTag {
		return KindKeywordVPD
	}
	if len(blob) > spdByteDRAMType && blob[spdByteDRAMType]&spdDRAMTypeNibbleMask == spdDRAMTypeDDR5&spdDRAMTypeNibbleMask {
		return KindDDIMM
	}
	return KindUnknown
}
