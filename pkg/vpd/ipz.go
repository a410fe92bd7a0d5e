// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"fmt"
	"io"

	pkgbytes "github.com/openpower/govpd/pkg/bytes"
	"github.com/openpower/govpd/pkg/ecc"
	"github.com/openpower/govpd/pkg/log"
)

// Offsets and lengths of the fixed entries of an IPZ image.
const (
	vhdrEccOffset  = 0
	vhdrEccLength  = 11
	vhdrDataOffset = 11
	vhdrDataLength = 44
	vhdrNameOffset = 17
	// The VHDR carries the VTOC's PT-style entry at fixed offsets:
	// record offset, record length, ECC offset, ECC length, 2 bytes each.
	vtocPtrOffset = 35

	minImageLength    = 44
	recordNameLength  = 4
	keywordNameLength = 2
	ptEntryLength     = 14

	// A record starts with id (1), size (2) and the RT keyword header
	// (name 2 + length 1); the record name follows, then the keywords.
	recordNameSkip    = 6
	recordKeywordSkip = recordNameSkip + recordNameLength

	vhdrRecordName = "VHDR"
	vtocRecordName = "VTOC"
	ptKeywordName  = "PT"
	lastKeyword    = "PF"
	poundPrefix    = '#'
)

// RecordLocation describes where a record's data and ECC windows live
// within an IPZ image, as declared by the VTOC PT keyword.
type RecordLocation struct {
	Name string
	Data pkgbytes.Range
	ECC  pkgbytes.Range
}

// IPZParser decodes a record-oriented IPZ image. Buf holds the image
// bytes. Stream, when non-nil, receives write-backs of ECC-corrected
// windows at Base plus the window offset; write-back failures are logged
// and suppressed, the in-memory copy stays corrected.
type IPZParser struct {
	Buf    []byte
	Stream io.WriteSeeker
	Base   int64
}

// Parse decodes the whole image into a RecordMap. Records whose ECC does
// not validate are reported and kept; a damaged VHDR or VTOC fails the
// parse.
func (p *IPZParser) Parse() (*RecordMap, error) {
	if err := p.checkHeader(); err != nil {
		return nil, err
	}
	locs, err := p.tocEntries(false)
	if err != nil {
		return nil, err
	}
	m := &RecordMap{}
	for _, loc := range locs {
		rec, err := p.parseRecord(loc)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", loc.Name, err)
		}
		m.add(rec)
	}
	return m, nil
}

// ReadKeyword returns the value of one keyword. The VHDR and VTOC records
// are protected and cannot be read through this API.
func (p *IPZParser) ReadKeyword(record, keyword string) ([]byte, error) {
	if record == vhdrRecordName || record == vtocRecordName {
		return nil, fmt.Errorf("%w: record %q is protected", ErrInvalidArgument, record)
	}
	m, err := p.Parse()
	if err != nil {
		return nil, err
	}
	rec, ok := m.Record(record)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, record)
	}
	v, ok := rec.Value(keyword)
	if !ok {
		return nil, fmt.Errorf("%w: %q in record %q", ErrKeywordNotFound, keyword, record)
	}
	return v, nil
}

// RecordLocation returns the data and ECC windows of a record by scanning
// the VTOC PT keyword. The records themselves are not reparsed.
func (p *IPZParser) RecordLocation(record string) (RecordLocation, error) {
	if err := p.checkHeader(); err != nil {
		return RecordLocation{}, err
	}
	locs, err := p.tocEntries(false)
	if err != nil {
		return RecordLocation{}, err
	}
	for _, loc := range locs {
		if loc.Name == record {
			return loc, nil
		}
	}
	return RecordLocation{}, fmt.Errorf("%w: %q", ErrRecordNotFound, record)
}

// checkHeader validates the VHDR record name and its ECC.
func (p *IPZParser) checkHeader() error {
	if len(p.Buf) < minImageLength {
		return fmt.Errorf("%w: IPZ image shorter than %d bytes", ErrMalformedData, minImageLength)
	}
	name := string(p.Buf[vhdrNameOffset : vhdrNameOffset+recordNameLength])
	if name != vhdrRecordName {
		return fmt.Errorf("%w: VHDR record not found", ErrMalformedData)
	}
	return p.checkWindow(vhdrRecordName,
		pkgbytes.Range{Offset: vhdrDataOffset, Length: vhdrDataLength},
		pkgbytes.Range{Offset: vhdrEccOffset, Length: vhdrEccLength})
}

// vtocLocation reads the VTOC windows from the fixed VHDR fields.
func (p *IPZParser) vtocLocation() (RecordLocation, error) {
	c := cursor{buf: p.Buf}
	if err := c.seek(vtocPtrOffset); err != nil {
		return RecordLocation{}, err
	}
	var v [4]uint16
	for i := range v {
		val, err := c.u16()
		if err != nil {
			return RecordLocation{}, err
		}
		v[i] = val
	}
	return RecordLocation{
		Name: vtocRecordName,
		Data: pkgbytes.Range{Offset: uint32(v[0]), Length: uint32(v[1])},
		ECC:  pkgbytes.Range{Offset: uint32(v[2]), Length: uint32(v[3])},
	}, nil
}

// tocEntries validates the VTOC and walks its PT keyword. In strict mode a
// record whose ECC fails aborts the walk; otherwise it is reported and the
// record is kept.
func (p *IPZParser) tocEntries(strict bool) ([]RecordLocation, error) {
	vtoc, err := p.vtocLocation()
	if err != nil {
		return nil, err
	}

	c := cursor{buf: p.Buf}
	if err := c.seek(int(vtoc.Data.Offset) + recordNameSkip); err != nil {
		return nil, err
	}
	name, err := c.str(recordNameLength)
	if err != nil {
		return nil, err
	}
	if name != vtocRecordName {
		return nil, fmt.Errorf("%w: VTOC record not found at %#x", ErrMalformedData, vtoc.Data.Offset)
	}
	if err := p.checkWindow(vtocRecordName, vtoc.Data, vtoc.ECC); err != nil {
		return nil, err
	}

	// The first keyword of the VTOC is PT, the table of records.
	kwName, err := c.str(keywordNameLength)
	if err != nil {
		return nil, err
	}
	if kwName != ptKeywordName {
		return nil, fmt.Errorf("%w: PT keyword not found in VTOC", ErrMalformedData)
	}
	ptLen, err := c.byte1()
	if err != nil {
		return nil, err
	}
	pt, err := c.bytes(int(ptLen))
	if err != nil {
		return nil, err
	}
	if len(pt)%ptEntryLength != 0 {
		return nil, fmt.Errorf("%w: PT length %d is not a multiple of %d", ErrMalformedData, len(pt), ptEntryLength)
	}

	var locs []RecordLocation
	for i := 0; i < len(pt); i += ptEntryLength {
		e := pt[i : i+ptEntryLength]
		recName := string(e[0:recordNameLength])
		// 2 bytes of record type, then four LE16 fields.
		off := le16(e[6:])
		length := le16(e[8:])
		eccOff := le16(e[10:])
		eccLen := le16(e[12:])

		if off == 0 || length == 0 {
			return nil, fmt.Errorf("%w: record %q has zero offset or length", ErrMalformedData, recName)
		}
		if eccOff == 0 || eccLen == 0 {
			return nil, fmt.Errorf("%w: record %q has zero ECC offset or length", ErrEcc, recName)
		}

		loc := RecordLocation{
			Name: recName,
			Data: pkgbytes.Range{Offset: uint32(off), Length: uint32(length)},
			ECC:  pkgbytes.Range{Offset: uint32(eccOff), Length: uint32(eccLen)},
		}
		if err := p.checkWindow(recName, loc.Data, loc.ECC); err != nil {
			if strict {
				return nil, err
			}
			log.Warnf("record %q: %v", recName, err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// parseRecord walks the keywords of one record.
func (p *IPZParser) parseRecord(loc RecordLocation) (Record, error) {
	c := cursor{buf: p.Buf}
	if err := c.seek(int(loc.Data.Offset) + recordNameSkip); err != nil {
		return Record{}, err
	}
	name, err := c.str(recordNameLength)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Name: name}
	for {
		kwName, err := c.str(keywordNameLength)
		if err != nil {
			return Record{}, err
		}
		if kwName == lastKeyword {
			return rec, nil
		}
		length, err := keywordLength(&c, kwName)
		if err != nil {
			return Record{}, err
		}
		value, err := c.bytes(length)
		if err != nil {
			return Record{}, err
		}
		rec.add(kwName, clone(value))
	}
}

// keywordSlot scans one record for a keyword and returns the window of its
// value bytes. The slot length is the keyword's physical length, which is
// immutable.
func (p *IPZParser) keywordSlot(loc RecordLocation, keyword string) (pkgbytes.Range, error) {
	c := cursor{buf: p.Buf}
	if err := c.seek(int(loc.Data.Offset) + recordKeywordSkip); err != nil {
		return pkgbytes.Range{}, err
	}
	end := int(loc.Data.End())
	for c.pos < end {
		kwName, err := c.str(keywordNameLength)
		if err != nil {
			return pkgbytes.Range{}, err
		}
		if kwName == lastKeyword {
			break
		}
		length, err := keywordLength(&c, kwName)
		if err != nil {
			return pkgbytes.Range{}, err
		}
		if kwName == keyword {
			slot := pkgbytes.Range{Offset: uint32(c.pos), Length: uint32(length)}
			if !slot.In(len(p.Buf)) {
				return pkgbytes.Range{}, fmt.Errorf("%w: keyword %q overruns the image", ErrMalformedData, keyword)
			}
			return slot, nil
		}
		if err := c.skip(length); err != nil {
			return pkgbytes.Range{}, err
		}
	}
	return pkgbytes.Range{}, fmt.Errorf("%w: %q in record %q", ErrKeywordNotFound, keyword, loc.Name)
}

// keywordLength reads the length field that follows a keyword name. Pound
// keywords ('#'-prefixed) carry a 2-byte little-endian length; all others
// a single byte.
func keywordLength(c *cursor, name string) (int, error) {
	if name[0] == poundPrefix {
		v, err := c.u16()
		return int(v), err
	}
	v, err := c.byte1()
	return int(v), err
}

// checkWindow validates one data/ECC window pair. Corrected windows are
// flushed to the stream exactly once per call.
func (p *IPZParser) checkWindow(name string, data, eccWin pkgbytes.Range) error {
	if !data.In(len(p.Buf)) || !eccWin.In(len(p.Buf)) {
		return fmt.Errorf("%w: record %q windows outside image (data %v, ecc %v)",
			ErrMalformedData, name, data, eccWin)
	}
	if data.Intersect(eccWin) {
		return fmt.Errorf("%w: record %q data and ECC windows overlap (data %v, ecc %v)",
			ErrMalformedData, name, data, eccWin)
	}
	switch ecc.Check(data.Slice(p.Buf), eccWin.Slice(p.Buf)) {
	case ecc.VerdictOK:
		return nil
	case ecc.VerdictCorrectable:
		p.flush(name, data)
		return nil
	default:
		return fmt.Errorf("%w: record %q", ErrEcc, name)
	}
}

// flush writes an ECC-corrected window back to the stream. Failures are
// logged and suppressed; the read still serves the corrected bytes.
func (p *IPZParser) flush(name string, r pkgbytes.Range) {
	if p.Stream == nil {
		return
	}
	if _, err := p.Stream.Seek(p.Base+int64(r.Offset), io.SeekStart); err != nil {
		log.Warnf("record %q: write-back seek failed: %v", name, err)
		return
	}
	if _, err := p.Stream.Write(r.Slice(p.Buf)); err != nil {
		log.Warnf("record %q: write-back failed: %v", name, err)
	}
}
