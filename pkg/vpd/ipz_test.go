// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/openpower/govpd/pkg/ecc"
)

const (
	fixtureImageSize  = 4096
	fixtureVTOCOffset = 64
	fixtureEccLen     = 8
)

type fixtureRecord struct {
	name     string
	keywords []Keyword
}

// buildRecordBody lays out one record: id, size, the RT keyword holding
// the record name, the keywords, and the PF terminator.
func buildRecordBody(name string, kws []Keyword) []byte {
	b := []byte{0x84, 0, 0}
	b = append(b, 'R', 'T', 4)
	b = append(b, name...)
	for _, kw := range kws {
		b = append(b, kw.Name...)
		if kw.Name[0] == '#' {
			b = append(b, byte(len(kw.Value)), byte(len(kw.Value)>>8))
		} else {
			b = append(b, byte(len(kw.Value)))
		}
		b = append(b, kw.Value...)
	}
	b = append(b, 'P', 'F', 0)
	b[1] = byte(len(b))
	b[2] = byte(len(b) >> 8)
	return b
}

// buildIPZImage assembles a full IPZ image: VHDR with its ECC, a VTOC
// whose PT keyword describes every record, and per-record ECC windows at
// the tail of the image.
func buildIPZImage(t *testing.T, recs []fixtureRecord) []byte {
	t.Helper()
	img := make([]byte, fixtureImageSize)

	// Record bodies are placed after the VTOC area; ECC windows grow
	// down from the tail.
	dataCursor := 512
	eccCursor := fixtureImageSize - (len(recs)+1)*fixtureEccLen

	var pt []byte
	for _, r := range recs {
		body := buildRecordBody(r.name, r.keywords)
		copy(img[dataCursor:], body)

		e, err := ecc.Create(img[dataCursor:dataCursor+len(body)], fixtureEccLen)
		require.NoError(t, err)
		copy(img[eccCursor:], e)

		entry := make([]byte, ptEntryLength)
		copy(entry, r.name)
		putLE16(entry[6:], dataCursor)
		putLE16(entry[8:], len(body))
		putLE16(entry[10:], eccCursor)
		putLE16(entry[12:], fixtureEccLen)
		pt = append(pt, entry...)

		dataCursor += (len(body) + 15) &^ 15
		eccCursor += fixtureEccLen
	}

	// VTOC record: RT keyword, PT keyword, PF terminator.
	vtoc := []byte{0x84, 0, 0}
	vtoc = append(vtoc, 'R', 'T', 4)
	vtoc = append(vtoc, "VTOC"...)
	vtoc = append(vtoc, 'P', 'T', byte(len(pt)))
	vtoc = append(vtoc, pt...)
	vtoc = append(vtoc, 'P', 'F', 0)
	vtoc[1] = byte(len(vtoc))
	vtoc[2] = byte(len(vtoc) >> 8)
	copy(img[fixtureVTOCOffset:], vtoc)

	vtocEccOffset := fixtureImageSize - fixtureEccLen
	e, err := ecc.Create(img[fixtureVTOCOffset:fixtureVTOCOffset+len(vtoc)], fixtureEccLen)
	require.NoError(t, err)
	copy(img[vtocEccOffset:], e)

	// VHDR: the record name at byte 17 and the VTOC entry at byte 35.
	img[vhdrDataOffset] = 0x84
	img[12], img[13] = vhdrDataLength, 0
	copy(img[14:], []byte{'R', 'T', 4})
	copy(img[vhdrNameOffset:], "VHDR")
	putLE16(img[vtocPtrOffset:], fixtureVTOCOffset)
	putLE16(img[vtocPtrOffset+2:], len(vtoc))
	putLE16(img[vtocPtrOffset+4:], vtocEccOffset)
	putLE16(img[vtocPtrOffset+6:], fixtureEccLen)

	e, err = ecc.Create(img[vhdrDataOffset:vhdrDataOffset+vhdrDataLength], vhdrEccLength)
	require.NoError(t, err)
	copy(img[vhdrEccOffset:], e)

	return img
}

func putLE16(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func testRecords() []fixtureRecord {
	return []fixtureRecord{
		{name: "VINI", keywords: []Keyword{
			{Name: "SN", Value: []byte("OLD123      ")},
			{Name: "PN", Value: []byte("ABC1234")},
			{Name: "CC", Value: []byte("2F4D")},
		}},
		{name: "VCEN", keywords: []Keyword{
			{Name: "FC", Value: []byte("F123456")},
			{Name: "SE", Value: []byte("XYZ00001")},
			{Name: "#D", Value: make([]byte, 300)},
		}},
	}
}

func TestParseIPZ(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	p := &IPZParser{Buf: img}
	m, err := p.Parse()
	require.NoError(t, err)
	require.Len(t, m.Records, 2)

	vini, ok := m.Record("VINI")
	require.True(t, ok)
	sn, ok := vini.Value("SN")
	require.True(t, ok)
	require.Equal(t, []byte("OLD123      "), sn)

	vcen, ok := m.Record("VCEN")
	require.True(t, ok)
	pound, ok := vcen.Value("#D")
	require.True(t, ok)
	require.Len(t, pound, 300)
}

// Parsed values and direct keyword reads must agree.
func TestParseMatchesReadKeyword(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	p := &IPZParser{Buf: img}
	m, err := p.Parse()
	require.NoError(t, err)

	for _, rec := range m.Records {
		for _, kw := range rec.Keywords {
			got, err := p.ReadKeyword(rec.Name, kw.Name)
			require.NoError(t, err)
			require.Equal(t, kw.Value, got)
		}
	}
}

func TestParseRejectsShortBlob(t *testing.T) {
	p := &IPZParser{Buf: make([]byte, 43)}
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseRejectsMissingVHDR(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	copy(img[vhdrNameOffset:], "XXXX")
	p := &IPZParser{Buf: img}
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseRejectsBrokenVHDREcc(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	// Two flipped bits are beyond correction.
	img[vhdrDataOffset+30] ^= 0x01
	img[vhdrDataOffset+31] ^= 0x80
	p := &IPZParser{Buf: img}
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrEcc)
}

func TestParseDuplicateKeywordFirstWins(t *testing.T) {
	img := buildIPZImage(t, []fixtureRecord{
		{name: "VINI", keywords: []Keyword{
			{Name: "SN", Value: []byte("FIRST       ")},
			{Name: "SN", Value: []byte("SECOND      ")},
		}},
	})
	p := &IPZParser{Buf: img}
	m, err := p.Parse()
	require.NoError(t, err)
	rec, _ := m.Record("VINI")
	sn, _ := rec.Value("SN")
	require.Equal(t, []byte("FIRST       "), sn)
}

func TestReadKeywordProtectedRecords(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	p := &IPZParser{Buf: img}
	for _, rec := range []string{"VHDR", "VTOC"} {
		_, err := p.ReadKeyword(rec, "PT")
		require.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestReadKeywordNotFound(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	p := &IPZParser{Buf: img}

	_, err := p.ReadKeyword("ZZZZ", "SN")
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = p.ReadKeyword("VINI", "ZZ")
	require.ErrorIs(t, err, ErrKeywordNotFound)
}

func TestRecordLocation(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	p := &IPZParser{Buf: img}
	loc, err := p.RecordLocation("VINI")
	require.NoError(t, err)
	require.Equal(t, uint32(512), loc.Data.Offset)
	require.NotZero(t, loc.Data.Length)
	require.NotZero(t, loc.ECC.Offset)
	require.Equal(t, uint32(fixtureEccLen), loc.ECC.Length)

	_, err = p.RecordLocation("ZZZZ")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

// A correctable record window is repaired and written back to the stream
// exactly once.
func TestParseWritesBackCorrectedWindow(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	pristine := clone(img)

	img[512+20] ^= 0x04 // single-bit damage inside the VINI record
	stream := bytesextra.NewReadWriteSeeker(img)

	p := &IPZParser{Buf: clone(img), Stream: stream, Base: 0}
	_, err := p.Parse()
	require.NoError(t, err)
	require.Equal(t, pristine, img, "corrected window not written back")
}

// refreshVTOCEcc recomputes the VTOC ECC after a test mutates the PT, so
// the mutation survives validation instead of being repaired.
func refreshVTOCEcc(t *testing.T, img []byte) {
	t.Helper()
	vtocOff := int(le16(img[vtocPtrOffset:]))
	vtocLen := int(le16(img[vtocPtrOffset+2:]))
	eccOff := int(le16(img[vtocPtrOffset+4:]))
	eccLen := int(le16(img[vtocPtrOffset+6:]))
	e, err := ecc.Create(img[vtocOff:vtocOff+vtocLen], eccLen)
	require.NoError(t, err)
	copy(img[eccOff:], e)
}

// ptEntryField returns the offset of field f within the first PT entry.
// The PT data starts after the VTOC record header, RT keyword and the PT
// keyword header.
func ptEntryField(f int) int {
	return fixtureVTOCOffset + recordKeywordSkip + keywordNameLength + 1 + f
}

func TestParseZeroPTEntryOffset(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	putLE16(img[ptEntryField(6):], 0)
	refreshVTOCEcc(t, img)

	p := &IPZParser{Buf: img}
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrMalformedData)
}

func TestParseZeroPTEntryEccLength(t *testing.T) {
	img := buildIPZImage(t, testRecords())
	putLE16(img[ptEntryField(12):], 0)
	refreshVTOCEcc(t, img)

	p := &IPZParser{Buf: img}
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrEcc)
}
