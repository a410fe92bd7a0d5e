// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vpd contains the data types for the two OpenPOWER VPD wire
// formats (record-oriented IPZ VPD and flat keyword VPD), a decoder for
// DDR5 DDIMM SPD images, and Parse/Edit entry points for reading and
// updating keywords on an EEPROM image.
package vpd

import (
	"errors"
	"fmt"
	"io"
)

// The error taxonomy shared by the parsers, the editors and the service
// layer. Errors are wrapped with fmt.Errorf("...: %w", ...) so callers can
// classify with errors.Is.
var (
	ErrMalformedData      = errors.New("malformed VPD data")
	ErrEcc                = errors.New("ECC failure")
	ErrRecordNotFound     = errors.New("record not found")
	ErrKeywordNotFound    = errors.New("keyword not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrIo                 = errors.New("I/O failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timed out")
)

// Kind identifies the concrete VPD format of a blob.
type Kind int

const (
	// KindUnknown is returned for blobs no parser accepts.
	KindUnknown Kind = iota
	// KindIPZ is the record-oriented container with VHDR/VTOC tables.
	KindIPZ
	// KindKeywordVPD is the flat tag-length container.
	KindKeywordVPD
	// KindDDIMM is a DDR5 DDIMM SPD image.
	KindDDIMM
)

func (k Kind) String() string {
	switch k {
	case KindIPZ:
		return "IPZ"
	case KindKeywordVPD:
		return "KeywordVPD"
	case KindDDIMM:
		return "DDIMM"
	default:
		return "Unknown"
	}
}

// MaxImageSize caps the VPD slice read from an EEPROM. Reads are
// synchronous and block the caller, so the slice is kept small.
const MaxImageSize = 65504

// Keyword is one name/value pair within a record or a flat container.
type Keyword struct {
	Name  string
	Value []byte
}

// Record is a named, ordered collection of keywords. Duplicate names can
// occur on the wire; the first occurrence wins.
type Record struct {
	Name     string
	Keywords []Keyword
}

// Value returns the value of the first keyword with the given name.
func (r *Record) Value(name string) ([]byte, bool) {
	for i := range r.Keywords {
		if r.Keywords[i].Name == name {
			return r.Keywords[i].Value, true
		}
	}
	return nil, false
}

func (r *Record) add(name string, value []byte) {
	if _, ok := r.Value(name); ok {
		return
	}
	r.Keywords = append(r.Keywords, Keyword{Name: name, Value: value})
}

// RecordMap is the parsed view of an IPZ container. Records keep their
// on-wire order for display; names are unique.
type RecordMap struct {
	Records []Record
}

// Record returns the record with the given name.
func (m *RecordMap) Record(name string) (*Record, bool) {
	for i := range m.Records {
		if m.Records[i].Name == name {
			return &m.Records[i], true
		}
	}
	return nil, false
}

func (m *RecordMap) add(rec Record) {
	if _, ok := m.Record(rec.Name); ok {
		return
	}
	m.Records = append(m.Records, rec)
}

// KeywordMap is the parsed view of a flat keyword-VPD container.
type KeywordMap struct {
	Keywords []Keyword
}

// Value returns the value of the first keyword with the given name.
func (m *KeywordMap) Value(name string) ([]byte, bool) {
	for i := range m.Keywords {
		if m.Keywords[i].Name == name {
			return m.Keywords[i].Value, true
		}
	}
	return nil, false
}

func (m *KeywordMap) add(name string, value []byte) {
	if _, ok := m.Value(name); ok {
		return
	}
	m.Keywords = append(m.Keywords, Keyword{Name: name, Value: value})
}

// ReadImage reads the VPD slice of a stream starting at offset. The slice
// is capped at MaxImageSize bytes; a short stream yields a short slice.
func ReadImage(rs io.ReadSeeker, offset int64) ([]byte, error) {
	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek to %#x: %v", ErrIo, offset, err)
	}
	buf := make([]byte, MaxImageSize)
	n, err := io.ReadFull(rs, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: read VPD image: %v", ErrIo, err)
	}
	return buf[:n], nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
