// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpd

import (
	"fmt"
	"io"

	"github.com/openpower/govpd/pkg/ecc"
)

// Editor updates one keyword in place on an IPZ EEPROM stream. It owns a
// scratch copy of the image for the duration of a write; the File and the
// scratch buffer are kept consistent byte for byte. Concurrent writes to
// the same stream are not supported; callers serialize per path.
type Editor struct {
	File io.ReadWriteSeeker
	// Offset is the start of the VPD image within the EEPROM.
	Offset int64
}

// WriteKeyword overwrites the value of (record, keyword) with value,
// truncated to the keyword's physical length, and refreshes the record's
// ECC. It returns the number of bytes written. The data bytes land before
// the ECC does; an ECC regeneration failure is surfaced as ErrEcc and the
// caller re-drives the operation.
func (e *Editor) WriteKeyword(record, keyword string, value []byte) (int, error) {
	buf, err := ReadImage(e.File, e.Offset)
	if err != nil {
		return 0, err
	}
	p := &IPZParser{Buf: buf, Stream: e.File, Base: e.Offset}
	if err := p.checkHeader(); err != nil {
		return 0, err
	}
	locs, err := p.tocEntries(true)
	if err != nil {
		return 0, err
	}
	var loc RecordLocation
	found := false
	for _, l := range locs {
		if l.Name == record {
			loc = l
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %q", ErrRecordNotFound, record)
	}

	slot, err := p.keywordSlot(loc, keyword)
	if err != nil {
		return 0, err
	}

	n := len(value)
	if n > int(slot.Length) {
		n = int(slot.Length)
	}
	copy(buf[slot.Offset:int(slot.Offset)+n], value[:n])
	if err := e.writeAt(int64(slot.Offset), buf[slot.Offset:int(slot.Offset)+n]); err != nil {
		return 0, err
	}

	fresh, err := ecc.Create(loc.Data.Slice(buf), int(loc.ECC.Length))
	if err != nil {
		return n, fmt.Errorf("%w: regenerating ECC for record %q: %v", ErrEcc, record, err)
	}
	copy(loc.ECC.Slice(buf), fresh)
	if err := e.writeAt(int64(loc.ECC.Offset), fresh); err != nil {
		return n, err
	}
	return n, nil
}

func (e *Editor) writeAt(offset int64, b []byte) error {
	if _, err := e.File.Seek(e.Offset+offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %#x: %v", ErrIo, e.Offset+offset, err)
	}
	if _, err := e.File.Write(b); err != nil {
		return fmt.Errorf("%w: write at %#x: %v", ErrIo, e.Offset+offset, err)
	}
	return nil
}

// KeywordEditor updates one keyword in place on a flat keyword-VPD EEPROM
// stream. The stored checksum is recomputed after the value changes.
type KeywordEditor struct {
	File   io.ReadWriteSeeker
	Offset int64
}

// WriteKeyword overwrites the value of keyword with value, truncated to
// the slot length, and restores the container checksum. It returns the
// number of bytes written.
func (e *KeywordEditor) WriteKeyword(keyword string, value []byte) (int, error) {
	buf, err := ReadImage(e.File, e.Offset)
	if err != nil {
		return 0, err
	}
	layout, err := walkKeywordVPD(buf)
	if err != nil {
		return 0, err
	}
	slot, ok := layout.slot(keyword)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrKeywordNotFound, keyword)
	}

	n := len(value)
	if n > int(slot.Length) {
		n = int(slot.Length)
	}
	copy(buf[slot.Offset:int(slot.Offset)+n], value[:n])
	if err := e.writeAt(int64(slot.Offset), buf[slot.Offset:int(slot.Offset)+n]); err != nil {
		return 0, err
	}

	buf[layout.checksum] = -layout.sum(buf)
	if err := e.writeAt(int64(layout.checksum), buf[layout.checksum:layout.checksum+1]); err != nil {
		return n, err
	}
	return n, nil
}

func (e *KeywordEditor) writeAt(offset int64, b []byte) error {
	if _, err := e.File.Seek(e.Offset+offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %#x: %v", ErrIo, e.Offset+offset, err)
	}
	if _, err := e.File.Write(b); err != nil {
		return fmt.Errorf("%w: write at %#x: %v", ErrIo, e.Offset+offset, err)
	}
	return nil
}
