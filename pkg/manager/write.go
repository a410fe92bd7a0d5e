// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/openpower/govpd/pkg/config"
	"github.com/openpower/govpd/pkg/inventory"
	"github.com/openpower/govpd/pkg/log"
	"github.com/openpower/govpd/pkg/vpd"
)

// WriteRequest names the keyword to overwrite. Record is empty for flat
// keyword-VPD targets.
type WriteRequest struct {
	Record  string
	Keyword string
	Value   []byte
}

// WriteKeyword runs the write pipeline against a target given as either
// an EEPROM device path or an inventory object path. It returns the
// number of bytes written on the primary EEPROM, or -1 on any failure.
// The primary write is authoritative; the inventory republish and the
// redundant-EEPROM mirror are best-effort but still fail the result.
func (m *Manager) WriteKeyword(path string, req WriteRequest) int {
	n, err := m.writeKeyword(path, req)
	if err != nil {
		log.Errorf("write %s %s/%s: %v", path, req.Record, req.Keyword, err)
		return -1
	}
	return n
}

func (m *Manager) writeKeyword(path string, req WriteRequest) (int, error) {
	if path == "" || req.Keyword == "" {
		return 0, fmt.Errorf("%w: empty write target", vpd.ErrInvalidArgument)
	}

	// Host reboots are blocked for the whole pipeline and unblocked on
	// every exit path.
	if err := m.Guard.Enable(); err != nil {
		return 0, fmt.Errorf("enabling reboot guard: %w", err)
	}
	defer func() {
		if err := m.Guard.Disable(); err != nil {
			log.Errorf("disabling reboot guard: %v", err)
		}
	}()

	eeprom := path
	var fru *config.FRU
	if e, f, ok := m.Config.FRUForInventory(path); ok {
		eeprom, fru = e, f
	} else if frus := m.Config.FRUsForEeprom(path); len(frus) > 0 {
		fru = &frus[0]
	}
	var offset int64
	if fru != nil {
		offset = fru.Offset
	}

	l := m.pathLock(eeprom)
	l.Lock()
	defer l.Unlock()

	n, err := m.writeEeprom(eeprom, offset, req)
	if err != nil {
		return 0, err
	}

	// Best-effort mirrors. Failures do not roll back the primary write
	// but surface a negative result.
	var mirrors *multierror.Error
	if fru != nil {
		if err := m.republish(eeprom, offset, fru, req); err != nil {
			mirrors = multierror.Append(mirrors, fmt.Errorf("republish %s: %w", fru.InventoryPath, err))
		}
		if fru.RedundantEeprom != "" {
			rl := m.pathLock(fru.RedundantEeprom)
			rl.Lock()
			_, rerr := m.writeEeprom(fru.RedundantEeprom, offset, req)
			rl.Unlock()
			if rerr != nil {
				mirrors = multierror.Append(mirrors, fmt.Errorf("mirror %s: %w", fru.RedundantEeprom, rerr))
			}
		}
	}
	if err := mirrors.ErrorOrNil(); err != nil {
		return n, err
	}
	return n, nil
}

// writeEeprom updates one keyword on one device, dispatching on the
// image format.
func (m *Manager) writeEeprom(eeprom string, offset int64, req WriteRequest) (int, error) {
	f, err := m.OpenEeprom(eeprom)
	if err != nil {
		return 0, fmt.Errorf("%w: open %q: %v", vpd.ErrIo, eeprom, err)
	}
	defer f.Close()

	buf, err := vpd.ReadImage(f, offset)
	if err != nil {
		return 0, err
	}
	switch kind := vpd.Identify(buf); kind {
	case vpd.KindIPZ:
		if req.Record == "" {
			return 0, fmt.Errorf("%w: IPZ write needs a record name", vpd.ErrInvalidArgument)
		}
		e := &vpd.Editor{File: f, Offset: offset}
		return e.WriteKeyword(req.Record, req.Keyword, req.Value)
	case vpd.KindKeywordVPD:
		if req.Record != "" {
			return 0, fmt.Errorf("%w: keyword VPD has no records", vpd.ErrInvalidArgument)
		}
		e := &vpd.KeywordEditor{File: f, Offset: offset}
		return e.WriteKeyword(req.Keyword, req.Value)
	case vpd.KindDDIMM:
		return 0, fmt.Errorf("%w: DDIMM SPD is read-only", vpd.ErrInvalidArgument)
	default:
		return 0, fmt.Errorf("%w: unrecognized VPD image on %q", vpd.ErrMalformedData, eeprom)
	}
}

// republish reads the keyword back from hardware and publishes the fresh
// value on the FRU's inventory object, together with any configured
// interface properties sourced from it.
func (m *Manager) republish(eeprom string, offset int64, fru *config.FRU, req WriteRequest) error {
	value, err := m.readEeprom(eeprom, offset, req.Record, req.Keyword)
	if err != nil {
		return err
	}

	ifaces := inventory.InterfaceMap{}
	raw := ipzInterfacePrefix + req.Record
	if req.Record == "" {
		raw = kwVPDInterface
	}
	ifaces[raw] = inventory.PropertyMap{req.Keyword: value}

	if fru.Inherited() {
		mergeSourced(ifaces, m.Config.CommonInterfaces, req.Record, req.Keyword, value)
	}
	mergeSourced(ifaces, fru.ExtraInterfaces, req.Record, req.Keyword, value)

	return m.Broker.Notify(inventory.ObjectMap{fru.InventoryPath: ifaces})
}

// mergeSourced refreshes the declared interface properties whose source
// is the keyword that just changed.
func mergeSourced(ifaces inventory.InterfaceMap, decl config.InterfaceMap, record, keyword string, value []byte) {
	for iface, props := range decl {
		for prop, rawValue := range props {
			src, ok := config.AsSource(rawValue)
			if !ok || src.RecordName != record || src.KeywordName != keyword {
				continue
			}
			if _, ok := ifaces[iface]; !ok {
				ifaces[iface] = inventory.PropertyMap{}
			}
			ifaces[iface][prop] = vpd.EncodeKeyword(value, src.Encoding)
		}
	}
}

// ReadKeyword reads one keyword from an EEPROM device, dispatching on
// the image format. Record is empty for keyword-VPD and DDIMM targets.
func (m *Manager) ReadKeyword(eeprom, record, keyword string) ([]byte, error) {
	if eeprom == "" || keyword == "" {
		return nil, fmt.Errorf("%w: empty read target", vpd.ErrInvalidArgument)
	}
	var offset int64
	if frus := m.Config.FRUsForEeprom(eeprom); len(frus) > 0 {
		offset = frus[0].Offset
	}

	l := m.pathLock(eeprom)
	l.Lock()
	defer l.Unlock()
	return m.readEeprom(eeprom, offset, record, keyword)
}

func (m *Manager) readEeprom(eeprom string, offset int64, record, keyword string) ([]byte, error) {
	f, err := m.OpenEeprom(eeprom)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", vpd.ErrIo, eeprom, err)
	}
	defer f.Close()

	buf, err := vpd.ReadImage(f, offset)
	if err != nil {
		return nil, err
	}
	switch kind := vpd.Identify(buf); kind {
	case vpd.KindIPZ:
		if record == "" {
			return nil, fmt.Errorf("%w: IPZ read needs a record name", vpd.ErrInvalidArgument)
		}
		p := &vpd.IPZParser{Buf: buf, Stream: f, Base: offset}
		return p.ReadKeyword(record, keyword)
	case vpd.KindKeywordVPD:
		if record != "" {
			return nil, fmt.Errorf("%w: keyword VPD has no records", vpd.ErrInvalidArgument)
		}
		return vpd.ReadKeywordVPD(buf, keyword)
	case vpd.KindDDIMM:
		if record != "" {
			return nil, fmt.Errorf("%w: DDIMM SPD has no records", vpd.ErrInvalidArgument)
		}
		d, err := vpd.ParseDDIMM(buf)
		if err != nil {
			return nil, err
		}
		v, ok := d.Keywords.Value(keyword)
		if !ok {
			return nil, fmt.Errorf("%w: %q", vpd.ErrKeywordNotFound, keyword)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized VPD image on %q", vpd.ErrMalformedData, eeprom)
	}
}
