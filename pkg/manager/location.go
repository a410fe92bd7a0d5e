// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openpower/govpd/pkg/vpd"
)

// Unexpanded location codes start with one of these prefixes; the prefix
// is replaced with identity keywords read from the system VPD.
const (
	locPrefixFcs = "Ufcs"
	locPrefixMts = "Umts"
	locPrefixLen = 4
)

// systemIdentity holds the system-VPD keywords location codes expand
// with.
type systemIdentity struct {
	fc string // VCEN FC, feature code
	se string // VCEN SE, system serial
	tm string // VSYS TM, machine type-model
	ms string // VSYS SE, system serial for mts codes
}

func (m *Manager) systemIdentity() (*systemIdentity, error) {
	eeprom, fru, ok := m.Config.SystemEeprom()
	if !ok {
		return nil, fmt.Errorf("%w: no system EEPROM configured", vpd.ErrInvalidArgument)
	}

	l := m.pathLock(eeprom)
	l.Lock()
	defer l.Unlock()

	f, err := m.OpenEeprom(eeprom)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", vpd.ErrIo, eeprom, err)
	}
	defer f.Close()

	buf, err := vpd.ReadImage(f, fru.Offset)
	if err != nil {
		return nil, err
	}
	p := &vpd.IPZParser{Buf: buf, Stream: f, Base: fru.Offset}

	id := &systemIdentity{}
	for _, kw := range []struct {
		record, keyword string
		dst             *string
	}{
		{"VCEN", "FC", &id.fc},
		{"VCEN", "SE", &id.se},
		{"VSYS", "TM", &id.tm},
		{"VSYS", "SE", &id.ms},
	} {
		v, err := p.ReadKeyword(kw.record, kw.keyword)
		if err != nil {
			continue // not every system carries both records
		}
		*kw.dst = string(v)
	}
	return id, nil
}

// validLocationCode checks the unexpanded shape: at least 4 bytes, a
// known prefix, and a '-' separator when anything follows it.
func validLocationCode(code string) bool {
	if len(code) < locPrefixLen || code[0] != 'U' {
		return false
	}
	if !strings.HasPrefix(code, locPrefixFcs) && !strings.HasPrefix(code, locPrefixMts) {
		return false
	}
	return len(code) == locPrefixLen || code[locPrefixLen] == '-'
}

// ExpandLocationCode turns an unexpanded location code into the full
// form carrying the system identity: "Ufcs" becomes
// U<FC[0:4]>.ND<node>.<SE>, "Umts" becomes U<TM with - as .>.<SE>.
func (m *Manager) ExpandLocationCode(shortCode string, node int) (string, error) {
	if !validLocationCode(shortCode) {
		return "", fmt.Errorf("%w: invalid location code %q", vpd.ErrInvalidArgument, shortCode)
	}
	id, err := m.systemIdentity()
	if err != nil {
		return "", err
	}
	rest := shortCode[locPrefixLen:]

	if strings.HasPrefix(shortCode, locPrefixFcs) {
		if len(id.fc) < 4 || id.se == "" {
			return "", fmt.Errorf("%w: system VPD lacks FC/SE", vpd.ErrMalformedData)
		}
		return "U" + id.fc[:4] + ".ND" + strconv.Itoa(node) + "." + id.se + rest, nil
	}
	if id.tm == "" || id.ms == "" {
		return "", fmt.Errorf("%w: system VPD lacks TM/SE", vpd.ErrMalformedData)
	}
	return "U" + strings.ReplaceAll(id.tm, "-", ".") + "." + id.ms + rest, nil
}

// UnexpandLocationCode maps a full location code back to its unexpanded
// form by stripping the system identity.
func (m *Manager) UnexpandLocationCode(fullCode string) (string, error) {
	id, err := m.systemIdentity()
	if err != nil {
		return "", err
	}
	if len(id.fc) >= 4 && id.se != "" {
		prefix := "U" + id.fc[:4] + ".ND"
		if strings.HasPrefix(fullCode, prefix) {
			if i := strings.Index(fullCode, "."+id.se); i > 0 {
				return locPrefixFcs + fullCode[i+1+len(id.se):], nil
			}
		}
	}
	if id.tm != "" && id.ms != "" {
		prefix := "U" + strings.ReplaceAll(id.tm, "-", ".") + "." + id.ms
		if strings.HasPrefix(fullCode, prefix) {
			return locPrefixMts + fullCode[len(prefix):], nil
		}
	}
	return "", fmt.Errorf("%w: location code %q does not match this system", vpd.ErrInvalidArgument, fullCode)
}

// FRUsByUnexpandedLocationCode returns the inventory paths declaring the
// given location code.
func (m *Manager) FRUsByUnexpandedLocationCode(shortCode string, node int) ([]string, error) {
	if !validLocationCode(shortCode) {
		return nil, fmt.Errorf("%w: invalid location code %q", vpd.ErrInvalidArgument, shortCode)
	}
	_ = node // single-node systems publish every FRU on node 0
	paths := m.Config.FRUsByLocationCode(shortCode)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no FRU at %q", vpd.ErrInvalidArgument, shortCode)
	}
	return paths, nil
}

// FRUsByExpandedLocationCode resolves a full location code to inventory
// paths by first stripping the system identity.
func (m *Manager) FRUsByExpandedLocationCode(fullCode string) ([]string, error) {
	shortCode, err := m.UnexpandLocationCode(fullCode)
	if err != nil {
		return nil, err
	}
	return m.FRUsByUnexpandedLocationCode(shortCode, 0)
}

// HardwarePath returns the EEPROM device backing an inventory object.
func (m *Manager) HardwarePath(objectPath string) (string, error) {
	eeprom, ok := m.Config.HardwarePath(objectPath)
	if !ok {
		return "", fmt.Errorf("%w: unknown inventory path %q", vpd.ErrInvalidArgument, objectPath)
	}
	return eeprom, nil
}
