// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/openpower/govpd/pkg/config"
)

// Target selects the EEPROM or image file a command operates on. Shared
// by every verb.
type Target struct {
	Object   string `short:"O" long:"object" description:"inventory object path of the FRU"`
	File     string `long:"file" description:"VPD image file to operate on instead of an EEPROM"`
	Hardware bool   `short:"H" long:"hardware" description:"resolve the object to its EEPROM and operate on hardware"`
	Config   string `short:"c" long:"config" default:"/var/lib/vpd/vpd_inventory.json" description:"system configuration JSON"`
}

// Resolve returns the file to open and the VPD offset within it.
func (tgt *Target) Resolve() (string, int64, error) {
	if tgt.File != "" {
		return tgt.File, 0, nil
	}
	if tgt.Object == "" {
		return "", 0, ErrArgs{Err: fmt.Errorf("one of --object or --file is required")}
	}
	if !tgt.Hardware {
		return "", 0, ErrArgs{Err: fmt.Errorf("without --hardware, --file is required")}
	}
	cfg, err := config.Load(tgt.Config)
	if err != nil {
		return "", 0, err
	}
	eeprom, fru, ok := cfg.FRUForInventory(tgt.Object)
	if !ok {
		// The object may already be an EEPROM device path.
		if frus := cfg.FRUsForEeprom(tgt.Object); len(frus) > 0 {
			return tgt.Object, frus[0].Offset, nil
		}
		return "", 0, fmt.Errorf("object %q is not in the configuration", tgt.Object)
	}
	return eeprom, fru.Offset, nil
}

// Open opens the resolved target for read+write. Read paths need write
// access too: correctable ECC windows are repaired on the device.
func (tgt *Target) Open() (*os.File, int64, error) {
	path, offset, err := tgt.Resolve()
	if err != nil {
		return nil, 0, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, 0, err
	}
	return f, offset, nil
}

// Pretty renders a keyword value: printable ASCII as-is, anything else
// as space-separated hex.
func Pretty(value []byte) string {
	printable := true
	for _, b := range value {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			printable = false
			break
		}
	}
	if printable && len(value) > 0 {
		return string(value)
	}
	var sb strings.Builder
	for i, b := range value {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}
