// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the system configuration JSON that maps EEPROM
// device paths to inventory objects and declares the D-Bus interfaces
// published for each FRU.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// InterfaceMap declares D-Bus interfaces and their properties. A property
// value is either a JSON literal published as-is or a source object naming
// the record, keyword and encoding it is read from.
type InterfaceMap map[string]map[string]json.RawMessage

// Source names the VPD keyword a published property is read from.
type Source struct {
	RecordName  string `json:"recordName"`
	KeywordName string `json:"keywordName"`
	Encoding    string `json:"encoding"`
}

// FRU describes one inventory object backed by (a slice of) an EEPROM.
type FRU struct {
	InventoryPath   string `json:"inventoryPath"`
	ServiceName     string `json:"serviceName"`
	Offset          int64  `json:"offset"`
	RedundantEeprom string `json:"redundantEeprom"`
	// Inherit controls whether commonInterfaces apply to this FRU.
	// Absent means yes.
	Inherit *bool `json:"inherit"`
	// CopyRecords limits which records are published. Empty means all.
	CopyRecords     []string     `json:"copyRecordsToInventory"`
	ExtraInterfaces InterfaceMap `json:"extraInterfaces"`
}

// Inherited reports whether the FRU takes the common interfaces.
func (f *FRU) Inherited() bool {
	return f.Inherit == nil || *f.Inherit
}

// PublishesRecord reports whether a record's keywords are published for
// this FRU.
func (f *FRU) PublishesRecord(record string) bool {
	if len(f.CopyRecords) == 0 {
		return true
	}
	for _, r := range f.CopyRecords {
		if r == record {
			return true
		}
	}
	return false
}

// LocationCode returns the unexpanded location code declared in the
// FRU's extra interfaces.
func (f *FRU) LocationCode() (string, bool) {
	for _, props := range f.ExtraInterfaces {
		if raw, ok := props["LocationCode"]; ok {
			if s, ok := AsString(raw); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Config is the parsed system configuration.
type Config struct {
	// DevTree names the device tree the configuration was generated
	// against. A mismatch with the running system invalidates the cache.
	DevTree          string           `json:"devTree"`
	CommonInterfaces InterfaceMap     `json:"commonInterfaces"`
	Frus             map[string][]FRU `json:"frus"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a configuration blob.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(c.Frus) == 0 {
		return nil, fmt.Errorf("config declares no FRUs")
	}
	for eeprom, frus := range c.Frus {
		if len(frus) == 0 {
			return nil, fmt.Errorf("config: EEPROM %q has no FRUs", eeprom)
		}
		for i := range frus {
			if frus[i].InventoryPath == "" {
				return nil, fmt.Errorf("config: EEPROM %q FRU %d has no inventory path", eeprom, i)
			}
		}
	}
	return &c, nil
}

// CheckDevTree verifies the configuration was generated for the running
// device tree. What to do on a mismatch is the caller's decision.
func (c *Config) CheckDevTree(current string) error {
	if c.DevTree != "" && c.DevTree != current {
		return fmt.Errorf("config is for device tree %q, system runs %q", c.DevTree, current)
	}
	return nil
}

// FRUsForEeprom returns the FRUs backed by an EEPROM device path.
func (c *Config) FRUsForEeprom(path string) []FRU {
	return c.Frus[path]
}

// FRUForInventory resolves an inventory object path to its backing EEPROM
// and FRU entry.
func (c *Config) FRUForInventory(inventoryPath string) (string, *FRU, bool) {
	for eeprom, frus := range c.Frus {
		for i := range frus {
			if frus[i].InventoryPath == inventoryPath {
				return eeprom, &frus[i], true
			}
		}
	}
	return "", nil, false
}

// HardwarePath returns the EEPROM device path backing an inventory object.
func (c *Config) HardwarePath(inventoryPath string) (string, bool) {
	eeprom, _, ok := c.FRUForInventory(inventoryPath)
	return eeprom, ok
}

// SystemEeprom returns the EEPROM and FRU entry of the system backplane.
func (c *Config) SystemEeprom() (string, *FRU, bool) {
	for eeprom, frus := range c.Frus {
		for i := range frus {
			if strings.HasSuffix(frus[i].InventoryPath, "/system/chassis/motherboard") {
				return eeprom, &frus[i], true
			}
		}
	}
	return "", nil, false
}

// FRUsByLocationCode returns the inventory paths of every FRU declaring
// the given unexpanded location code.
func (c *Config) FRUsByLocationCode(code string) []string {
	var paths []string
	for _, frus := range c.Frus {
		for i := range frus {
			if lc, ok := frus[i].LocationCode(); ok && lc == code {
				paths = append(paths, frus[i].InventoryPath)
			}
		}
	}
	return paths
}

// AsSource decodes a property value as a keyword source object.
func AsSource(raw json.RawMessage) (Source, bool) {
	var s Source
	if err := json.Unmarshal(raw, &s); err != nil {
		return Source{}, false
	}
	if s.RecordName == "" || s.KeywordName == "" {
		return Source{}, false
	}
	return s, true
}

// AsString decodes a property value as a JSON string literal.
func AsString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
