// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manager implements the VPD service surface: the keyword-write
// pipeline, FRU collection onto the inventory, and location-code lookup.
package manager

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/openpower/govpd/pkg/config"
	"github.com/openpower/govpd/pkg/inventory"
)

// D-Bus interfaces the published record maps land on.
const (
	ipzInterfacePrefix = "com.ibm.ipzvpd."
	kwVPDInterface     = "com.ibm.kwvpd.KWVPD"
	dimmInterface      = "xyz.openbmc_project.Inventory.Item.Dimm"
	itemInterface      = "xyz.openbmc_project.Inventory.Item"
)

// CollectionStatus is the published state of the collection cycle.
type CollectionStatus string

const (
	StatusNotStarted CollectionStatus = "NotStarted"
	StatusInProgress CollectionStatus = "InProgress"
	StatusCompleted  CollectionStatus = "Completed"
)

// EepromFile is an open EEPROM device.
type EepromFile interface {
	io.ReadWriteSeeker
	io.Closer
}

// Manager ties the config, the parsers and the inventory broker together.
// Operations on the same EEPROM are serialized; the parsers and editors
// are not internally synchronized.
type Manager struct {
	Config *config.Config
	Broker inventory.Broker
	Guard  inventory.Guard

	// OpenEeprom opens an EEPROM device for read+write. Overridable so
	// tests run against in-memory images.
	OpenEeprom func(path string) (EepromFile, error)

	// Collection cycle timers.
	SystemVPDTick     time.Duration
	CollectionTick    time.Duration
	CollectionRetries int

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	status CollectionStatus
}

// New returns a Manager with the default device opener and timers.
func New(cfg *config.Config, broker inventory.Broker, guard inventory.Guard) *Manager {
	return &Manager{
		Config: cfg,
		Broker: broker,
		Guard:  guard,
		OpenEeprom: func(path string) (EepromFile, error) {
			return os.OpenFile(path, os.O_RDWR, 0)
		},
		SystemVPDTick:     2 * time.Second,
		CollectionTick:    3 * time.Second,
		CollectionRetries: 5,
		locks:             map[string]*sync.Mutex{},
		status:            StatusNotStarted,
	}
}

// Status returns the current collection status.
func (m *Manager) Status() CollectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(s CollectionStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// pathLock returns the mutex serializing access to one EEPROM path.
func (m *Manager) pathLock(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}
