// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inventory publishes decoded VPD onto the system inventory over
// D-Bus and drives the reboot guard around EEPROM writes.
package inventory

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// PropertyMap holds the properties of one D-Bus interface.
type PropertyMap map[string]interface{}

// InterfaceMap holds the interfaces of one inventory object.
type InterfaceMap map[string]PropertyMap

// ObjectMap holds a batch of inventory objects keyed by object path.
type ObjectMap map[string]InterfaceMap

// Broker is the inventory service a manager publishes to.
type Broker interface {
	// Notify publishes a batch of objects. Properties already present on
	// the inventory are overwritten; absent interfaces are left alone.
	Notify(objects ObjectMap) error
	// Ready reports whether the inventory service is up.
	Ready() (bool, error)
}

// Guard blocks host reboots for the duration of an EEPROM write.
type Guard interface {
	Enable() error
	Disable() error
}

const (
	managerService = "xyz.openbmc_project.Inventory.Manager"
	managerPath    = dbus.ObjectPath("/xyz/openbmc_project/inventory")
	notifyMethod   = "xyz.openbmc_project.Inventory.Manager.Notify"

	dbusService        = "org.freedesktop.DBus"
	nameHasOwnerMethod = "org.freedesktop.DBus.NameHasOwner"
)

// DBusBroker talks to the inventory manager on the system bus.
type DBusBroker struct {
	conn *dbus.Conn
}

// NewDBusBroker connects to the system bus.
func NewDBusBroker() (*DBusBroker, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &DBusBroker{conn: conn}, nil
}

func (b *DBusBroker) Close() error {
	return b.conn.Close()
}

func (b *DBusBroker) Notify(objects ObjectMap) error {
	call := b.conn.Object(managerService, managerPath).Call(notifyMethod, 0, toWire(objects))
	if call.Err != nil {
		return fmt.Errorf("inventory notify: %w", call.Err)
	}
	return nil
}

func (b *DBusBroker) Ready() (bool, error) {
	var has bool
	err := b.conn.BusObject().Call(nameHasOwnerMethod, 0, managerService).Store(&has)
	if err != nil {
		return false, fmt.Errorf("querying %s: %w", managerService, err)
	}
	return has, nil
}

// toWire converts an ObjectMap to the a{oa{sa{sv}}} shape Notify takes.
func toWire(objects ObjectMap) map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	wire := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(objects))
	for path, ifaces := range objects {
		wi := make(map[string]map[string]dbus.Variant, len(ifaces))
		for iface, props := range ifaces {
			wp := make(map[string]dbus.Variant, len(props))
			for name, value := range props {
				wp[name] = dbus.MakeVariant(value)
			}
			wi[iface] = wp
		}
		wire[dbus.ObjectPath(path)] = wi
	}
	return wire
}
