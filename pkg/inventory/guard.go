// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inventory

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	systemdService = "org.freedesktop.systemd1"
	systemdPath    = dbus.ObjectPath("/org/freedesktop/systemd1")
	startUnit      = "org.freedesktop.systemd1.Manager.StartUnit"

	guardEnableUnit  = "reboot-guard-enable.service"
	guardDisableUnit = "reboot-guard-disable.service"
)

// SystemdGuard toggles the reboot guard by starting the enable/disable
// oneshot units.
type SystemdGuard struct {
	conn *dbus.Conn
}

// NewSystemdGuard connects to the system bus.
func NewSystemdGuard() (*SystemdGuard, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &SystemdGuard{conn: conn}, nil
}

func (g *SystemdGuard) Close() error {
	return g.conn.Close()
}

func (g *SystemdGuard) Enable() error {
	return g.start(guardEnableUnit)
}

func (g *SystemdGuard) Disable() error {
	return g.start(guardDisableUnit)
}

func (g *SystemdGuard) start(unit string) error {
	var job dbus.ObjectPath
	err := g.conn.Object(systemdService, systemdPath).
		Call(startUnit, 0, unit, "replace").Store(&job)
	if err != nil {
		return fmt.Errorf("starting %s: %w", unit, err)
	}
	return nil
}
