// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/openpower/govpd/pkg/manager"
)

const (
	serviceName      = "com.ibm.VPD.Manager"
	serviceObject    = dbus.ObjectPath("/com/ibm/VPD/Manager")
	serviceInterface = "com.ibm.VPD.Manager"
)

// service exports the manager's operations on the system bus.
type service struct {
	m    *manager.Manager
	conn *dbus.Conn
}

func newService(m *manager.Manager) (*service, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	s := &service{m: m, conn: conn}
	if err := conn.Export(s, serviceObject, serviceInterface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting %s: %w", serviceInterface, err)
	}
	reply, err := conn.RequestName(serviceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting %s: %w", serviceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("%s already has an owner", serviceName)
	}
	return s, nil
}

func (s *service) Close() error {
	return s.conn.Close()
}

func (s *service) WriteKeyword(path, record, keyword string, value []byte) (int32, *dbus.Error) {
	n := s.m.WriteKeyword(path, manager.WriteRequest{Record: record, Keyword: keyword, Value: value})
	return int32(n), nil
}

func (s *service) ReadKeyword(eeprom, record, keyword string) ([]byte, *dbus.Error) {
	v, err := s.m.ReadKeyword(eeprom, record, keyword)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return v, nil
}

func (s *service) CollectFRUVPD(objectPath dbus.ObjectPath) *dbus.Error {
	if err := s.m.CollectFRU(string(objectPath)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *service) DeleteFRUVPD(objectPath dbus.ObjectPath) *dbus.Error {
	if err := s.m.DeleteFRU(string(objectPath)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *service) GetExpandedLocationCode(code string, node uint16) (string, *dbus.Error) {
	full, err := s.m.ExpandLocationCode(code, int(node))
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return full, nil
}

func (s *service) GetFRUsByExpandedLocationCode(code string) ([]dbus.ObjectPath, *dbus.Error) {
	paths, err := s.m.FRUsByExpandedLocationCode(code)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return objectPaths(paths), nil
}

func (s *service) GetFRUsByUnexpandedLocationCode(code string, node uint16) ([]dbus.ObjectPath, *dbus.Error) {
	paths, err := s.m.FRUsByUnexpandedLocationCode(code, int(node))
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return objectPaths(paths), nil
}

func (s *service) GetHardwarePath(objectPath dbus.ObjectPath) (string, *dbus.Error) {
	eeprom, err := s.m.HardwarePath(string(objectPath))
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return eeprom, nil
}

func (s *service) PerformVPDRecollection() *dbus.Error {
	if err := s.m.PerformRecollection(context.Background()); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *service) CollectionStatus() (string, *dbus.Error) {
	return string(s.m.Status()), nil
}

func objectPaths(paths []string) []dbus.ObjectPath {
	out := make([]dbus.ObjectPath, len(paths))
	for i, p := range paths {
		out[i] = dbus.ObjectPath(p)
	}
	return out
}
