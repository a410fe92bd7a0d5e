// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openpower/govpd/pkg/config"
	"github.com/openpower/govpd/pkg/inventory"
	"github.com/openpower/govpd/pkg/log"
	"github.com/openpower/govpd/pkg/vpd"
)

// CollectFRU parses one FRU's EEPROM and publishes the decoded view on
// its inventory object. The inventory service must be up.
func (m *Manager) CollectFRU(objectPath string) error {
	ready, err := m.Broker.Ready()
	if err != nil {
		return fmt.Errorf("%w: %v", vpd.ErrServiceUnavailable, err)
	}
	if !ready {
		return fmt.Errorf("%w: inventory service is not up", vpd.ErrServiceUnavailable)
	}

	eeprom, fru, ok := m.Config.FRUForInventory(objectPath)
	if !ok {
		return fmt.Errorf("%w: unknown inventory path %q", vpd.ErrInvalidArgument, objectPath)
	}

	l := m.pathLock(eeprom)
	l.Lock()
	ifaces, err := m.fruView(eeprom, fru)
	l.Unlock()
	if err != nil {
		return err
	}
	return m.Broker.Notify(inventory.ObjectMap{fru.InventoryPath: ifaces})
}

// DeleteFRU clears a FRU's published view. The EEPROM bytes are left
// alone.
func (m *Manager) DeleteFRU(objectPath string) error {
	_, fru, ok := m.Config.FRUForInventory(objectPath)
	if !ok {
		return fmt.Errorf("%w: unknown inventory path %q", vpd.ErrInvalidArgument, objectPath)
	}
	return m.Broker.Notify(inventory.ObjectMap{
		fru.InventoryPath: {itemInterface: {"Present": false}},
	})
}

// fruView decodes the EEPROM and builds the interface map to publish.
func (m *Manager) fruView(eeprom string, fru *config.FRU) (inventory.InterfaceMap, error) {
	f, err := m.OpenEeprom(eeprom)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", vpd.ErrIo, eeprom, err)
	}
	defer f.Close()

	buf, err := vpd.ReadImage(f, fru.Offset)
	if err != nil {
		return nil, err
	}

	ifaces := inventory.InterfaceMap{
		itemInterface: {"Present": true},
	}
	lookup := func(record, keyword string) ([]byte, bool) { return nil, false }

	switch kind := vpd.Identify(buf); kind {
	case vpd.KindIPZ:
		p := &vpd.IPZParser{Buf: buf, Stream: f, Base: fru.Offset}
		rm, err := p.Parse()
		if err != nil {
			return nil, err
		}
		for _, rec := range rm.Records {
			if !fru.PublishesRecord(rec.Name) {
				continue
			}
			props := inventory.PropertyMap{}
			for _, kw := range rec.Keywords {
				props[kw.Name] = kw.Value
			}
			ifaces[ipzInterfacePrefix+rec.Name] = props
		}
		lookup = func(record, keyword string) ([]byte, bool) {
			rec, ok := rm.Record(record)
			if !ok {
				return nil, false
			}
			return rec.Value(keyword)
		}
	case vpd.KindKeywordVPD:
		km, err := vpd.ParseKeywordVPD(buf)
		if err != nil {
			return nil, err
		}
		ifaces[kwVPDInterface] = keywordProps(km)
		lookup = func(_, keyword string) ([]byte, bool) { return km.Value(keyword) }
	case vpd.KindDDIMM:
		d, err := vpd.ParseDDIMM(buf)
		if err != nil {
			return nil, err
		}
		ifaces[kwVPDInterface] = keywordProps(&d.Keywords)
		ifaces[dimmInterface] = inventory.PropertyMap{"MemorySizeInKB": d.SizeKB}
		lookup = func(_, keyword string) ([]byte, bool) { return d.Keywords.Value(keyword) }
	default:
		return nil, fmt.Errorf("%w: unrecognized VPD image on %q", vpd.ErrMalformedData, eeprom)
	}

	if fru.Inherited() {
		declareInterfaces(ifaces, m.Config.CommonInterfaces, lookup)
	}
	declareInterfaces(ifaces, fru.ExtraInterfaces, lookup)
	return ifaces, nil
}

func keywordProps(km *vpd.KeywordMap) inventory.PropertyMap {
	props := inventory.PropertyMap{}
	for _, kw := range km.Keywords {
		props[kw.Name] = kw.Value
	}
	return props
}

// declareInterfaces resolves configured interface properties: source
// objects read (and encode) a VPD keyword, anything else is published as
// the JSON literal.
func declareInterfaces(ifaces inventory.InterfaceMap, decl config.InterfaceMap, lookup func(record, keyword string) ([]byte, bool)) {
	for iface, props := range decl {
		out, ok := ifaces[iface]
		if !ok {
			out = inventory.PropertyMap{}
			ifaces[iface] = out
		}
		for prop, rawValue := range props {
			if src, ok := config.AsSource(rawValue); ok {
				if v, ok := lookup(src.RecordName, src.KeywordName); ok {
					out[prop] = vpd.EncodeKeyword(v, src.Encoding)
				}
				continue
			}
			var literal interface{}
			if err := json.Unmarshal(rawValue, &literal); err == nil && literal != nil {
				out[prop] = literal
			}
		}
	}
}

// Collect runs the whole-fleet collection cycle: wait for the inventory
// service, then collect every configured FRU, retrying stragglers on the
// collection tick until the retry ceiling.
func (m *Manager) Collect(ctx context.Context) error {
	m.setStatus(StatusInProgress)

	if err := m.waitReady(ctx); err != nil {
		m.setStatus(StatusNotStarted)
		return err
	}

	pending := map[string]bool{}
	for _, frus := range m.Config.Frus {
		for i := range frus {
			pending[frus[i].InventoryPath] = true
		}
	}

	for retry := 0; ; retry++ {
		for path := range pending {
			if err := m.CollectFRU(path); err != nil {
				log.Warnf("collecting %s: %v", path, err)
				continue
			}
			delete(pending, path)
		}
		if len(pending) == 0 {
			m.setStatus(StatusCompleted)
			return nil
		}
		if retry >= m.CollectionRetries {
			log.Errorf("collection incomplete after %d retries, %d FRUs left", retry, len(pending))
			return fmt.Errorf("%w: collection did not complete", vpd.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("collection aborted: %w", ctx.Err())
		case <-time.After(m.CollectionTick):
		}
	}
}

// PerformRecollection restarts the collection cycle from scratch.
func (m *Manager) PerformRecollection(ctx context.Context) error {
	m.setStatus(StatusNotStarted)
	return m.Collect(ctx)
}

// waitReady polls the inventory service on the system-VPD tick.
func (m *Manager) waitReady(ctx context.Context) error {
	for {
		ready, err := m.Broker.Ready()
		if err != nil {
			log.Warnf("inventory readiness check: %v", err)
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for inventory service: %w", ctx.Err())
		case <-time.After(m.SystemVPDTick):
		}
	}
}
