// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// vpd-manager collects VPD from every configured EEPROM, publishes it on
// the inventory, and serves keyword reads and writes on D-Bus.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/openpower/govpd/pkg/config"
	"github.com/openpower/govpd/pkg/inventory"
	"github.com/openpower/govpd/pkg/manager"
)

var (
	configPath = flag.StringP("config", "c", "/var/lib/vpd/vpd_inventory.json", "system configuration JSON")
	noCollect  = flag.Bool("no-collect", false, "serve without running the startup collection cycle")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	broker, err := inventory.NewDBusBroker()
	if err != nil {
		log.Fatal(err)
	}
	defer broker.Close()
	guard, err := inventory.NewSystemdGuard()
	if err != nil {
		log.Fatal(err)
	}
	defer guard.Close()

	m := manager.New(cfg, broker, guard)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newService(m)
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close()

	if !*noCollect {
		if err := m.Collect(ctx); err != nil {
			log.Printf("startup collection: %v", err)
		}
	}

	<-ctx.Done()
}
