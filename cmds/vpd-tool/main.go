// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// vpd-tool reads and writes Vital Product Data on EEPROM devices and
// image files.
//
// Synopsis:
//     vpd-tool read -O OBJECT -H -R RECORD -K KEYWORD
//     vpd-tool read --file IMAGE -K KEYWORD
//     vpd-tool write --file IMAGE -R RECORD -K KEYWORD -V VALUE
//     vpd-tool show --file IMAGE
//     vpd-tool json --file IMAGE
//
// An example:
//     vpd-tool read --file system.vpd -R VINI -K SN
//     vpd-tool write --file system.vpd -R VINI -K SN -V 0x4e455734353600
//     vpd-tool read -O /system/chassis/motherboard -H -R VINI -K SN
//
// Description:
//     read:  Print one keyword value
//     write: Overwrite one keyword value (ECC/checksum refreshed)
//     show:  Print every keyword as a table
//     json:  Print every keyword as JSON
package main

import (
	"log"

	"github.com/jessevdk/go-flags"

	"github.com/openpower/govpd/cmds/vpd-tool/commands"
	"github.com/openpower/govpd/cmds/vpd-tool/commands/jsondump"
	"github.com/openpower/govpd/cmds/vpd-tool/commands/read"
	"github.com/openpower/govpd/cmds/vpd-tool/commands/show"
	"github.com/openpower/govpd/cmds/vpd-tool/commands/write"
)

var (
	knownCommands = map[string]commands.Command{
		"read":  &read.Command{},
		"write": &write.Command{},
		"show":  &show.Command{},
		"json":  &jsondump.Command{},
	}
)

func main() {
	flagsParser := flags.NewParser(nil, flags.Default)
	for commandName, command := range knownCommands {
		_, err := flagsParser.AddCommand(commandName, command.ShortDescription(), command.LongDescription(), command)
		if err != nil {
			panic(err)
		}
	}

	// parse arguments and execute the appropriate command
	if _, err := flagsParser.Parse(); err != nil {
		log.Fatal(err)
	}
}
