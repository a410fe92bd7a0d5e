// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package show

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openpower/govpd/cmds/vpd-tool/commands"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	commands.Target
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "prints every keyword of a VPD image as a table"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return ""
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	f, offset, err := cmd.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	dump, err := commands.Dump(f, offset)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("%s VPD", dump.Kind)
	t.AppendHeader(table.Row{"Record", "Keyword", "Value"})
	for _, kw := range dump.Keywords {
		t.AppendRow(table.Row{kw.Record, kw.Keyword, kw.Value})
	}
	if dump.SizeKB != 0 {
		t.AppendFooter(table.Row{"", "Size", humanize.IBytes(dump.SizeKB * 1024)})
	}
	t.Render()
	return nil
}
