// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package read

import (
	"fmt"

	"github.com/openpower/govpd/cmds/vpd-tool/commands"
	"github.com/openpower/govpd/pkg/vpd"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	commands.Target
	Record  string `short:"R" long:"record" description:"record name (IPZ images only)"`
	Keyword string `short:"K" long:"keyword" description:"keyword name" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "reads one keyword from a VPD image"
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

	buf, err := vpd.ReadImage(f, offset)
	if err != nil {
		return err
	}
	var value []byte
	switch kind := vpd.Identify(buf); kind {
	case vpd.KindIPZ:
		if cmd.Record == "" {
			return commands.ErrArgs{Err: fmt.Errorf("IPZ images require --record")}
		}
		p := &vpd.IPZParser{Buf: buf, Stream: f, Base: offset}
		value, err = p.ReadKeyword(cmd.Record, cmd.Keyword)
	case vpd.KindKeywordVPD:
		value, err = vpd.ReadKeywordVPD(buf, cmd.Keyword)
	case vpd.KindDDIMM:
		var d *vpd.DDIMM
		if d, err = vpd.ParseDDIMM(buf); err == nil {
			var ok bool
			if value, ok = d.Keywords.Value(cmd.Keyword); !ok {
				err = fmt.Errorf("%w: %q", vpd.ErrKeywordNotFound, cmd.Keyword)
			}
		}
	default:
		err = fmt.Errorf("%w: unrecognized VPD image", vpd.ErrMalformedData)
	}
	if err != nil {
		return err
	}
	fmt.Println(commands.Pretty(value))
	return nil
}
