// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package write

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openpower/govpd/cmds/vpd-tool/commands"
	"github.com/openpower/govpd/pkg/vpd"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	commands.Target
	Record  string `short:"R" long:"record" description:"record name (IPZ images only)"`
	Keyword string `short:"K" long:"keyword" description:"keyword name" required:"true"`
	Value   string `short:"V" long:"value" description:"new value; prefix with 0x for hex" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "overwrites one keyword on a VPD image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "The value is truncated to the keyword's length on the image.\n" +
		"Record ECC (IPZ) or the container checksum (keyword VPD) is refreshed."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	value, err := decodeValue(cmd.Value)
	if err != nil {
		return commands.ErrArgs{Err: err}
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
	var n int
	switch kind := vpd.Identify(buf); kind {
	case vpd.KindIPZ:
		if cmd.Record == "" {
			return commands.ErrArgs{Err: fmt.Errorf("IPZ images require --record")}
		}
		e := &vpd.Editor{File: f, Offset: offset}
		n, err = e.WriteKeyword(cmd.Record, cmd.Keyword, value)
	case vpd.KindKeywordVPD:
		e := &vpd.KeywordEditor{File: f, Offset: offset}
		n, err = e.WriteKeyword(cmd.Keyword, value)
	case vpd.KindDDIMM:
		err = fmt.Errorf("%w: DDIMM SPD is read-only", vpd.ErrInvalidArgument)
	default:
		err = fmt.Errorf("%w: unrecognized VPD image", vpd.ErrMalformedData)
	}
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes\n", n)
	return nil
}

func decodeValue(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return []byte(s), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return b, nil
}
