// Copyright 2025 the govpd Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"io"

	"github.com/openpower/govpd/pkg/vpd"
)

// KeywordDump is one keyword in a decoded image, with the value prettied
// for display.
type KeywordDump struct {
	Record  string `json:"record,omitempty"`
	Keyword string `json:"keyword"`
	Value   string `json:"value"`
}

// ImageDump is the decoded view of a whole VPD image.
type ImageDump struct {
	Kind     string        `json:"kind"`
	SizeKB   uint64        `json:"memorySizeInKB,omitempty"`
	Keywords []KeywordDump `json:"keywords"`
}

// Dump decodes every keyword of the image at offset.
func Dump(f io.ReadWriteSeeker, offset int64) (*ImageDump, error) {
	buf, err := vpd.ReadImage(f, offset)
	if err != nil {
		return nil, err
	}
	kind := vpd.Identify(buf)
	out := &ImageDump{Kind: kind.String()}
	switch kind {
	case vpd.KindIPZ:
		p := &vpd.IPZParser{Buf: buf, Stream: f, Base: offset}
		rm, err := p.Parse()
		if err != nil {
			return nil, err
		}
		for _, rec := range rm.Records {
			for _, kw := range rec.Keywords {
				out.Keywords = append(out.Keywords, KeywordDump{
					Record:  rec.Name,
					Keyword: kw.Name,
					Value:   Pretty(kw.Value),
				})
			}
		}
	case vpd.KindKeywordVPD:
		km, err := vpd.ParseKeywordVPD(buf)
		if err != nil {
			return nil, err
		}
		for _, kw := range km.Keywords {
			out.Keywords = append(out.Keywords, KeywordDump{Keyword: kw.Name, Value: Pretty(kw.Value)})
		}
	case vpd.KindDDIMM:
		d, err := vpd.ParseDDIMM(buf)
		if err != nil {
			return nil, err
		}
		out.SizeKB = d.SizeKB
		for _, kw := range d.Keywords.Keywords {
			out.Keywords = append(out.Keywords, KeywordDump{Keyword: kw.Name, Value: Pretty(kw.Value)})
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized VPD image", vpd.ErrMalformedData)
	}
	return out, nil
}
