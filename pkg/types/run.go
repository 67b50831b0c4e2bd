// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type RunStyle uint8

const RunMinute RunStyle = 1

// Run is the daily model run, as minute of day.
type Run struct {
	Style  RunStyle
	Minute int
}

func NewRunMinute(hour, minute int) Run {
	return Run{Style: RunMinute, Minute: hour*60 + minute}
}

func (Run) Code() Code { return CodeRun }

func (r Run) String() string {
	if r.Minute%60 == 0 {
		return fmt.Sprintf("MINUTE(%02d)", r.Minute/60)
	}
	return fmt.Sprintf("MINUTE(%02d:%02d)", r.Minute/60, r.Minute%60)
}

func (r Run) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(r.Style), 1)
	enc.AddVarint(uint64(r.Minute))
}

func decodeRun(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "run style")
	if err != nil {
		return nil, err
	}
	if RunStyle(s) != RunMinute {
		return nil, fmt.Errorf("decoding run: unknown style %d", s)
	}
	m, err := dec.PopVarint("run minute")
	if err != nil {
		return nil, err
	}
	return Run{Style: RunMinute, Minute: int(m)}, nil
}

func (r Run) compareLocal(oi Item) int {
	v := oi.(Run)
	if d := int(r.Style) - int(v.Style); d != 0 {
		return d
	}
	return r.Minute - v.Minute
}
