// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type ReftimeStyle uint8

const (
	ReftimePosition ReftimeStyle = 1
	ReftimePeriod   ReftimeStyle = 2
)

// Reftime is the reference time of a message: a single instant
// (Position) or a [Begin, End] envelope (Period).
type Reftime struct {
	Style ReftimeStyle
	Begin Time
	End   Time
}

func NewReftimePosition(t Time) Reftime {
	return Reftime{Style: ReftimePosition, Begin: t, End: t}
}

func NewReftimePeriod(begin, end Time) Reftime {
	if end.Before(begin) {
		begin, end = end, begin
	}
	return Reftime{Style: ReftimePeriod, Begin: begin, End: end}
}

func (Reftime) Code() Code { return CodeReftime }

// Merge extends the envelope to cover both reftimes. Merging two
// Positions yields a Period unless they are the same instant.
func (r Reftime) Merge(o Reftime) Reftime {
	begin := r.Begin
	if o.Begin.Before(begin) {
		begin = o.Begin
	}
	end := r.End
	if o.End.After(end) {
		end = o.End
	}
	if begin.Equal(end) && r.Style == ReftimePosition && o.Style == ReftimePosition {
		return NewReftimePosition(begin)
	}
	return NewReftimePeriod(begin, end)
}

// Period returns the reftime as a begin <= end pair regardless of
// style.
func (r Reftime) Period() (Time, Time) {
	return r.Begin, r.End
}

func (r Reftime) String() string {
	if r.Style == ReftimePosition {
		return r.Begin.String()
	}
	return fmt.Sprintf("%s to %s", r.Begin, r.End)
}

func (r Reftime) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(r.Style), 1)
	r.Begin.encode(enc)
	if r.Style == ReftimePeriod {
		r.End.encode(enc)
	}
}

func decodeReftime(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "reftime style")
	if err != nil {
		return nil, err
	}
	switch ReftimeStyle(s) {
	case ReftimePosition:
		t, err := decodeTime(dec, "reftime position")
		if err != nil {
			return nil, err
		}
		return NewReftimePosition(t), nil
	case ReftimePeriod:
		begin, err := decodeTime(dec, "reftime begin")
		if err != nil {
			return nil, err
		}
		end, err := decodeTime(dec, "reftime end")
		if err != nil {
			return nil, err
		}
		return NewReftimePeriod(begin, end), nil
	}
	return nil, fmt.Errorf("decoding reftime: unknown style %d", s)
}

func (r Reftime) compareLocal(oi Item) int {
	v := oi.(Reftime)
	if d := r.Begin.Compare(v.Begin); d != 0 {
		return d
	}
	return r.End.Compare(v.End)
}
