// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type OriginStyle uint8

const (
	OriginGRIB1 OriginStyle = 1
	OriginGRIB2 OriginStyle = 2
	OriginBUFR  OriginStyle = 3
)

func (s OriginStyle) String() string {
	switch s {
	case OriginGRIB1:
		return "GRIB1"
	case OriginGRIB2:
		return "GRIB2"
	case OriginBUFR:
		return "BUFR"
	}
	return fmt.Sprintf("origin-style(%d)", uint8(s))
}

func ParseOriginStyle(s string) (OriginStyle, error) {
	switch s {
	case "GRIB1":
		return OriginGRIB1, nil
	case "GRIB2":
		return OriginGRIB2, nil
	case "BUFR":
		return OriginBUFR, nil
	}
	return 0, fmt.Errorf("cannot parse origin style %q: only GRIB1, GRIB2 and BUFR are supported", s)
}

// Origin identifies the producing centre of a message.
type Origin struct {
	Style     OriginStyle
	Centre    int
	Subcentre int
	// GRIB1 generating process, or the GRIB2 triplet below.
	Process     int
	ProcessType int
	BgProcessID int
}

func NewOriginGRIB1(centre, subcentre, process int) Origin {
	return Origin{Style: OriginGRIB1, Centre: centre, Subcentre: subcentre, Process: process}
}

func NewOriginGRIB2(centre, subcentre, processType, bgProcessID, processID int) Origin {
	return Origin{
		Style: OriginGRIB2, Centre: centre, Subcentre: subcentre,
		ProcessType: processType, BgProcessID: bgProcessID, Process: processID,
	}
}

func NewOriginBUFR(centre, subcentre int) Origin {
	return Origin{Style: OriginBUFR, Centre: centre, Subcentre: subcentre}
}

func (Origin) Code() Code { return CodeOrigin }

func (o Origin) String() string {
	switch o.Style {
	case OriginGRIB1:
		return fmt.Sprintf("GRIB1(%03d, %03d, %03d)", o.Centre, o.Subcentre, o.Process)
	case OriginGRIB2:
		return fmt.Sprintf("GRIB2(%05d, %05d, %03d, %03d, %03d)",
			o.Centre, o.Subcentre, o.ProcessType, o.BgProcessID, o.Process)
	case OriginBUFR:
		return fmt.Sprintf("BUFR(%03d, %03d)", o.Centre, o.Subcentre)
	}
	return "ORIGIN(invalid)"
}

func (o Origin) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(o.Style), 1)
	switch o.Style {
	case OriginGRIB1:
		enc.AddUInt(uint64(o.Centre), 1)
		enc.AddUInt(uint64(o.Subcentre), 1)
		enc.AddUInt(uint64(o.Process), 1)
	case OriginGRIB2:
		enc.AddUInt(uint64(o.Centre), 2)
		enc.AddUInt(uint64(o.Subcentre), 2)
		enc.AddUInt(uint64(o.ProcessType), 1)
		enc.AddUInt(uint64(o.BgProcessID), 1)
		enc.AddUInt(uint64(o.Process), 1)
	case OriginBUFR:
		enc.AddUInt(uint64(o.Centre), 1)
		enc.AddUInt(uint64(o.Subcentre), 1)
	}
}

func decodeOrigin(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "origin style")
	if err != nil {
		return nil, err
	}
	switch OriginStyle(s) {
	case OriginGRIB1:
		c, err := dec.PopUInt(1, "GRIB1 centre")
		if err != nil {
			return nil, err
		}
		sc, err := dec.PopUInt(1, "GRIB1 subcentre")
		if err != nil {
			return nil, err
		}
		p, err := dec.PopUInt(1, "GRIB1 process")
		if err != nil {
			return nil, err
		}
		return NewOriginGRIB1(int(c), int(sc), int(p)), nil
	case OriginGRIB2:
		c, err := dec.PopUInt(2, "GRIB2 centre")
		if err != nil {
			return nil, err
		}
		sc, err := dec.PopUInt(2, "GRIB2 subcentre")
		if err != nil {
			return nil, err
		}
		pt, err := dec.PopUInt(1, "GRIB2 process type")
		if err != nil {
			return nil, err
		}
		bg, err := dec.PopUInt(1, "GRIB2 background process")
		if err != nil {
			return nil, err
		}
		p, err := dec.PopUInt(1, "GRIB2 process")
		if err != nil {
			return nil, err
		}
		return NewOriginGRIB2(int(c), int(sc), int(pt), int(bg), int(p)), nil
	case OriginBUFR:
		c, err := dec.PopUInt(1, "BUFR centre")
		if err != nil {
			return nil, err
		}
		sc, err := dec.PopUInt(1, "BUFR subcentre")
		if err != nil {
			return nil, err
		}
		return NewOriginBUFR(int(c), int(sc)), nil
	}
	return nil, fmt.Errorf("decoding origin: unknown style %d", s)
}

func (o Origin) compareLocal(oi Item) int {
	v := oi.(Origin)
	if d := int(o.Style) - int(v.Style); d != 0 {
		return d
	}
	for _, d := range []int{
		o.Centre - v.Centre,
		o.Subcentre - v.Subcentre,
		o.ProcessType - v.ProcessType,
		o.BgProcessID - v.BgProcessID,
		o.Process - v.Process,
	} {
		if d != 0 {
			return d
		}
	}
	return 0
}
