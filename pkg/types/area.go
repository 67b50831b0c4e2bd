// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type AreaStyle uint8

const (
	AreaGRIB   AreaStyle = 1
	AreaODIMH5 AreaStyle = 2
	AreaVM2    AreaStyle = 3
)

func (s AreaStyle) String() string {
	switch s {
	case AreaGRIB:
		return "GRIB"
	case AreaODIMH5:
		return "ODIMH5"
	case AreaVM2:
		return "VM2"
	}
	return fmt.Sprintf("area-style(%d)", uint8(s))
}

func ParseAreaStyle(s string) (AreaStyle, error) {
	switch s {
	case "GRIB":
		return AreaGRIB, nil
	case "ODIMH5":
		return AreaODIMH5, nil
	case "VM2":
		return AreaVM2, nil
	}
	return 0, fmt.Errorf("cannot parse area style %q", s)
}

// Area describes the geographic extent of a message: a grid
// description bag for GRIB and ODIMH5, a station id for VM2.
type Area struct {
	Style   AreaStyle
	Values  *ValueBag
	Station int
}

func NewAreaGRIB(values *ValueBag) Area {
	if values == nil {
		values = NewValueBag()
	}
	return Area{Style: AreaGRIB, Values: values}
}

func NewAreaODIMH5(values *ValueBag) Area {
	if values == nil {
		values = NewValueBag()
	}
	return Area{Style: AreaODIMH5, Values: values}
}

func NewAreaVM2(station int) Area {
	return Area{Style: AreaVM2, Station: station}
}

func (Area) Code() Code { return CodeArea }

func (a Area) String() string {
	switch a.Style {
	case AreaGRIB:
		return fmt.Sprintf("GRIB(%s)", a.Values)
	case AreaODIMH5:
		return fmt.Sprintf("ODIMH5(%s)", a.Values)
	case AreaVM2:
		return fmt.Sprintf("VM2(%d)", a.Station)
	}
	return "AREA(invalid)"
}

func (a Area) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(a.Style), 1)
	switch a.Style {
	case AreaGRIB, AreaODIMH5:
		a.Values.encode(enc)
	case AreaVM2:
		enc.AddVarint(uint64(a.Station))
	}
}

func decodeArea(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "area style")
	if err != nil {
		return nil, err
	}
	switch AreaStyle(s) {
	case AreaGRIB, AreaODIMH5:
		vals, err := decodeValueBag(dec, "area values")
		if err != nil {
			return nil, err
		}
		a := NewAreaGRIB(vals)
		a.Style = AreaStyle(s)
		return a, nil
	case AreaVM2:
		st, err := dec.PopVarint("VM2 station")
		if err != nil {
			return nil, err
		}
		return NewAreaVM2(int(st)), nil
	}
	return nil, fmt.Errorf("decoding area: unknown style %d", s)
}

func (a Area) compareLocal(oi Item) int {
	v := oi.(Area)
	if d := int(a.Style) - int(v.Style); d != 0 {
		return d
	}
	if a.Style == AreaVM2 {
		return a.Station - v.Station
	}
	return a.Values.Compare(v.Values)
}
