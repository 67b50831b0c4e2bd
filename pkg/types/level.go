// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type LevelStyle uint8

const (
	LevelGRIB1  LevelStyle = 1
	LevelGRIB2S LevelStyle = 2
	LevelGRIB2D LevelStyle = 3
)

func (s LevelStyle) String() string {
	switch s {
	case LevelGRIB1:
		return "GRIB1"
	case LevelGRIB2S:
		return "GRIB2S"
	case LevelGRIB2D:
		return "GRIB2D"
	}
	return fmt.Sprintf("level-style(%d)", uint8(s))
}

func ParseLevelStyle(s string) (LevelStyle, error) {
	switch s {
	case "GRIB1":
		return LevelGRIB1, nil
	case "GRIB2S":
		return LevelGRIB2S, nil
	case "GRIB2D":
		return LevelGRIB2D, nil
	}
	return 0, fmt.Errorf("cannot parse level style %q: only GRIB1, GRIB2S and GRIB2D are supported", s)
}

// Level describes the vertical coordinate of a message.
type Level struct {
	Style LevelStyle

	// GRIB1: LType + L1/L2 (L2 only for layer types).
	// GRIB2S: LType/Scale/Value; GRIB2D adds the second surface.
	LType  int
	L1     int
	L2     int
	Scale  int
	Value  int
	LType2 int
	Scale2 int
	Value2 int
}

func NewLevelGRIB1(ltype, l1, l2 int) Level {
	return Level{Style: LevelGRIB1, LType: ltype, L1: l1, L2: l2}
}

func NewLevelGRIB2S(ltype, scale, value int) Level {
	return Level{Style: LevelGRIB2S, LType: ltype, Scale: scale, Value: value}
}

func NewLevelGRIB2D(t1, s1, v1, t2, s2, v2 int) Level {
	return Level{Style: LevelGRIB2D, LType: t1, Scale: s1, Value: v1, LType2: t2, Scale2: s2, Value2: v2}
}

func (Level) Code() Code { return CodeLevel }

// GRIB1 level types 0..9 and a few more carry no level value; types
// in the layer range carry two.
func GRIB1LevelValueCount(ltype int) int {
	switch {
	case ltype <= 9 || ltype == 200 || ltype == 201:
		return 0
	case ltype >= 101 && ltype <= 199 && ltype%10 != 0:
		// Layer types between two surfaces.
		return 2
	case ltype == 101 || ltype == 104 || ltype == 106 || ltype == 108 ||
		ltype == 110 || ltype == 112 || ltype == 114 || ltype == 116 ||
		ltype == 120 || ltype == 121 || ltype == 128 || ltype == 141:
		return 2
	default:
		return 1
	}
}

func (l Level) String() string {
	switch l.Style {
	case LevelGRIB1:
		switch GRIB1LevelValueCount(l.LType) {
		case 0:
			return fmt.Sprintf("GRIB1(%03d)", l.LType)
		case 1:
			return fmt.Sprintf("GRIB1(%03d, %05d)", l.LType, l.L1)
		default:
			return fmt.Sprintf("GRIB1(%03d, %03d, %03d)", l.LType, l.L1, l.L2)
		}
	case LevelGRIB2S:
		return fmt.Sprintf("GRIB2S(%03d, %03d, %010d)", l.LType, l.Scale, l.Value)
	case LevelGRIB2D:
		return fmt.Sprintf("GRIB2D(%03d, %03d, %010d, %03d, %03d, %010d)",
			l.LType, l.Scale, l.Value, l.LType2, l.Scale2, l.Value2)
	}
	return "LEVEL(invalid)"
}

func (l Level) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(l.Style), 1)
	switch l.Style {
	case LevelGRIB1:
		enc.AddUInt(uint64(l.LType), 1)
		enc.AddVarint(uint64(l.L1))
		enc.AddVarint(uint64(l.L2))
	case LevelGRIB2S:
		enc.AddUInt(uint64(l.LType), 1)
		enc.AddUInt(uint64(l.Scale), 1)
		enc.AddVarint(uint64(l.Value))
	case LevelGRIB2D:
		enc.AddUInt(uint64(l.LType), 1)
		enc.AddUInt(uint64(l.Scale), 1)
		enc.AddVarint(uint64(l.Value))
		enc.AddUInt(uint64(l.LType2), 1)
		enc.AddUInt(uint64(l.Scale2), 1)
		enc.AddVarint(uint64(l.Value2))
	}
}

func decodeLevel(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "level style")
	if err != nil {
		return nil, err
	}
	switch LevelStyle(s) {
	case LevelGRIB1:
		lt, err := dec.PopUInt(1, "GRIB1 level type")
		if err != nil {
			return nil, err
		}
		l1, err := dec.PopVarint("GRIB1 l1")
		if err != nil {
			return nil, err
		}
		l2, err := dec.PopVarint("GRIB1 l2")
		if err != nil {
			return nil, err
		}
		return NewLevelGRIB1(int(lt), int(l1), int(l2)), nil
	case LevelGRIB2S:
		lt, err := dec.PopUInt(1, "GRIB2S level type")
		if err != nil {
			return nil, err
		}
		sc, err := dec.PopUInt(1, "GRIB2S scale")
		if err != nil {
			return nil, err
		}
		v, err := dec.PopVarint("GRIB2S value")
		if err != nil {
			return nil, err
		}
		return NewLevelGRIB2S(int(lt), int(sc), int(v)), nil
	case LevelGRIB2D:
		var f [6]uint64
		for i, what := range []string{"GRIB2D type1", "GRIB2D scale1", "GRIB2D value1", "GRIB2D type2", "GRIB2D scale2", "GRIB2D value2"} {
			var err error
			if i == 2 || i == 5 {
				f[i], err = dec.PopVarint(what)
			} else {
				f[i], err = dec.PopUInt(1, what)
			}
			if err != nil {
				return nil, err
			}
		}
		return NewLevelGRIB2D(int(f[0]), int(f[1]), int(f[2]), int(f[3]), int(f[4]), int(f[5])), nil
	}
	return nil, fmt.Errorf("decoding level: unknown style %d", s)
}

func (l Level) compareLocal(oi Item) int {
	v := oi.(Level)
	if d := int(l.Style) - int(v.Style); d != 0 {
		return d
	}
	for _, d := range []int{
		l.LType - v.LType, l.L1 - v.L1, l.L2 - v.L2,
		l.Scale - v.Scale, l.Value - v.Value,
		l.LType2 - v.LType2, l.Scale2 - v.Scale2, l.Value2 - v.Value2,
	} {
		if d != 0 {
			return d
		}
	}
	return 0
}
