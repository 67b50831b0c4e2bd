// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

type TimerangeStyle uint8

const (
	TimerangeGRIB1   TimerangeStyle = 1
	TimerangeGRIB2   TimerangeStyle = 2
	TimerangeTimedef TimerangeStyle = 3
	TimerangeBUFR    TimerangeStyle = 4
)

func (s TimerangeStyle) String() string {
	switch s {
	case TimerangeGRIB1:
		return "GRIB1"
	case TimerangeGRIB2:
		return "GRIB2"
	case TimerangeTimedef:
		return "Timedef"
	case TimerangeBUFR:
		return "BUFR"
	}
	return fmt.Sprintf("timerange-style(%d)", uint8(s))
}

func ParseTimerangeStyle(s string) (TimerangeStyle, error) {
	switch s {
	case "GRIB1":
		return TimerangeGRIB1, nil
	case "GRIB2":
		return TimerangeGRIB2, nil
	case "Timedef", "timedef":
		return TimerangeTimedef, nil
	case "BUFR":
		return TimerangeBUFR, nil
	}
	return 0, fmt.Errorf("cannot parse timerange style %q", s)
}

// TimeUnit is the GRIB table 4 unit of time used by timerange values.
type TimeUnit uint8

const (
	UnitMinute  TimeUnit = 0
	UnitHour    TimeUnit = 1
	UnitDay     TimeUnit = 2
	UnitMonth   TimeUnit = 3
	UnitYear    TimeUnit = 4
	UnitDecade  TimeUnit = 5
	UnitNormal  TimeUnit = 6
	UnitCentury TimeUnit = 7
	Unit3Hours  TimeUnit = 10
	Unit6Hours  TimeUnit = 11
	Unit12Hours TimeUnit = 12
	UnitSecond  TimeUnit = 254
	// 255 marks a missing unit in GRIB1 messages with no forecast step.
	UnitMissing TimeUnit = 255
)

// Normalise maps (value, unit) to a comparable magnitude: seconds for
// second-based units, months otherwise. Values in different unit
// families never compare equal.
func (u TimeUnit) Normalise(value int) (norm int64, months bool, ok bool) {
	switch u {
	case UnitSecond:
		return int64(value), false, true
	case UnitMinute:
		return int64(value) * 60, false, true
	case UnitHour:
		return int64(value) * 3600, false, true
	case UnitDay:
		return int64(value) * 86400, false, true
	case Unit3Hours:
		return int64(value) * 3 * 3600, false, true
	case Unit6Hours:
		return int64(value) * 6 * 3600, false, true
	case Unit12Hours:
		return int64(value) * 12 * 3600, false, true
	case UnitMonth:
		return int64(value), true, true
	case UnitYear:
		return int64(value) * 12, true, true
	case UnitDecade:
		return int64(value) * 120, true, true
	case UnitNormal:
		return int64(value) * 360, true, true
	case UnitCentury:
		return int64(value) * 1200, true, true
	}
	return 0, false, false
}

func (u TimeUnit) Suffix() string {
	switch u {
	case UnitSecond:
		return "s"
	case UnitMinute:
		return "m"
	case UnitHour:
		return "h"
	case UnitDay:
		return "d"
	case UnitMonth:
		return "mo"
	case UnitYear:
		return "y"
	case Unit3Hours, Unit6Hours, Unit12Hours:
		return "h"
	case UnitDecade, UnitNormal, UnitCentury:
		return "y"
	}
	return "?"
}

// ParseTimedefValue parses "72h", "30m", "6mo" into (value, unit).
func ParseTimedefValue(s string) (int, TimeUnit, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] == '+' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("cannot parse time value %q: missing number", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s[:i], "+"))
	if err != nil {
		return 0, 0, fmt.Errorf("cannot parse time value %q: %w", s, err)
	}
	switch s[i:] {
	case "s":
		return n, UnitSecond, nil
	case "m":
		return n, UnitMinute, nil
	case "h":
		return n, UnitHour, nil
	case "d":
		return n, UnitDay, nil
	case "mo":
		return n, UnitMonth, nil
	case "y":
		return n, UnitYear, nil
	}
	return 0, 0, fmt.Errorf("cannot parse time value %q: unknown unit %q", s, s[i:])
}

// Timerange describes the forecast step and statistical processing of
// a message.
type Timerange struct {
	Style TimerangeStyle

	// GRIB1/GRIB2 quadruplet.
	Type int
	Unit TimeUnit
	P1   int
	P2   int

	// Timedef: forecast step, optional statistical processing.
	StepLen  int
	StepUnit TimeUnit
	// StatType < 0 means no statistical processing.
	StatType int
	StatLen  int
	StatUnit TimeUnit

	// BUFR forecast offset.
	Value int
}

func NewTimerangeGRIB1(typ int, unit TimeUnit, p1, p2 int) Timerange {
	return Timerange{Style: TimerangeGRIB1, Type: typ, Unit: unit, P1: p1, P2: p2}
}

func NewTimerangeGRIB2(typ int, unit TimeUnit, p1, p2 int) Timerange {
	return Timerange{Style: TimerangeGRIB2, Type: typ, Unit: unit, P1: p1, P2: p2}
}

func NewTimedef(stepLen int, stepUnit TimeUnit, statType, statLen int, statUnit TimeUnit) Timerange {
	return Timerange{
		Style: TimerangeTimedef, StepLen: stepLen, StepUnit: stepUnit,
		StatType: statType, StatLen: statLen, StatUnit: statUnit,
	}
}

func NewTimedefForecast(stepLen int, stepUnit TimeUnit) Timerange {
	return Timerange{Style: TimerangeTimedef, StepLen: stepLen, StepUnit: stepUnit, StatType: -1}
}

func NewTimerangeBUFR(value int, unit TimeUnit) Timerange {
	return Timerange{Style: TimerangeBUFR, Unit: unit, Value: value}
}

func (Timerange) Code() Code { return CodeTimerange }

func (t Timerange) String() string {
	switch t.Style {
	case TimerangeGRIB1:
		return fmt.Sprintf("GRIB1(%03d, %03d%s, %03d%s)", t.Type, t.P1, t.Unit.Suffix(), t.P2, t.Unit.Suffix())
	case TimerangeGRIB2:
		return fmt.Sprintf("GRIB2(%03d, %03d, %d, %d)", t.Type, uint8(t.Unit), t.P1, t.P2)
	case TimerangeTimedef:
		if t.StatType < 0 {
			return fmt.Sprintf("Timedef(%d%s)", t.StepLen, t.StepUnit.Suffix())
		}
		return fmt.Sprintf("Timedef(%d%s, %d, %d%s)",
			t.StepLen, t.StepUnit.Suffix(), t.StatType, t.StatLen, t.StatUnit.Suffix())
	case TimerangeBUFR:
		return fmt.Sprintf("BUFR(%d%s)", t.Value, t.Unit.Suffix())
	}
	return "TIMERANGE(invalid)"
}

// GRIB1Normalised reduces equivalent GRIB1 timeranges to a canonical
// (type, seconds-or-months values) triple so that e.g. (0, 1h, 0) and
// (0, 60m, 0) compare and match equal.
func (t Timerange) GRIB1Normalised() (typ int, p1, p2 int64, months bool) {
	p1, months, _ = t.Unit.Normalise(t.P1)
	p2, _, _ = t.Unit.Normalise(t.P2)
	return t.Type, p1, p2, months
}

func (t Timerange) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(t.Style), 1)
	switch t.Style {
	case TimerangeGRIB1, TimerangeGRIB2:
		enc.AddUInt(uint64(t.Type), 1)
		enc.AddUInt(uint64(t.Unit), 1)
		enc.AddSVarint(int64(t.P1))
		enc.AddSVarint(int64(t.P2))
	case TimerangeTimedef:
		enc.AddSVarint(int64(t.StepLen))
		enc.AddUInt(uint64(t.StepUnit), 1)
		if t.StatType < 0 {
			enc.AddUInt(0, 1)
		} else {
			enc.AddUInt(1, 1)
			enc.AddUInt(uint64(t.StatType), 1)
			enc.AddSVarint(int64(t.StatLen))
			enc.AddUInt(uint64(t.StatUnit), 1)
		}
	case TimerangeBUFR:
		enc.AddUInt(uint64(t.Unit), 1)
		enc.AddSVarint(int64(t.Value))
	}
}

func decodeTimerange(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "timerange style")
	if err != nil {
		return nil, err
	}
	switch TimerangeStyle(s) {
	case TimerangeGRIB1, TimerangeGRIB2:
		typ, err := dec.PopUInt(1, "timerange type")
		if err != nil {
			return nil, err
		}
		unit, err := dec.PopUInt(1, "timerange unit")
		if err != nil {
			return nil, err
		}
		p1, err := dec.PopSVarint("timerange p1")
		if err != nil {
			return nil, err
		}
		p2, err := dec.PopSVarint("timerange p2")
		if err != nil {
			return nil, err
		}
		tr := NewTimerangeGRIB1(int(typ), TimeUnit(unit), int(p1), int(p2))
		tr.Style = TimerangeStyle(s)
		return tr, nil
	case TimerangeTimedef:
		stepLen, err := dec.PopSVarint("timedef step")
		if err != nil {
			return nil, err
		}
		stepUnit, err := dec.PopUInt(1, "timedef step unit")
		if err != nil {
			return nil, err
		}
		hasStat, err := dec.PopUInt(1, "timedef stat flag")
		if err != nil {
			return nil, err
		}
		if hasStat == 0 {
			return NewTimedefForecast(int(stepLen), TimeUnit(stepUnit)), nil
		}
		statType, err := dec.PopUInt(1, "timedef stat type")
		if err != nil {
			return nil, err
		}
		statLen, err := dec.PopSVarint("timedef stat length")
		if err != nil {
			return nil, err
		}
		statUnit, err := dec.PopUInt(1, "timedef stat unit")
		if err != nil {
			return nil, err
		}
		return NewTimedef(int(stepLen), TimeUnit(stepUnit), int(statType), int(statLen), TimeUnit(statUnit)), nil
	case TimerangeBUFR:
		unit, err := dec.PopUInt(1, "BUFR timerange unit")
		if err != nil {
			return nil, err
		}
		v, err := dec.PopSVarint("BUFR timerange value")
		if err != nil {
			return nil, err
		}
		return NewTimerangeBUFR(int(v), TimeUnit(unit)), nil
	}
	return nil, fmt.Errorf("decoding timerange: unknown style %d", s)
}

func (t Timerange) compareLocal(oi Item) int {
	v := oi.(Timerange)
	if d := int(t.Style) - int(v.Style); d != 0 {
		return d
	}
	switch t.Style {
	case TimerangeGRIB1:
		tt, tp1, tp2, tm := t.GRIB1Normalised()
		vt, vp1, vp2, vm := v.GRIB1Normalised()
		if d := tt - vt; d != 0 {
			return d
		}
		if tm != vm {
			if tm {
				return 1
			}
			return -1
		}
		if tp1 != vp1 {
			if tp1 < vp1 {
				return -1
			}
			return 1
		}
		if tp2 != vp2 {
			if tp2 < vp2 {
				return -1
			}
			return 1
		}
		return 0
	case TimerangeGRIB2:
		for _, d := range []int{t.Type - v.Type, int(t.Unit) - int(v.Unit), t.P1 - v.P1, t.P2 - v.P2} {
			if d != 0 {
				return d
			}
		}
	case TimerangeTimedef:
		ts, tm, _ := t.StepUnit.Normalise(t.StepLen)
		vs, vm, _ := v.StepUnit.Normalise(v.StepLen)
		if tm != vm {
			if tm {
				return 1
			}
			return -1
		}
		if ts != vs {
			if ts < vs {
				return -1
			}
			return 1
		}
		if d := t.StatType - v.StatType; d != 0 {
			return d
		}
		if t.StatType >= 0 {
			ts, tm, _ = t.StatUnit.Normalise(t.StatLen)
			vs, vm, _ = v.StatUnit.Normalise(v.StatLen)
			if tm != vm {
				if tm {
					return 1
				}
				return -1
			}
			if ts != vs {
				if ts < vs {
					return -1
				}
				return 1
			}
		}
	case TimerangeBUFR:
		ts, tm, _ := t.Unit.Normalise(t.Value)
		vs, vm, _ := v.Unit.Normalise(v.Value)
		if tm != vm {
			if tm {
				return 1
			}
			return -1
		}
		if ts != vs {
			if ts < vs {
				return -1
			}
			return 1
		}
	}
	return 0
}
