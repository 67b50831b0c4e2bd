// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"time"
)

// Time is a second-resolution UTC instant. The zero value means
// "unset" and sorts before every real instant.
type Time struct {
	t time.Time
}

func NewTime(y int, mo time.Month, d, h, mi, s int) Time {
	return Time{time.Date(y, mo, d, h, mi, s, 0, time.UTC)}
}

func TimeOf(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{t.UTC().Truncate(time.Second)}
}

// ParseTime accepts full timestamps and the partial date forms used
// in matcher expressions and dataset configs: "2007", "2007-01",
// "2007-01-02", "2007-01-02 03", ... "2007-01-02T03:04:05Z".
func ParseTime(s string) (Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15",
		"2006-01-02",
		"2006-01",
		"2006",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("cannot parse time %q", s)
}

func (t Time) IsZero() bool       { return t.t.IsZero() }
func (t Time) Std() time.Time     { return t.t }
func (t Time) Before(o Time) bool { return t.t.Before(o.t) }
func (t Time) After(o Time) bool  { return t.t.After(o.t) }
func (t Time) Equal(o Time) bool  { return t.t.Equal(o.t) }

func (t Time) Compare(o Time) int {
	switch {
	case t.t.Before(o.t):
		return -1
	case t.t.After(o.t):
		return 1
	default:
		return 0
	}
}

func (t Time) Min(o Time) Time {
	if t.IsZero() || o.Before(t) {
		return o
	}
	return t
}

func (t Time) Max(o Time) Time {
	if t.IsZero() || o.After(t) {
		return o
	}
	return t
}

// String returns the canonical text form, e.g. 2007-07-08T13:00:00Z.
func (t Time) String() string {
	return t.t.Format("2006-01-02T15:04:05Z")
}

// SQL returns the form stored in the index reftime column.
func (t Time) SQL() string {
	return t.t.Format("2006-01-02 15:04:05")
}

func (t Time) encode(enc *Encoder) {
	enc.AddVarint(uint64(t.t.Year()))
	enc.AddUInt(uint64(t.t.Month()), 1)
	enc.AddUInt(uint64(t.t.Day()), 1)
	enc.AddUInt(uint64(t.t.Hour()), 1)
	enc.AddUInt(uint64(t.t.Minute()), 1)
	enc.AddUInt(uint64(t.t.Second()), 1)
}

func decodeTime(dec *Decoder, what string) (Time, error) {
	y, err := dec.PopVarint(what + " year")
	if err != nil {
		return Time{}, err
	}
	var p [5]uint64
	for i, f := range []string{"month", "day", "hour", "minute", "second"} {
		if p[i], err = dec.PopUInt(1, what+" "+f); err != nil {
			return Time{}, err
		}
	}
	return NewTime(int(y), time.Month(p[0]), int(p[1]), int(p[2]), int(p[3]), int(p[4])), nil
}

// EncodeTimeTo appends the binary form of t to enc. Used by the
// summary codec, which stores times outside of item envelopes.
func EncodeTimeTo(enc *Encoder, t Time) {
	t.encode(enc)
}

// DecodeTimeFrom reads a binary time written by EncodeTimeTo.
func DecodeTimeFrom(dec *Decoder, what string) (Time, error) {
	return decodeTime(dec, what)
}

// StartOfMonth and friends are used by step naming and by the
// summary cache to slice reftimes into month intervals.
func (t Time) StartOfMonth() Time {
	return NewTime(t.t.Year(), t.t.Month(), 1, 0, 0, 0)
}

func (t Time) NextMonth() Time {
	return Time{t.StartOfMonth().t.AddDate(0, 1, 0)}
}

func (t Time) StartOfDay() Time {
	return NewTime(t.t.Year(), t.t.Month(), t.t.Day(), 0, 0, 0)
}
