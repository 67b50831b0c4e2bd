// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BagValue is either an integer or a string. Exactly one of the two
// is meaningful, selected by IsInt.
type BagValue struct {
	IsInt bool
	Int   int64
	Str   string
}

func IntValue(v int64) BagValue   { return BagValue{IsInt: true, Int: v} }
func StrValue(s string) BagValue  { return BagValue{Str: s} }

func (v BagValue) String() string {
	if v.IsInt {
		return strconv.FormatInt(v.Int, 10)
	}
	return strconv.Quote(v.Str)
}

func (v BagValue) Compare(o BagValue) int {
	// Integers sort before strings.
	if v.IsInt != o.IsInt {
		if v.IsInt {
			return -1
		}
		return 1
	}
	if v.IsInt {
		switch {
		case v.Int < o.Int:
			return -1
		case v.Int > o.Int:
			return 1
		}
		return 0
	}
	return strings.Compare(v.Str, o.Str)
}

// ValueBag is an ordered {key: int|string} map used by the GRIB area,
// proddef and ensemble items and by BUFR products. Keys are kept
// sorted, making the binary and text forms canonical.
type ValueBag struct {
	keys []string
	vals map[string]BagValue
}

func NewValueBag() *ValueBag {
	return &ValueBag{vals: make(map[string]BagValue)}
}

func (b *ValueBag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

func (b *ValueBag) Set(key string, v BagValue) {
	if _, ok := b.vals[key]; !ok {
		i := sort.SearchStrings(b.keys, key)
		b.keys = append(b.keys, "")
		copy(b.keys[i+1:], b.keys[i:])
		b.keys[i] = key
	}
	b.vals[key] = v
}

func (b *ValueBag) Get(key string) (BagValue, bool) {
	if b == nil {
		return BagValue{}, false
	}
	v, ok := b.vals[key]
	return v, ok
}

func (b *ValueBag) Keys() []string { return b.keys }

// Contains reports whether every entry of o is present in b with the
// same value. Used by matchers, which express bag subsets.
func (b *ValueBag) Contains(o *ValueBag) bool {
	for _, k := range o.keys {
		v, ok := b.Get(k)
		if !ok || v.Compare(o.vals[k]) != 0 {
			return false
		}
	}
	return true
}

func (b *ValueBag) Compare(o *ValueBag) int {
	bl, ol := b.Len(), o.Len()
	for i := 0; i < bl && i < ol; i++ {
		if d := strings.Compare(b.keys[i], o.keys[i]); d != 0 {
			return d
		}
		if d := b.vals[b.keys[i]].Compare(o.vals[o.keys[i]]); d != 0 {
			return d
		}
	}
	return bl - ol
}

func (b *ValueBag) String() string {
	var sb strings.Builder
	for i, k := range b.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v := b.vals[k]
		fmt.Fprintf(&sb, "%s=%s", k, v.String())
	}
	return sb.String()
}

func (b *ValueBag) encode(enc *Encoder) {
	enc.AddVarint(uint64(b.Len()))
	for _, k := range b.Keys() {
		enc.AddString(k)
		v := b.vals[k]
		if v.IsInt {
			enc.AddUInt(0, 1)
			enc.AddSVarint(v.Int)
		} else {
			enc.AddUInt(1, 1)
			enc.AddString(v.Str)
		}
	}
}

func decodeValueBag(dec *Decoder, what string) (*ValueBag, error) {
	n, err := dec.PopVarint(what + " entry count")
	if err != nil {
		return nil, err
	}
	b := NewValueBag()
	for i := uint64(0); i < n; i++ {
		k, err := dec.PopString(what + " key")
		if err != nil {
			return nil, err
		}
		tag, err := dec.PopUInt(1, what+" value tag")
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			v, err := dec.PopSVarint(what + " int value")
			if err != nil {
				return nil, err
			}
			b.Set(k, IntValue(v))
		case 1:
			s, err := dec.PopString(what + " string value")
			if err != nil {
				return nil, err
			}
			b.Set(k, StrValue(s))
		default:
			return nil, fmt.Errorf("decoding %s: unknown value tag %d", what, tag)
		}
	}
	return b, nil
}

// ParseValueBag parses the text form "k=1, name=\"x\"". It accepts
// bare words as string values for convenience in matcher expressions.
func ParseValueBag(s string) (*ValueBag, error) {
	b := NewValueBag()
	s = strings.TrimSpace(s)
	if s == "" {
		return b, nil
	}
	for _, part := range splitBagEntries(s) {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("cannot parse value %q: missing '='", part)
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		if key == "" {
			return nil, fmt.Errorf("cannot parse value %q: empty key", part)
		}
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			b.Set(key, IntValue(n))
		} else if uq, err := strconv.Unquote(val); err == nil {
			b.Set(key, StrValue(uq))
		} else {
			b.Set(key, StrValue(val))
		}
	}
	return b, nil
}

// splitBagEntries splits on commas that are not inside quotes.
func splitBagEntries(s string) []string {
	var parts []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
			cur.WriteByte(c)
		case c == '\\' && quoted && i+1 < len(s):
			cur.WriteByte(c)
			i++
			cur.WriteByte(s[i])
		case c == ',' && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
