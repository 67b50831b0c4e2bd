// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meteo-dpc/arkive/pkg/types"
)

/* origin */

type MatchOrigin struct {
	style types.OriginStyle
	// Field wildcards are expressed by the present flags.
	fields  [5]int
	present [5]bool
}

func parseMatchOrigin(pattern string) (implementation, error) {
	style, args, err := styleAndInts(pattern, 5)
	if err != nil {
		return nil, err
	}
	m := &MatchOrigin{}
	if m.style, err = types.ParseOriginStyle(style); err != nil {
		return nil, err
	}
	copy(m.fields[:], args.values[:])
	copy(m.present[:], args.present[:])
	return m, nil
}

func (*MatchOrigin) Code() types.Code { return types.CodeOrigin }

func (m *MatchOrigin) MatchItem(it types.Item) bool {
	o, ok := it.(types.Origin)
	if !ok || o.Style != m.style {
		return false
	}
	switch m.style {
	case types.OriginGRIB1:
		return matchOptInt(m.fields[0], m.present[0], o.Centre) &&
			matchOptInt(m.fields[1], m.present[1], o.Subcentre) &&
			matchOptInt(m.fields[2], m.present[2], o.Process)
	case types.OriginGRIB2:
		return matchOptInt(m.fields[0], m.present[0], o.Centre) &&
			matchOptInt(m.fields[1], m.present[1], o.Subcentre) &&
			matchOptInt(m.fields[2], m.present[2], o.ProcessType) &&
			matchOptInt(m.fields[3], m.present[3], o.BgProcessID) &&
			matchOptInt(m.fields[4], m.present[4], o.Process)
	case types.OriginBUFR:
		return matchOptInt(m.fields[0], m.present[0], o.Centre) &&
			matchOptInt(m.fields[1], m.present[1], o.Subcentre)
	}
	return false
}

func (m *MatchOrigin) String() string {
	n := 3
	if m.style == types.OriginGRIB2 {
		n = 5
	} else if m.style == types.OriginBUFR {
		n = 2
	}
	return m.style.String() + formatOptInts(m.fields[:n], m.present[:n])
}

/* product */

type MatchProduct struct {
	style   types.ProductStyle
	fields  [4]int
	present [4]bool
	// BUFR and area-style bag subsets.
	values *types.ValueBag
	// ODIMH5 object/product.
	object string
	prod   string
}

func parseMatchProduct(pattern string) (implementation, error) {
	style, args := splitPattern(pattern)
	m := &MatchProduct{}
	var err error
	if m.style, err = types.ParseProductStyle(style); err != nil {
		return nil, err
	}
	switch m.style {
	case ProductStyleODIMH5:
		if len(args) > 0 {
			m.object = args[0]
		}
		if len(args) > 1 {
			m.prod = args[1]
		}
	case ProductStyleBUFR:
		// Trailing key=value args become a bag subset match.
		nint := 0
		for nint < len(args) && nint < 3 && !strings.Contains(args[nint], "=") {
			if m.fields[nint], m.present[nint], err = optInt(args, nint); err != nil {
				return nil, err
			}
			nint++
		}
		if nint < len(args) {
			if m.values, err = types.ParseValueBag(strings.Join(args[nint:], ",")); err != nil {
				return nil, err
			}
		}
	default:
		for i := 0; i < 4; i++ {
			if m.fields[i], m.present[i], err = optInt(args, i); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Style aliases local to product parsing, to keep the switch readable.
const (
	ProductStyleODIMH5 = types.ProductODIMH5
	ProductStyleBUFR   = types.ProductBUFR
)

func (*MatchProduct) Code() types.Code { return types.CodeProduct }

func (m *MatchProduct) MatchItem(it types.Item) bool {
	p, ok := it.(types.Product)
	if !ok || p.Style != m.style {
		return false
	}
	switch m.style {
	case types.ProductGRIB1:
		return matchOptInt(m.fields[0], m.present[0], p.Origin) &&
			matchOptInt(m.fields[1], m.present[1], p.Table) &&
			matchOptInt(m.fields[2], m.present[2], p.Number)
	case types.ProductGRIB2:
		return matchOptInt(m.fields[0], m.present[0], p.Centre) &&
			matchOptInt(m.fields[1], m.present[1], p.Discipline) &&
			matchOptInt(m.fields[2], m.present[2], p.Category) &&
			matchOptInt(m.fields[3], m.present[3], p.Number)
	case types.ProductBUFR:
		if !matchOptInt(m.fields[0], m.present[0], p.Type) ||
			!matchOptInt(m.fields[1], m.present[1], p.Subtype) ||
			!matchOptInt(m.fields[2], m.present[2], p.LocalSubtype) {
			return false
		}
		return m.values == nil || (p.Values != nil && p.Values.Contains(m.values))
	case types.ProductODIMH5:
		return (m.object == "" || m.object == p.Object) &&
			(m.prod == "" || m.prod == p.Prod)
	case types.ProductVM2:
		return matchOptInt(m.fields[0], m.present[0], p.VariableID)
	}
	return false
}

func (m *MatchProduct) String() string {
	switch m.style {
	case types.ProductODIMH5:
		return fmt.Sprintf("ODIMH5,%s,%s", m.object, m.prod)
	case types.ProductBUFR:
		s := "BUFR" + formatOptInts(m.fields[:3], m.present[:3])
		if m.values.Len() > 0 {
			s += ":" + m.values.String()
		}
		return s
	case types.ProductVM2:
		return "VM2" + formatOptInts(m.fields[:1], m.present[:1])
	case types.ProductGRIB2:
		return "GRIB2" + formatOptInts(m.fields[:4], m.present[:4])
	default:
		return "GRIB1" + formatOptInts(m.fields[:3], m.present[:3])
	}
}

/* level */

type MatchLevel struct {
	style   types.LevelStyle
	fields  [6]int
	present [6]bool
}

func parseMatchLevel(pattern string) (implementation, error) {
	style, args, err := styleAndInts(pattern, 6)
	if err != nil {
		return nil, err
	}
	m := &MatchLevel{}
	if m.style, err = types.ParseLevelStyle(style); err != nil {
		return nil, err
	}
	copy(m.fields[:], args.values[:])
	copy(m.present[:], args.present[:])
	return m, nil
}

func (*MatchLevel) Code() types.Code { return types.CodeLevel }

func (m *MatchLevel) MatchItem(it types.Item) bool {
	l, ok := it.(types.Level)
	if !ok || l.Style != m.style {
		return false
	}
	switch m.style {
	case types.LevelGRIB1:
		return matchOptInt(m.fields[0], m.present[0], l.LType) &&
			matchOptInt(m.fields[1], m.present[1], l.L1) &&
			matchOptInt(m.fields[2], m.present[2], l.L2)
	case types.LevelGRIB2S:
		return matchOptInt(m.fields[0], m.present[0], l.LType) &&
			matchOptInt(m.fields[1], m.present[1], l.Scale) &&
			matchOptInt(m.fields[2], m.present[2], l.Value)
	case types.LevelGRIB2D:
		return matchOptInt(m.fields[0], m.present[0], l.LType) &&
			matchOptInt(m.fields[1], m.present[1], l.Scale) &&
			matchOptInt(m.fields[2], m.present[2], l.Value) &&
			matchOptInt(m.fields[3], m.present[3], l.LType2) &&
			matchOptInt(m.fields[4], m.present[4], l.Scale2) &&
			matchOptInt(m.fields[5], m.present[5], l.Value2)
	}
	return false
}

func (m *MatchLevel) String() string {
	n := 3
	if m.style == types.LevelGRIB2D {
		n = 6
	}
	return m.style.String() + formatOptInts(m.fields[:n], m.present[:n])
}

/* area */

type MatchArea struct {
	style   types.AreaStyle
	values  *types.ValueBag
	station int
	hasSta  bool
}

func parseMatchArea(pattern string) (implementation, error) {
	style, args := splitPattern(pattern)
	m := &MatchArea{}
	var err error
	if m.style, err = types.ParseAreaStyle(style); err != nil {
		return nil, err
	}
	if m.style == types.AreaVM2 {
		if m.station, m.hasSta, err = optInt(args, 0); err != nil {
			return nil, err
		}
		return m, nil
	}
	if len(args) > 0 {
		if m.values, err = types.ParseValueBag(strings.Join(args, ",")); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (*MatchArea) Code() types.Code { return types.CodeArea }

func (m *MatchArea) MatchItem(it types.Item) bool {
	a, ok := it.(types.Area)
	if !ok || a.Style != m.style {
		return false
	}
	if m.style == types.AreaVM2 {
		return !m.hasSta || a.Station == m.station
	}
	return m.values == nil || (a.Values != nil && a.Values.Contains(m.values))
}

func (m *MatchArea) String() string {
	if m.style == types.AreaVM2 {
		if m.hasSta {
			return fmt.Sprintf("VM2,%d", m.station)
		}
		return "VM2"
	}
	if m.values.Len() == 0 {
		return m.style.String()
	}
	return m.style.String() + ":" + m.values.String()
}

/* proddef */

type MatchProddef struct {
	values *types.ValueBag
}

func parseMatchProddef(pattern string) (implementation, error) {
	style, args := splitPattern(pattern)
	if style != "GRIB" {
		return nil, fmt.Errorf("cannot parse proddef style %q: only GRIB is supported", style)
	}
	m := &MatchProddef{}
	if len(args) > 0 {
		var err error
		if m.values, err = types.ParseValueBag(strings.Join(args, ",")); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (*MatchProddef) Code() types.Code { return types.CodeProddef }

func (m *MatchProddef) MatchItem(it types.Item) bool {
	p, ok := it.(types.Proddef)
	if !ok {
		return false
	}
	return m.values == nil || (p.Values != nil && p.Values.Contains(m.values))
}

func (m *MatchProddef) String() string {
	if m.values.Len() == 0 {
		return "GRIB"
	}
	return "GRIB:" + m.values.String()
}

/* quantity */

type MatchQuantity struct {
	values []string
}

func parseMatchQuantity(pattern string) (implementation, error) {
	m := &MatchQuantity{}
	for _, v := range strings.Split(pattern, ",") {
		if v = strings.TrimSpace(v); v != "" {
			m.values = append(m.values, v)
		}
	}
	return m, nil
}

func (*MatchQuantity) Code() types.Code { return types.CodeQuantity }

func (m *MatchQuantity) MatchItem(it types.Item) bool {
	q, ok := it.(types.Quantity)
	if !ok {
		return false
	}
	for _, v := range m.values {
		if !q.Has(v) {
			return false
		}
	}
	return true
}

func (m *MatchQuantity) String() string { return strings.Join(m.values, ",") }

/* task */

type MatchTask struct {
	substr string
}

func parseMatchTask(pattern string) (implementation, error) {
	return &MatchTask{substr: strings.TrimSpace(pattern)}, nil
}

func (*MatchTask) Code() types.Code { return types.CodeTask }

func (m *MatchTask) MatchItem(it types.Item) bool {
	t, ok := it.(types.Task)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(t.Value), strings.ToLower(m.substr))
}

func (m *MatchTask) String() string { return m.substr }

/* run */

type MatchRun struct {
	minute  int
	hasTime bool
}

func parseMatchRun(pattern string) (implementation, error) {
	style, args := splitPattern(pattern)
	if !strings.EqualFold(style, "MINUTE") {
		return nil, fmt.Errorf("cannot parse run style %q: only MINUTE is supported", style)
	}
	m := &MatchRun{}
	if len(args) == 0 || args[0] == "" {
		return m, nil
	}
	hm := strings.SplitN(args[0], ":", 2)
	h, err := strconv.Atoi(hm[0])
	if err != nil {
		return nil, fmt.Errorf("cannot parse run hour %q", args[0])
	}
	minute := 0
	if len(hm) == 2 {
		if minute, err = strconv.Atoi(hm[1]); err != nil {
			return nil, fmt.Errorf("cannot parse run minute %q", args[0])
		}
	}
	m.minute = h*60 + minute
	m.hasTime = true
	return m, nil
}

func (*MatchRun) Code() types.Code { return types.CodeRun }

func (m *MatchRun) MatchItem(it types.Item) bool {
	r, ok := it.(types.Run)
	if !ok {
		return false
	}
	return !m.hasTime || r.Minute == m.minute
}

func (m *MatchRun) String() string {
	if !m.hasTime {
		return "MINUTE"
	}
	return fmt.Sprintf("MINUTE,%02d:%02d", m.minute/60, m.minute%60)
}

/* helpers */

type intArgs struct {
	values  [6]int
	present [6]bool
}

func styleAndInts(pattern string, n int) (string, intArgs, error) {
	style, args := splitPattern(pattern)
	var out intArgs
	for i := 0; i < n && i < len(args); i++ {
		var err error
		if out.values[i], out.present[i], err = optInt(args, i); err != nil {
			return "", out, err
		}
	}
	return style, out, nil
}

func formatOptInts(values []int, present []bool) string {
	// Trailing wildcards are omitted from the canonical form.
	last := len(values)
	for last > 0 && !present[last-1] {
		last--
	}
	var sb strings.Builder
	for i := 0; i < last; i++ {
		sb.WriteByte(',')
		if present[i] {
			sb.WriteString(strconv.Itoa(values[i]))
		}
	}
	return sb.String()
}
