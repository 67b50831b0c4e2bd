// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// dtOp is one date constraint of a reftime subpattern.
type dtOp struct {
	op   string // ">=", "<=", ">", "<", "="
	text string // the date as written, kept for round-tripping
	// The parsed bound, expanded to the interval covered by a
	// partial date: "=2007" covers the whole year.
	lo types.Time
	hi types.Time // exclusive
}

// MatchReftime is an AND of date constraints, e.g.
// ">=2007-01-01,<2008-01-01".
type MatchReftime struct {
	ops []dtOp
}

// partialInterval expands a partial date string to its [lo, hi)
// interval.
func partialInterval(s string) (types.Time, types.Time, error) {
	lo, err := types.ParseTime(s)
	if err != nil {
		return types.Time{}, types.Time{}, err
	}
	var hi types.Time
	switch strings.Count(s, "-")*10 + strings.Count(s, ":") {
	case 0: // "2007"
		hi = types.TimeOf(lo.Std().AddDate(1, 0, 0))
	case 10: // "2007-01"
		hi = types.TimeOf(lo.Std().AddDate(0, 1, 0))
	case 20: // "2007-01-02", maybe with hour
		if strings.ContainsAny(s, " T") {
			hi = types.TimeOf(lo.Std().Add(time.Hour))
		} else {
			hi = types.TimeOf(lo.Std().AddDate(0, 0, 1))
		}
	case 21: // hour:minute precision
		hi = types.TimeOf(lo.Std().Add(time.Minute))
	default: // full precision
		hi = types.TimeOf(lo.Std().Add(time.Second))
	}
	return lo, hi, nil
}

func parseMatchReftime(pattern string) (implementation, error) {
	m := &MatchReftime{}
	for _, part := range strings.Split(pattern, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var op string
		for _, candidate := range []string{">=", "<=", "==", "=", ">", "<"} {
			if strings.HasPrefix(part, candidate) {
				op = candidate
				part = strings.TrimSpace(part[len(candidate):])
				break
			}
		}
		if op == "" {
			return nil, fmt.Errorf("cannot parse reftime constraint %q: missing operator", part)
		}
		if op == "==" {
			op = "="
		}
		lo, hi, err := partialInterval(part)
		if err != nil {
			return nil, fmt.Errorf("cannot parse reftime constraint: %w", err)
		}
		m.ops = append(m.ops, dtOp{op: op, text: part, lo: lo, hi: hi})
	}
	if len(m.ops) == 0 {
		return nil, fmt.Errorf("cannot parse reftime pattern %q: no constraints", pattern)
	}
	return m, nil
}

func (*MatchReftime) Code() types.Code { return types.CodeReftime }

// matchTime checks one instant against all constraints. Partial dates
// behave as intervals: "=2007-07-08" accepts the whole day, and
// ">2007" means after the end of 2007.
func (m *MatchReftime) matchTime(t types.Time) bool {
	for _, o := range m.ops {
		switch o.op {
		case ">=":
			if t.Before(o.lo) {
				return false
			}
		case ">":
			if t.Before(o.hi) {
				return false
			}
		case "<=":
			if !t.Before(o.hi) {
				return false
			}
		case "<":
			if !t.Before(o.lo) {
				return false
			}
		case "=":
			if t.Before(o.lo) || !t.Before(o.hi) {
				return false
			}
		}
	}
	return true
}

func (m *MatchReftime) MatchItem(it types.Item) bool {
	rt, ok := it.(types.Reftime)
	if !ok {
		return false
	}
	if rt.Style == types.ReftimePosition {
		return m.matchTime(rt.Begin)
	}
	// For periods, both ends must satisfy the constraints, matching
	// the conservative behaviour of the original.
	return m.matchTime(rt.Begin) && m.matchTime(rt.End)
}

// restrictDateRange narrows [begin, end). A zero Time means an open
// bound. Returns false when the result is empty.
func (m *MatchReftime) restrictDateRange(begin, end *types.Time) bool {
	for _, o := range m.ops {
		switch o.op {
		case ">=", "=":
			if begin.IsZero() || begin.Before(o.lo) {
				*begin = o.lo
			}
		case ">":
			if begin.IsZero() || begin.Before(o.hi) {
				*begin = o.hi
			}
		}
		switch o.op {
		case "<=", "=":
			if end.IsZero() || o.hi.Before(*end) {
				*end = o.hi
			}
		case "<":
			if end.IsZero() || o.lo.Before(*end) {
				*end = o.lo
			}
		}
	}
	if !begin.IsZero() && !end.IsZero() && !begin.Before(*end) {
		return false
	}
	return true
}

// sql renders the constraints over a DATETIME column.
func (m *MatchReftime) sql(column string) string {
	parts := make([]string, 0, len(m.ops))
	for _, o := range m.ops {
		switch o.op {
		case ">=":
			parts = append(parts, fmt.Sprintf("%s>='%s'", column, o.lo.SQL()))
		case ">":
			parts = append(parts, fmt.Sprintf("%s>='%s'", column, o.hi.SQL()))
		case "<=":
			parts = append(parts, fmt.Sprintf("%s<'%s'", column, o.hi.SQL()))
		case "<":
			parts = append(parts, fmt.Sprintf("%s<'%s'", column, o.lo.SQL()))
		case "=":
			parts = append(parts, fmt.Sprintf("(%s>='%s' AND %s<'%s')", column, o.lo.SQL(), column, o.hi.SQL()))
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func (m *MatchReftime) String() string {
	parts := make([]string, 0, len(m.ops))
	for _, o := range m.ops {
		parts = append(parts, o.op+o.text)
	}
	return strings.Join(parts, ",")
}
