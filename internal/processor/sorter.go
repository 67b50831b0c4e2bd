// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// Sorter reorders query results inside a reftime interval. The text
// form is "[interval:]key,key,...", a key being a kind name with an
// optional '-' for descending, e.g. "day:origin, -timerange". Without
// an interval the whole result set is buffered and sorted.
type Sorter struct {
	interval string // "", "minute", "hour", "day", "month", "year"
	keys     []sortKey
}

type sortKey struct {
	code types.Code
	desc bool
}

func ParseSorter(spec string) (*Sorter, error) {
	s := &Sorter{}
	if colon := strings.IndexByte(spec, ':'); colon >= 0 {
		s.interval = strings.TrimSpace(spec[:colon])
		switch s.interval {
		case "minute", "hour", "day", "month", "year":
		default:
			return nil, fmt.Errorf("cannot parse sort order %q: unknown interval %q", spec, s.interval)
		}
		spec = spec[colon+1:]
	}
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		desc := false
		if field[0] == '-' {
			desc = true
			field = strings.TrimSpace(field[1:])
		}
		code, err := types.ParseCodeName(field)
		if err != nil {
			return nil, fmt.Errorf("cannot parse sort order: %w", err)
		}
		s.keys = append(s.keys, sortKey{code: code, desc: desc})
	}
	if len(s.keys) == 0 {
		return nil, fmt.Errorf("cannot parse sort order %q: no sort keys", spec)
	}
	return s, nil
}

// bucket maps a reftime to its sort interval.
func (s *Sorter) bucket(md *types.Metadata) string {
	rt, ok := md.Reftime()
	if !ok {
		return ""
	}
	tm := rt.Begin.Std()
	switch s.interval {
	case "minute":
		return tm.Format("2006-01-02 15:04")
	case "hour":
		return tm.Format("2006-01-02 15")
	case "day":
		return tm.Format("2006-01-02")
	case "month":
		return tm.Format("2006-01")
	case "year":
		return tm.Format("2006")
	default:
		return ""
	}
}

func (s *Sorter) less(a, b *types.Metadata) bool {
	for _, key := range s.keys {
		ai, bi := a.Get(key.code), b.Get(key.code)
		var d int
		switch {
		case ai == nil && bi == nil:
			continue
		case ai == nil:
			d = -1
		case bi == nil:
			d = 1
		default:
			d = types.Compare(ai, bi)
		}
		if d == 0 {
			continue
		}
		if key.desc {
			return d > 0
		}
		return d < 0
	}
	return false
}

// Wrap returns a consumer that buffers per interval, sorts, and
// forwards to fn; call drain to flush the last interval.
func (s *Sorter) Wrap(fn func(*types.Metadata) bool) (consume func(*types.Metadata) bool, drain func() bool) {
	var buffer []*types.Metadata
	current := ""

	flush := func() bool {
		sort.SliceStable(buffer, func(i, j int) bool { return s.less(buffer[i], buffer[j]) })
		for _, md := range buffer {
			if !fn(md) {
				return false
			}
		}
		buffer = buffer[:0]
		return true
	}

	consume = func(md *types.Metadata) bool {
		b := s.bucket(md)
		if b != current && len(buffer) > 0 {
			if !flush() {
				return false
			}
		}
		current = b
		buffer = append(buffer, md)
		return true
	}
	return consume, flush
}
