// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package summary aggregates counts, sizes and reftime spans over
// groups of metadata item sets. Rows are keyed by the tuple of items
// in the fixed scan order; merging groups by identical key.
package summary

import (
	"fmt"
	"io"
	"sort"

	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Stats is the aggregate payload of one summary row.
type Stats struct {
	Count uint64
	Size  uint64
	Begin types.Time
	End   types.Time
}

func (s *Stats) Merge(o Stats) {
	s.Count += o.Count
	s.Size += o.Size
	if s.Begin.IsZero() || o.Begin.Before(s.Begin) {
		s.Begin = o.Begin
	}
	if o.End.After(s.End) {
		s.End = o.End
	}
}

// Reftime returns the span as a Period item, begin <= end.
func (s *Stats) Reftime() types.Reftime {
	return types.NewReftimePeriod(s.Begin, s.End)
}

func (s Stats) Equal(o Stats) bool {
	return s.Count == o.Count && s.Size == o.Size &&
		s.Begin.Equal(o.Begin) && s.End.Equal(o.End)
}

type row struct {
	items *types.ItemSet
	stats Stats
}

// Summary is a set of (item tuple, stats) rows.
type Summary struct {
	rows map[string]*row
}

func New() *Summary {
	return &Summary{rows: make(map[string]*row)}
}

// keyItems projects an item set onto the scan-order kinds.
func keyItems(s *types.ItemSet) *types.ItemSet {
	var out types.ItemSet
	for _, code := range types.ScanOrder {
		if it := s.Get(code); it != nil {
			out.Set(it)
		}
	}
	return &out
}

func keyOf(s *types.ItemSet) string {
	var enc types.Encoder
	for _, code := range types.ScanOrder {
		if it := s.Get(code); it != nil {
			types.EncodeTo(&enc, it)
		}
	}
	return string(enc.Bytes())
}

// Add accounts one metadata record. Size is taken from the source,
// the span from the reftime.
func (s *Summary) Add(md *types.Metadata) error {
	rt, ok := md.Reftime()
	if !ok {
		return fmt.Errorf("cannot summarise metadata without reftime")
	}
	var size uint64
	if md.HasSource() {
		size = md.Source().Size
	}
	begin, end := rt.Period()
	s.addRow(keyItems(&md.ItemSet), Stats{Count: 1, Size: size, Begin: begin, End: end})
	return nil
}

func (s *Summary) addRow(items *types.ItemSet, st Stats) {
	k := keyOf(items)
	if r, ok := s.rows[k]; ok {
		r.stats.Merge(st)
		return
	}
	var copied types.ItemSet = *items
	s.rows[k] = &row{items: &copied, stats: st}
}

// Merge adds all rows of o into s.
func (s *Summary) Merge(o *Summary) {
	for _, r := range o.rows {
		s.addRow(r.items, r.stats)
	}
}

// Filter returns the rows whose item tuple matches m.
func (s *Summary) Filter(m *matcher.Matcher) *Summary {
	out := New()
	for _, r := range s.rows {
		set := *r.items
		// Row tuples carry no reftime item; expose the span so
		// reftime clauses can be evaluated.
		set.Set(types.NewReftimePeriod(r.stats.Begin, r.stats.End))
		if m.Match(&set) {
			out.addRow(r.items, r.stats)
		}
	}
	return out
}

// Project regroups the rows keeping only the given kinds.
func (s *Summary) Project(codes ...types.Code) *Summary {
	keep := make(map[types.Code]bool, len(codes))
	for _, c := range codes {
		keep[c] = true
	}
	out := New()
	for _, r := range s.rows {
		var set types.ItemSet
		for _, code := range types.ScanOrder {
			if keep[code] {
				if it := r.items.Get(code); it != nil {
					set.Set(it)
				}
			}
		}
		out.addRow(&set, r.stats)
	}
	return out
}

// Stats returns the aggregate over all rows.
func (s *Summary) Stats() Stats {
	var total Stats
	for _, r := range s.rows {
		total.Merge(r.stats)
	}
	return total
}

func (s *Summary) Count() uint64 { return s.Stats().Count }
func (s *Summary) Size() uint64  { return s.Stats().Size }

func (s *Summary) Rows() int { return len(s.rows) }

func (s *Summary) Equal(o *Summary) bool {
	if len(s.rows) != len(o.rows) {
		return false
	}
	for k, r := range s.rows {
		or, ok := o.rows[k]
		if !ok || !r.stats.Equal(or.stats) {
			return false
		}
	}
	return true
}

// sortedKeys gives a deterministic row order for encoding and dumps.
func (s *Summary) sortedKeys() []string {
	keys := make([]string, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Visit calls fn on every row in canonical order.
func (s *Summary) Visit(fn func(items *types.ItemSet, stats Stats) error) error {
	for _, k := range s.sortedKeys() {
		r := s.rows[k]
		if err := fn(r.items, r.stats); err != nil {
			return err
		}
	}
	return nil
}

// WriteYaml dumps the summary in the human-readable form.
func (s *Summary) WriteYaml(w io.Writer) error {
	return s.Visit(func(items *types.ItemSet, stats Stats) error {
		if _, err := fmt.Fprintln(w, "SummaryItem:"); err != nil {
			return err
		}
		for _, it := range items.Items() {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", it.Code().Tag(), it); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "SummaryStats:\n  Count: %d\n  Size: %d\n  Reftime: %s\n\n",
			stats.Count, stats.Size, stats.Reftime())
		return err
	})
}
