// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package summary

import (
	"bytes"
	"testing"
	"time"

	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

func md(centre int, day int, size uint64) *types.Metadata {
	out := &types.Metadata{}
	out.Set(types.NewOriginGRIB1(centre, 0, 101))
	out.Set(types.NewProductGRIB1(200, 2, 11))
	out.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, 0, 0, 0)))
	out.SetSource(types.NewSourceBlob("grib1", "", "2007/07-08.grib1", 0, size))
	return out
}

func TestAddAndMerge(t *testing.T) {
	s := New()
	if err := s.Add(md(200, 7, 100)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(md(200, 8, 50)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(md(98, 9, 25)); err != nil {
		t.Fatal(err)
	}

	if s.Rows() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Rows())
	}
	st := s.Stats()
	if st.Count != 3 || st.Size != 175 {
		t.Errorf("stats = %+v", st)
	}
	if !st.Begin.Equal(types.NewTime(2007, time.July, 7, 0, 0, 0)) ||
		!st.End.Equal(types.NewTime(2007, time.July, 9, 0, 0, 0)) {
		t.Errorf("span = %s .. %s", st.Begin, st.End)
	}
}

func TestFilter(t *testing.T) {
	s := New()
	s.Add(md(200, 7, 100))
	s.Add(md(98, 9, 25))

	got := s.Filter(matcher.MustParse("origin:GRIB1,200"))
	if got.Count() != 1 || got.Size() != 100 {
		t.Errorf("filtered stats = %+v", got.Stats())
	}

	got = s.Filter(matcher.MustParse("reftime:>=2007-07-09"))
	if got.Count() != 1 || got.Size() != 25 {
		t.Errorf("filtered stats = %+v", got.Stats())
	}

	got = s.Filter(matcher.Universal())
	if !got.Equal(s) {
		t.Error("universal filter changed the summary")
	}
}

func TestProject(t *testing.T) {
	s := New()
	s.Add(md(200, 7, 100))
	s.Add(md(98, 9, 25))

	// Projecting away origin folds the rows together.
	got := s.Project(types.CodeProduct)
	if got.Rows() != 1 {
		t.Fatalf("expected 1 row, got %d", got.Rows())
	}
	if got.Count() != 2 || got.Size() != 125 {
		t.Errorf("projected stats = %+v", got.Stats())
	}
}

// Property: for disjoint matchers a and b,
// summary(a) + summary(b) == summary(a or b applied rowwise).
func TestAdditivity(t *testing.T) {
	s := New()
	s.Add(md(200, 7, 100))
	s.Add(md(200, 8, 50))
	s.Add(md(98, 9, 25))

	a := s.Filter(matcher.MustParse("origin:GRIB1,200"))
	b := s.Filter(matcher.MustParse("origin:GRIB1,98"))
	both := s.Filter(matcher.MustParse("origin:GRIB1,200 or GRIB1,98"))

	sum := New()
	sum.Merge(a)
	sum.Merge(b)
	if !sum.Equal(both) {
		t.Error("summary additivity violated")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	bag := types.NewValueBag()
	bag.Set("Ni", types.IntValue(441))

	s := New()
	for day := 7; day <= 9; day++ {
		m := md(200, day, uint64(day*10))
		m.Set(types.NewAreaGRIB(bag))
		s.Add(m)
	}
	s.Add(md(98, 9, 25))

	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatal(err)
	}

	out, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(out) {
		t.Error("summary changed across encode/decode")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	s := New()
	s.Add(md(200, 7, 100))
	body := s.Encode()

	if _, err := Decode(body[:len(body)/2]); err == nil {
		t.Error("expected error decoding truncated summary")
	}
}
