// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package matcher

import (
	"strings"
	"testing"
	"time"

	"github.com/meteo-dpc/arkive/pkg/types"
)

func sampleSet() *types.ItemSet {
	var s types.ItemSet
	s.Set(types.NewOriginGRIB1(200, 0, 101))
	s.Set(types.NewProductGRIB1(200, 2, 11))
	s.Set(types.NewLevelGRIB1(102, 0, 0))
	s.Set(types.NewTimerangeGRIB1(0, types.UnitHour, 12, 0))
	s.Set(types.NewReftimePosition(types.NewTime(2007, time.July, 8, 13, 0, 0)))
	s.Set(types.NewRunMinute(13, 0))
	return &s
}

func mustMatch(t *testing.T, expr string, s *types.ItemSet, want bool) {
	t.Helper()
	m, err := Parse(expr)
	if err != nil {
		t.Fatalf("%s: %v", expr, err)
	}
	if got := m.Match(s); got != want {
		t.Errorf("%q matched %v, want %v", expr, got, want)
	}
}

func TestMatchBasics(t *testing.T) {
	s := sampleSet()

	mustMatch(t, "", s, true)
	mustMatch(t, "origin:GRIB1", s, true)
	mustMatch(t, "origin:GRIB1,200", s, true)
	mustMatch(t, "origin:GRIB1,98", s, false)
	mustMatch(t, "origin:GRIB1,98 or GRIB1,200", s, true)
	mustMatch(t, "origin:GRIB1,200; product:GRIB1,200,2,11", s, true)
	mustMatch(t, "origin:GRIB1,200; product:GRIB1,200,2,12", s, false)
	mustMatch(t, "origin:BUFR", s, false)
	// A clause over an absent kind filters the set out.
	mustMatch(t, "area:GRIB:Ni=441", s, false)
	// Wildcard middle field.
	mustMatch(t, "origin:GRIB1,200,,101", s, true)
	mustMatch(t, "level:GRIB1,102", s, true)
	mustMatch(t, "run:MINUTE,13:00", s, true)
	mustMatch(t, "run:MINUTE,12", s, false)
}

func TestMatchReftimeOps(t *testing.T) {
	s := sampleSet()

	mustMatch(t, "reftime:>=2007-01-01,<2008-01-01", s, true)
	mustMatch(t, "reftime:>=2008-01-01", s, false)
	mustMatch(t, "reftime:=2007-07-08", s, true)
	mustMatch(t, "reftime:=2007-07-07", s, false)
	mustMatch(t, "reftime:=2007", s, true)
	mustMatch(t, "reftime:>2007-07-08", s, false)
	mustMatch(t, "reftime:<=2007-07-08", s, true)
}

func TestMatchTimerangeTimedef(t *testing.T) {
	var s types.ItemSet
	s.Set(types.NewTimedef(72, types.UnitHour, 1, 6, types.UnitHour))
	mustMatch(t, "timerange:Timedef,+72h,1,6h", &s, true)
	mustMatch(t, "timerange:Timedef,+72h,1,3h", &s, false)
	mustMatch(t, "timerange:Timedef,+72h", &s, true)
	mustMatch(t, "timerange:Timedef,+72h,2", &s, false)

	var g types.ItemSet
	g.Set(types.NewTimerangeGRIB1(4, types.UnitHour, 0, 12))
	mustMatch(t, "timerange:Timedef,+72h,1,6h", &g, false)
	mustMatch(t, "timerange:GRIB1,4,0h,12h", &g, true)
	// Unit normalisation: 720 minutes are 12 hours.
	mustMatch(t, "timerange:GRIB1,4,0h,720m", &g, true)
}

func TestMatchValueBags(t *testing.T) {
	bag := types.NewValueBag()
	bag.Set("Ni", types.IntValue(441))
	bag.Set("Nj", types.IntValue(181))
	var s types.ItemSet
	s.Set(types.NewAreaGRIB(bag))
	s.Set(types.NewProddefGRIB(bag))

	mustMatch(t, "area:GRIB:Ni=441", &s, true)
	mustMatch(t, "area:GRIB:Ni=441,Nj=181", &s, true)
	mustMatch(t, "area:GRIB:Ni=442", &s, false)
	mustMatch(t, "area:GRIB", &s, true)
	mustMatch(t, "area:VM2,1", &s, false)
	mustMatch(t, "proddef:GRIB:Nj=181", &s, true)
}

func TestAliasExpansion(t *testing.T) {
	ResetAliases()
	defer ResetAliases()

	if err := LoadAliases(strings.NewReader(`
[origin]
arpa = GRIB1,200 or GRIB1,80
ecmwf = GRIB1,98
`)); err != nil {
		t.Fatal(err)
	}

	s := sampleSet()
	mustMatch(t, "origin:arpa", s, true)
	mustMatch(t, "origin:ecmwf", s, false)

	m, err := Parse("origin:arpa")
	if err != nil {
		t.Fatal(err)
	}
	// The unparsed form keeps the alias, the expanded form does not.
	if m.String() != "origin:arpa" {
		t.Errorf("unexpected unparsed form %q", m.String())
	}
	if m.Expanded() != "origin:GRIB1,200 or GRIB1,80" {
		t.Errorf("unexpected expanded form %q", m.Expanded())
	}
}

// Property: parsing the expanded form gives an equivalent matcher.
func TestExpandedEquivalence(t *testing.T) {
	ResetAliases()
	defer ResetAliases()
	if err := AddAlias("origin", "arpa", "GRIB1,200 or GRIB1,80"); err != nil {
		t.Fatal(err)
	}

	exprs := []string{
		"origin:arpa; product:GRIB1,200,2,11",
		"reftime:>=2007-01-01,<2008-01-01; timerange:Timedef,+72h,1",
		"origin:GRIB1,200 or BUFR,98; level:GRIB1,102",
		"reftime:=2007-07-08",
	}
	sets := []*types.ItemSet{sampleSet(), {}}

	for _, expr := range exprs {
		m, err := Parse(expr)
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		m2, err := Parse(m.Expanded())
		if err != nil {
			t.Fatalf("%s (expanded %q): %v", expr, m.Expanded(), err)
		}
		for _, s := range sets {
			if m.Match(s) != m2.Match(s) {
				t.Errorf("%q and its expansion %q disagree", expr, m.Expanded())
			}
		}
	}
}

func TestRestrictDateRange(t *testing.T) {
	m := MustParse("reftime:>=2007-06-01,<2007-09-01")

	var begin, end types.Time
	if !m.RestrictDateRange(&begin, &end) {
		t.Fatal("restriction reported empty range")
	}
	if begin.String() != "2007-06-01T00:00:00Z" {
		t.Errorf("begin = %s", begin)
	}
	if end.String() != "2007-09-01T00:00:00Z" {
		t.Errorf("end = %s", end)
	}

	// Narrowing an already narrower range is a no-op.
	begin, _ = types.ParseTime("2007-07-01")
	end, _ = types.ParseTime("2007-08-01")
	if !m.RestrictDateRange(&begin, &end) {
		t.Fatal("restriction reported empty range")
	}
	if begin.String() != "2007-07-01T00:00:00Z" || end.String() != "2007-08-01T00:00:00Z" {
		t.Errorf("range moved: %s .. %s", begin, end)
	}

	// Disjoint constraints give an empty range.
	begin, _ = types.ParseTime("2009-01-01")
	end = types.Time{}
	if m.RestrictDateRange(&begin, &end) {
		t.Error("expected empty range")
	}
}

func TestReftimeSQL(t *testing.T) {
	m := MustParse("reftime:>=2007-01-01,<2008-01-01")
	want := "(reftime>='2007-01-01 00:00:00' AND reftime<'2008-01-01 00:00:00')"
	if got := m.ReftimeSQL("reftime"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := MustParse("reftime:=2007-07-08").ReftimeSQL("reftime"); got != "(reftime>='2007-07-08 00:00:00' AND reftime<'2007-07-09 00:00:00')" {
		t.Errorf("got %q", got)
	}

	if got := Universal().ReftimeSQL("reftime"); got != "" {
		t.Errorf("universal matcher rendered SQL %q", got)
	}
}

func TestSplit(t *testing.T) {
	m := MustParse("origin:GRIB1,200; reftime:>=2007-01-01")
	ref, rest := m.Split(types.CodeReftime)
	if ref.Clause(types.CodeReftime) == nil || ref.Clause(types.CodeOrigin) != nil {
		t.Error("bad reftime split")
	}
	if rest.Clause(types.CodeOrigin) == nil || rest.Clause(types.CodeReftime) != nil {
		t.Error("bad rest split")
	}
}
