// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func roundTrip(t *testing.T, it Item) Item {
	t.Helper()
	dec := NewDecoder(Encode(it))
	out, err := Decode(dec)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Remaining() != 0 {
		t.Fatalf("%d trailing bytes after decoding %s", dec.Remaining(), it)
	}
	return out
}

func TestRoundTripAllKinds(t *testing.T) {
	bag := NewValueBag()
	bag.Set("Ni", IntValue(441))
	bag.Set("Nj", IntValue(181))
	bag.Set("type", StrValue("mos"))

	items := []Item{
		NewOriginGRIB1(200, 0, 101),
		NewOriginGRIB2(98, 0, 1, 2, 3),
		NewOriginBUFR(98, 1),
		NewProductGRIB1(200, 2, 11),
		NewProductGRIB2(98, 0, 1, 22),
		NewProductBUFR(0, 255, 1, bag),
		NewProductODIMH5("PVOL", "SCAN"),
		NewProductVM2(227),
		NewLevelGRIB1(102, 0, 0),
		NewLevelGRIB1(105, 2, 0),
		NewLevelGRIB2S(103, 0, 2000),
		NewLevelGRIB2D(103, 0, 2000, 103, 0, 10000),
		NewTimerangeGRIB1(0, UnitHour, 12, 0),
		NewTimerangeGRIB2(4, UnitHour, 0, 24),
		NewTimedefForecast(72, UnitHour),
		NewTimedef(72, UnitHour, 1, 6, UnitHour),
		NewTimerangeBUFR(6, UnitHour),
		NewAreaGRIB(bag),
		NewAreaVM2(1),
		NewProddefGRIB(bag),
		NewReftimePosition(NewTime(2007, time.July, 8, 13, 0, 0)),
		NewReftimePeriod(NewTime(2007, time.July, 7, 0, 0, 0), NewTime(2007, time.October, 9, 0, 0, 0)),
		NewRunMinute(12, 30),
		NewQuantity("DBZH", "VRAD"),
		NewTask("pluvio scan"),
		NewValue([]byte("198,2007-07-08 13:00:00,,227,1.2,,000000000")),
		NewSourceBlob("grib1", "", "2007/07-08.grib1", 0, 7218),
		NewSourceInline("vm2", 44),
		NewSourceURL("grib1", "http://localhost/ds"),
		NewAssignedDataset("test200", "1"),
	}

	for _, it := range items {
		out := roundTrip(t, it)
		if !Equal(it, out) {
			t.Errorf("round trip of %s gave %s", it, out)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	// Kind code dominates style and fields.
	if Compare(NewOriginGRIB1(1, 1, 1), NewProductGRIB1(0, 0, 0)) >= 0 {
		t.Fail()
	}
	// Style dominates fields within a kind.
	if Compare(NewOriginGRIB1(250, 250, 250), NewOriginGRIB2(0, 0, 0, 0, 0)) >= 0 {
		t.Fail()
	}
	if Compare(NewOriginGRIB1(200, 0, 1), NewOriginGRIB1(200, 0, 2)) >= 0 {
		t.Fail()
	}
}

func TestTimerangeGRIB1Normalisation(t *testing.T) {
	// 1 hour and 60 minutes are the same timerange.
	a := NewTimerangeGRIB1(0, UnitHour, 1, 0)
	b := NewTimerangeGRIB1(0, UnitMinute, 60, 0)
	if !Equal(a, b) {
		t.Errorf("%s != %s", a, b)
	}
	// A month is never some amount of seconds.
	c := NewTimerangeGRIB1(0, UnitMonth, 1, 0)
	if Equal(a, c) {
		t.Errorf("%s == %s", a, c)
	}
}

func TestReftimeMerge(t *testing.T) {
	t1 := NewTime(2007, time.July, 7, 0, 0, 0)
	t2 := NewTime(2007, time.July, 8, 13, 0, 0)
	t3 := NewTime(2007, time.October, 9, 0, 0, 0)

	m := NewReftimePosition(t2).Merge(NewReftimePosition(t1))
	if m.Style != ReftimePeriod {
		t.Fatalf("expected Period, got %s", m)
	}
	begin, end := m.Period()
	if !begin.Equal(t1) || !end.Equal(t2) {
		t.Errorf("bad envelope: %s", m)
	}

	m = m.Merge(NewReftimePosition(t3))
	begin, end = m.Period()
	if !begin.Equal(t1) || !end.Equal(t3) {
		t.Errorf("bad envelope: %s", m)
	}
}

func TestItemSetCompare(t *testing.T) {
	var a, b ItemSet
	a.Set(NewOriginGRIB1(200, 0, 101))
	b.Set(NewOriginGRIB1(200, 0, 101))
	if a.Compare(&b) != 0 {
		t.Fail()
	}
	b.Set(NewProductGRIB1(200, 2, 11))
	if a.Compare(&b) >= 0 {
		t.Fail()
	}
}

func TestMetadataBundleRoundTrip(t *testing.T) {
	md := &Metadata{}
	md.Set(NewOriginGRIB1(200, 0, 101))
	md.Set(NewProductGRIB1(200, 2, 11))
	md.Set(NewLevelGRIB1(102, 0, 0))
	md.Set(NewTimerangeGRIB1(0, UnitHour, 12, 0))
	md.Set(NewReftimePosition(NewTime(2007, time.July, 8, 13, 0, 0)))
	md.AddNote("Scanned from test.grib1:0+7218")
	md.SetSource(NewSourceBlob("grib1", "", "2007/07-08.grib1", 0, 7218))

	var buf bytes.Buffer
	if err := md.Write(&buf); err != nil {
		t.Fatal(err)
	}

	out, err := ReadMetadata(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !md.ItemSet.Equal(&out.ItemSet) {
		t.Error("item sets differ after round trip")
	}
	if !Equal(md.Source(), out.Source()) {
		t.Errorf("source differs: %s vs %s", md.Source(), out.Source())
	}
	if len(out.Notes()) != 1 || out.Notes()[0].Content != "Scanned from test.grib1:0+7218" {
		t.Error("notes lost in round trip")
	}

	if _, err := ReadMetadata(&buf); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestMetadataInlineData(t *testing.T) {
	payload := []byte("GRIB payload bytes")
	md := &Metadata{}
	md.Set(NewReftimePosition(NewTime(2007, time.July, 8, 13, 0, 0)))
	md.SetSourceInline("grib1", payload)

	var buf bytes.Buffer
	if err := md.Write(&buf); err != nil {
		t.Fatal(err)
	}
	// A second record after the first must still parse.
	if err := md.Write(&buf); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		out, err := ReadMetadata(&buf)
		if err != nil {
			t.Fatal(err)
		}
		data, ok := out.PayloadData()
		if !ok || !bytes.Equal(data, payload) {
			t.Errorf("record %d: payload lost in round trip", i)
		}
	}
}

func TestReadBundleSkipsPadding(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	if err := WriteBundle(&buf, BundleSummary, 1, []byte("body")); err != nil {
		t.Fatal(err)
	}

	signature, version, body, err := ReadBundle(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if signature != "SU" || version != 1 || string(body) != "body" {
		t.Errorf("got %q v%d %q", signature, version, body)
	}
}

func TestBBoxDecodeOnly(t *testing.T) {
	// Old indexes may carry bbox items; they decode opaquely and
	// re-encode byte-identically.
	var enc Encoder
	enc.AddVarint(uint64(CodeBBox))
	enc.AddVarint(4)
	enc.AddBytes([]byte{1, 2, 3, 4})

	dec := NewDecoder(enc.Bytes())
	it, err := Decode(dec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(Encode(it), enc.Bytes()) {
		t.Error("bbox did not re-encode byte-identically")
	}
}

func TestParseTimePartialForms(t *testing.T) {
	cases := map[string]Time{
		"2007":                 NewTime(2007, time.January, 1, 0, 0, 0),
		"2007-06":              NewTime(2007, time.June, 1, 0, 0, 0),
		"2007-06-05":           NewTime(2007, time.June, 5, 0, 0, 0),
		"2007-06-05 04:03:02":  NewTime(2007, time.June, 5, 4, 3, 2),
		"2007-06-05T04:03:02Z": NewTime(2007, time.June, 5, 4, 3, 2),
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("%s: got %s, want %s", in, got, want)
		}
	}
}
