// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var payloads = [][]byte{
	[]byte("first grib message payload"),
	[]byte("second, a bit longer grib message payload"),
	[]byte("third"),
}

func appendAll(t *testing.T, s Segment) []Span {
	t.Helper()
	spans := make([]Span, 0, len(payloads))
	for _, p := range payloads {
		span, err := s.Append(p)
		if err != nil {
			t.Fatal(err)
		}
		spans = append(spans, span)
	}
	return spans
}

func checkReadBack(t *testing.T, s Segment, spans []Span) {
	t.Helper()
	for i, span := range spans {
		got, err := s.Read(span)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payloads[i]) {
			t.Errorf("payload %d corrupted: %q", i, got)
		}
	}
}

func TestConcatAppendRead(t *testing.T) {
	s := New("grib1", t.TempDir(), "2007/07-08.grib1")
	spans := appendAll(t, s)

	// Offsets are contiguous.
	if spans[0].Offset != 0 || spans[1].Offset != spans[0].Size ||
		spans[2].Offset != spans[0].Size+spans[1].Size {
		t.Errorf("offsets not contiguous: %+v", spans)
	}
	checkReadBack(t, s, spans)

	if state := s.Check(spans, false); state != StateOK {
		t.Errorf("state = %s", state)
	}
}

func TestConcatCheckStates(t *testing.T) {
	root := t.TempDir()
	s := New("grib1", root, "seg.grib1")
	spans := appendAll(t, s)

	// A hole makes it dirty.
	if state := s.Check(spans[1:], false); state != StateDirty {
		t.Errorf("with hole: state = %s", state)
	}
	// Extra trailing bytes make it dirty.
	f, _ := os.OpenFile(filepath.Join(root, "seg.grib1"), os.O_WRONLY|os.O_APPEND, 0o666)
	f.Write([]byte("garbage"))
	f.Close()
	if state := s.Check(spans, false); state != StateDirty {
		t.Errorf("with trailing bytes: state = %s", state)
	}
	// Spans past the end are corrupted.
	big := append([]Span(nil), spans...)
	big = append(big, Span{Offset: 100000, Size: 50})
	if state := s.Check(big, false); state != StateCorrupted {
		t.Errorf("with span past EOF: state = %s", state)
	}
	// Missing file.
	os.Remove(filepath.Join(root, "seg.grib1"))
	if state := s.Check(spans, false); state != StateMissing {
		t.Errorf("missing file: state = %s", state)
	}
}

func TestConcatRepack(t *testing.T) {
	s := New("grib1", t.TempDir(), "seg.grib1")
	spans := appendAll(t, s)

	// Drop the middle payload and repack.
	keep := []Span{spans[0], spans[2]}
	newSpans, reclaimed, err := s.Repack(keep)
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed != int64(spans[1].Size) {
		t.Errorf("reclaimed %d, want %d", reclaimed, spans[1].Size)
	}
	if got, _ := s.Read(newSpans[0]); !bytes.Equal(got, payloads[0]) {
		t.Error("payload 0 lost in repack")
	}
	if got, _ := s.Read(newSpans[1]); !bytes.Equal(got, payloads[2]) {
		t.Error("payload 2 lost in repack")
	}
	if state := s.Check(newSpans, false); state != StateOK {
		t.Errorf("after repack: state = %s", state)
	}
}

func TestLinesSegment(t *testing.T) {
	root := t.TempDir()
	s := New("vm2", root, "seg.vm2")
	spans := appendAll(t, s)

	checkReadBack(t, s, spans)
	if state := s.Check(spans, false); state != StateOK {
		t.Errorf("state = %s", state)
	}

	// The file contains newline-terminated lines.
	raw, err := os.ReadFile(filepath.Join(root, "seg.vm2"))
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Join(append(append([][]byte(nil), payloads...), nil), []byte("\n"))
	if !bytes.Equal(raw, want) {
		t.Error("lines file layout unexpected")
	}

	newSpans, reclaimed, err := s.Repack(spans[1:])
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed != int64(spans[0].Size)+1 {
		t.Errorf("reclaimed %d", reclaimed)
	}
	if got, _ := s.Read(newSpans[0]); !bytes.Equal(got, payloads[1]) {
		t.Error("payload lost in lines repack")
	}
}

func TestDirSegment(t *testing.T) {
	s := NewDir(t.TempDir(), "2007/07-08.odimh5", "odimh5")
	spans := appendAll(t, s)

	// Spans carry sequential file ids.
	for i, span := range spans {
		if span.Offset != uint64(i) {
			t.Errorf("span %d has id %d", i, span.Offset)
		}
	}
	checkReadBack(t, s, spans)
	if state := s.Check(spans, false); state != StateOK {
		t.Errorf("state = %s", state)
	}

	// Forgetting one file makes the directory dirty; repack removes it.
	keep := []Span{spans[0], spans[2]}
	if state := s.Check(keep, false); state != StateDirty {
		t.Errorf("state = %s", state)
	}
	_, reclaimed, err := s.Repack(keep)
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed != int64(spans[1].Size) {
		t.Errorf("reclaimed %d", reclaimed)
	}
	if state := s.Check(keep, false); state != StateOK {
		t.Errorf("after repack: state = %s", state)
	}
}

func TestGzipSegment(t *testing.T) {
	s := NewGzip(t.TempDir(), "2007/07.vm2")
	spans := appendAll(t, s)

	if spans[1].Offset != spans[0].Size {
		t.Errorf("logical offsets not contiguous: %+v", spans)
	}
	checkReadBack(t, s, spans)
	if state := s.Check(spans, false); state != StateOK {
		t.Errorf("state = %s", state)
	}

	newSpans, _, err := s.Repack([]Span{spans[0], spans[2]})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Read(newSpans[1]); !bytes.Equal(got, payloads[2]) {
		t.Error("payload lost in gzip repack")
	}
	if state := s.Check(newSpans, false); state != StateOK {
		t.Errorf("after repack: state = %s", state)
	}
}
