// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scan

import (
	"bytes"
	"testing"
	"time"

	"github.com/meteo-dpc/arkive/pkg/types"
)

func TestBundleScanner(t *testing.T) {
	var buf bytes.Buffer
	for day := 7; day <= 9; day++ {
		md := &types.Metadata{}
		md.Set(types.NewOriginGRIB1(200, 0, 101))
		md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, 0, 0, 0)))
		md.SetSourceInline("grib1", []byte("payload"))
		if err := md.Write(&buf); err != nil {
			t.Fatal(err)
		}
	}

	s := NewBundleScanner(&buf, "test.metadata", "/srv/data")
	var got []*types.Metadata
	if err := s.Scan(func(md *types.Metadata) bool {
		got = append(got, md)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("scanned %d records, want 3", len(got))
	}
	if data, ok := got[0].PayloadData(); !ok || string(data) != "payload" {
		t.Error("payload lost in scan")
	}
}

func TestBundleScannerBindsBlobBasedir(t *testing.T) {
	var buf bytes.Buffer
	md := &types.Metadata{}
	md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, 7, 0, 0, 0)))
	md.SetSource(types.NewSourceBlob("grib1", "", "2007/07-07.grib1", 0, 100))
	if err := md.Write(&buf); err != nil {
		t.Fatal(err)
	}

	s := NewBundleScanner(&buf, "test.metadata", "/srv/ds")
	if err := s.Scan(func(md *types.Metadata) bool {
		if md.Source().Basedir != "/srv/ds" {
			t.Errorf("basedir not bound: %s", md.Source())
		}
		return true
	}); err != nil {
		t.Fatal(err)
	}
}

func TestBundleScannerCancellation(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		md := &types.Metadata{}
		md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, 7, 0, 0, 0)))
		md.SetSourceInline("grib1", []byte("x"))
		if err := md.Write(&buf); err != nil {
			t.Fatal(err)
		}
	}
	n := 0
	s := NewBundleScanner(&buf, "test.metadata", ".")
	if err := s.Scan(func(*types.Metadata) bool {
		n++
		return false
	}); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("scan continued after cancellation: %d", n)
	}
}
