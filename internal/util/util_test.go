// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "seg.grib1")
	payload := bytes.Repeat([]byte("GRIB message bytes "), 500)
	if err := os.WriteFile(plain, payload, 0o666); err != nil {
		t.Fatal(err)
	}

	gz := plain + ".gz"
	if err := CompressFile(plain, gz); err != nil {
		t.Fatal(err)
	}
	// The original is removed, the compressed file is smaller.
	if CheckFileExists(plain) {
		t.Error("CompressFile left the original behind")
	}
	size, err := FileSize(gz)
	if err != nil {
		t.Fatal(err)
	}
	if size >= int64(len(payload)) {
		t.Errorf("compressed size %d not smaller than %d", size, len(payload))
	}

	if err := UncompressFile(gz, plain); err != nil {
		t.Fatal(err)
	}
	if CheckFileExists(gz) {
		t.Error("UncompressFile left the compressed file behind")
	}
	got, err := os.ReadFile(plain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted across compress/uncompress")
	}
}

func TestWriteFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "all.summary")

	if err := WriteFileAtomically(path, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomically(path, []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("read back %q", got)
	}

	// No temp files survive.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("stray files left behind: %d entries", len(entries))
	}
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	l, err := AcquireLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if l.File() == nil {
		t.Fatal("no file behind the lock")
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	// Releasing twice is harmless.
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}

	// The lock can be taken again.
	l2, err := AcquireLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l2.Release(); err != nil {
		t.Fatal(err)
	}
}
