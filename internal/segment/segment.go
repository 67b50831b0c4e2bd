// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package segment implements the append-only physical storage units
// payloads live in. A segment is addressed by a path relative to its
// dataset root; the index stores (relpath, offset, size) triples and
// does not care which flavour the bytes live in.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// State classifies a segment during maintenance.
type State int

const (
	StateOK State = iota
	// Segment has holes or extra trailing bytes; repack reclaims them.
	StateDirty
	// Segment exists on disk but the index does not reference it.
	StateUnaligned
	// The index references the segment but the file is gone.
	StateMissing
	// The segment should be removed from the index.
	StateDeleted
	// Segment data fails validation.
	StateCorrupted
	// Segment is out of the retention window.
	StateArchiveAge
	StateDeleteAge
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateDirty:
		return "DIRTY"
	case StateUnaligned:
		return "UNALIGNED"
	case StateMissing:
		return "MISSING"
	case StateDeleted:
		return "DELETED"
	case StateCorrupted:
		return "CORRUPTED"
	case StateArchiveAge:
		return "ARCHIVE_AGE"
	case StateDeleteAge:
		return "DELETE_AGE"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrCorrupted marks validation failures that repack cannot fix.
var ErrCorrupted = errors.New("segment is corrupted")

// Span locates one payload inside a segment. For directory segments
// Offset is the numeric file id.
type Span struct {
	Offset uint64
	Size   uint64
}

// Segment is one storage unit. Appends return the span recorded in
// the index; reads resolve a span back to the payload bytes.
type Segment interface {
	// Relpath of the segment inside its dataset.
	Relpath() string

	Append(payload []byte) (Span, error)

	Read(span Span) ([]byte, error)

	// Check validates the segment against the spans the index knows,
	// in index order. With quick set only sizes are compared, not
	// content structure.
	Check(expected []Span, quick bool) State

	// Repack rewrites the segment keeping only the expected spans, in
	// the given order, and returns their new locations and the bytes
	// reclaimed.
	Repack(expected []Span) ([]Span, int64, error)

	Remove() error
}

// New returns the segment implementation for a data format.
func New(format, root, relpath string) Segment {
	switch format {
	case "vm2":
		return &linesSegment{root: root, relpath: relpath}
	case "grib1", "grib2", "grib", "bufr", "odimh5":
		return &concatSegment{root: root, relpath: relpath}
	default:
		return &concatSegment{root: root, relpath: relpath}
	}
}

// NewDir returns a directory segment for formats stored one payload
// per file, like ODIMH5 volumes.
func NewDir(root, relpath, ext string) Segment {
	return &dirSegment{root: root, relpath: relpath, ext: ext}
}

// NewGzip returns a gzip-indexed wrapper over a concatenated segment
// layout: relpath.gz plus a relpath.gz.idx block index.
func NewGzip(root, relpath string) Segment {
	return &gzipSegment{root: root, relpath: relpath}
}

func sortedByOffset(spans []Span) []Span {
	out := append([]Span(nil), spans...)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o777)
}
