// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/log"
)

// concatSegment stores payloads appended end to end, the native
// layout for GRIB, BUFR and ODIMH5 message streams.
type concatSegment struct {
	root    string
	relpath string
}

func (s *concatSegment) Relpath() string { return s.relpath }

func (s *concatSegment) abspath() string { return filepath.Join(s.root, s.relpath) }

func (s *concatSegment) Append(payload []byte) (Span, error) {
	if err := ensureParent(s.abspath()); err != nil {
		return Span{}, err
	}
	f, err := os.OpenFile(s.abspath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return Span{}, err
	}
	defer f.Close()

	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Span{}, err
	}
	if _, err := f.Write(payload); err != nil {
		return Span{}, fmt.Errorf("appending %d bytes to %s: %w", len(payload), s.abspath(), err)
	}
	return Span{Offset: uint64(pos), Size: uint64(len(payload))}, nil
}

func (s *concatSegment) Read(span Span) ([]byte, error) {
	f, err := os.Open(s.abspath())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, span.Size)
	if _, err := f.ReadAt(buf, int64(span.Offset)); err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d from %s: %w", span.Size, span.Offset, s.abspath(), err)
	}
	return buf, nil
}

// Check verifies that the spans tile the file exactly: gaps or extra
// trailing bytes are recoverable (DIRTY), spans past the end of the
// file are not (CORRUPTED).
func (s *concatSegment) Check(expected []Span, quick bool) State {
	fi, err := os.Stat(s.abspath())
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		log.Warnf("cannot stat %s: %v", s.abspath(), err)
		return StateCorrupted
	}
	size := uint64(fi.Size())

	spans := sortedByOffset(expected)
	var next uint64
	dirty := false
	for _, span := range spans {
		if span.Offset < next {
			// Overlapping spans mean the index and the data disagree
			// beyond repair.
			return StateCorrupted
		}
		if span.Offset > next {
			dirty = true
		}
		next = span.Offset + span.Size
	}
	if next > size {
		return StateCorrupted
	}
	if next < size {
		dirty = true
	}
	if dirty {
		return StateDirty
	}
	return StateOK
}

func (s *concatSegment) Repack(expected []Span) ([]Span, int64, error) {
	oldSize, err := util.FileSize(s.abspath())
	if err != nil {
		return nil, 0, err
	}

	tmp := s.abspath() + ".repack"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0o666)
	if err != nil {
		return nil, 0, err
	}
	defer os.Remove(tmp)

	newSpans := make([]Span, 0, len(expected))
	var pos uint64
	for _, span := range expected {
		payload, err := s.Read(span)
		if err != nil {
			out.Close()
			return nil, 0, err
		}
		if _, err := out.Write(payload); err != nil {
			out.Close()
			return nil, 0, err
		}
		newSpans = append(newSpans, Span{Offset: pos, Size: span.Size})
		pos += span.Size
	}
	if err := out.Close(); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(tmp, s.abspath()); err != nil {
		return nil, 0, err
	}
	return newSpans, oldSize - int64(pos), nil
}

func (s *concatSegment) Remove() error {
	return os.Remove(s.abspath())
}
