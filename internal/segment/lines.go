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
)

// linesSegment stores one payload per line, the layout for VM2 point
// data. The newline is segment overhead: the size recorded for a
// payload does not include it.
type linesSegment struct {
	root    string
	relpath string
}

func (s *linesSegment) Relpath() string { return s.relpath }

func (s *linesSegment) abspath() string { return filepath.Join(s.root, s.relpath) }

func (s *linesSegment) Append(payload []byte) (Span, error) {
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
	if _, err := f.Write(append(append([]byte(nil), payload...), '\n')); err != nil {
		return Span{}, fmt.Errorf("appending line to %s: %w", s.abspath(), err)
	}
	return Span{Offset: uint64(pos), Size: uint64(len(payload))}, nil
}

func (s *linesSegment) Read(span Span) ([]byte, error) {
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

func (s *linesSegment) Check(expected []Span, quick bool) State {
	fi, err := os.Stat(s.abspath())
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateCorrupted
	}
	size := uint64(fi.Size())

	spans := sortedByOffset(expected)
	var next uint64
	dirty := false
	for _, span := range spans {
		if span.Offset < next {
			return StateCorrupted
		}
		if span.Offset > next {
			dirty = true
		}
		// Every payload is followed by its newline.
		next = span.Offset + span.Size + 1
	}
	if next > size {
		return StateCorrupted
	}
	if next < size {
		dirty = true
	}
	if !quick && !dirty && size > 0 {
		// The byte before each next payload must be a newline.
		f, err := os.Open(s.abspath())
		if err != nil {
			return StateCorrupted
		}
		defer f.Close()
		one := make([]byte, 1)
		for _, span := range spans {
			if _, err := f.ReadAt(one, int64(span.Offset+span.Size)); err != nil || one[0] != '\n' {
				return StateCorrupted
			}
		}
	}
	if dirty {
		return StateDirty
	}
	return StateOK
}

func (s *linesSegment) Repack(expected []Span) ([]Span, int64, error) {
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
		if _, err := out.Write(append(payload, '\n')); err != nil {
			out.Close()
			return nil, 0, err
		}
		newSpans = append(newSpans, Span{Offset: pos, Size: span.Size})
		pos += span.Size + 1
	}
	if err := out.Close(); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(tmp, s.abspath()); err != nil {
		return nil, 0, err
	}
	return newSpans, oldSize - int64(pos), nil
}

func (s *linesSegment) Remove() error {
	return os.Remove(s.abspath())
}
