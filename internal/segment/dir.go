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
	"strconv"
	"strings"

	"github.com/meteo-dpc/arkive/internal/util"
)

// dirSegment stores one payload per numbered file inside a directory:
// 000000.ext, 000001.ext, ... A .sequence file holds the next id and
// is updated under an exclusive fcntl lock, so concurrent importers
// in different processes never hand out the same id. The span offset
// recorded in the index is the numeric id.
type dirSegment struct {
	root    string
	relpath string
	ext     string
}

func (s *dirSegment) Relpath() string { return s.relpath }

func (s *dirSegment) abspath() string { return filepath.Join(s.root, s.relpath) }

func (s *dirSegment) filePath(id uint64) string {
	return filepath.Join(s.abspath(), fmt.Sprintf("%06d.%s", id, s.ext))
}

// nextID reads, increments and writes back the sequence under lock.
func (s *dirSegment) nextID() (uint64, error) {
	seqPath := filepath.Join(s.abspath(), ".sequence")
	lock, err := util.AcquireLock(seqPath)
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	f := lock.File()
	raw, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	var id uint64
	if text := strings.TrimSpace(string(raw)); text != "" {
		if id, err = strconv.ParseUint(text, 10, 64); err != nil {
			return 0, fmt.Errorf("parsing %s: %w", seqPath, err)
		}
	}
	if err := f.Truncate(0); err != nil {
		return 0, err
	}
	if _, err := f.WriteAt([]byte(strconv.FormatUint(id+1, 10)+"\n"), 0); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *dirSegment) Append(payload []byte) (Span, error) {
	if err := os.MkdirAll(s.abspath(), 0o777); err != nil {
		return Span{}, err
	}
	for {
		id, err := s.nextID()
		if err != nil {
			return Span{}, err
		}
		f, err := os.OpenFile(s.filePath(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
		if os.IsExist(err) {
			// Someone wrote this id outside of the sequence; move on
			// to the next one.
			continue
		}
		if err != nil {
			return Span{}, err
		}
		if _, err := f.Write(payload); err != nil {
			f.Close()
			return Span{}, fmt.Errorf("writing %s: %w", s.filePath(id), err)
		}
		if err := f.Close(); err != nil {
			return Span{}, err
		}
		return Span{Offset: id, Size: uint64(len(payload))}, nil
	}
}

func (s *dirSegment) Read(span Span) ([]byte, error) {
	buf, err := os.ReadFile(s.filePath(span.Offset))
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) != span.Size {
		return nil, fmt.Errorf("%s: %w: expected %d bytes, found %d",
			s.filePath(span.Offset), ErrCorrupted, span.Size, len(buf))
	}
	return buf, nil
}

func (s *dirSegment) Check(expected []Span, quick bool) State {
	fi, err := os.Stat(s.abspath())
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateCorrupted
	}
	if !fi.IsDir() {
		return StateCorrupted
	}

	known := make(map[uint64]uint64, len(expected))
	for _, span := range expected {
		known[span.Offset] = span.Size
	}

	entries, err := os.ReadDir(s.abspath())
	if err != nil {
		return StateCorrupted
	}
	seen := 0
	dirty := false
	for _, e := range entries {
		name := e.Name()
		if name == ".sequence" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, "."+s.ext), 10, 64)
		if err != nil || !strings.HasSuffix(name, "."+s.ext) {
			dirty = true
			continue
		}
		size, ok := known[id]
		if !ok {
			dirty = true
			continue
		}
		seen++
		if !quick {
			if info, err := e.Info(); err != nil || uint64(info.Size()) != size {
				return StateCorrupted
			}
		}
	}
	if seen < len(known) {
		return StateCorrupted
	}
	if dirty {
		return StateDirty
	}
	return StateOK
}

func (s *dirSegment) Repack(expected []Span) ([]Span, int64, error) {
	known := make(map[uint64]bool, len(expected))
	for _, span := range expected {
		known[span.Offset] = true
	}

	var reclaimed int64
	entries, err := os.ReadDir(s.abspath())
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		name := e.Name()
		if name == ".sequence" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, "."+s.ext), 10, 64)
		if err == nil && known[id] {
			continue
		}
		if info, err := e.Info(); err == nil {
			reclaimed += info.Size()
		}
		if err := os.Remove(filepath.Join(s.abspath(), name)); err != nil {
			return nil, 0, err
		}
	}
	// Ids are stable: spans do not move.
	return append([]Span(nil), expected...), reclaimed, nil
}

func (s *dirSegment) Remove() error {
	return os.RemoveAll(s.abspath())
}
