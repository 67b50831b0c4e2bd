// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meteo-dpc/arkive/internal/util"
)

// gzipSegment stores the concatenated payload stream compressed, one
// gzip member per append, next to a .gz.idx file listing the
// (uncompressed offset, compressed offset) boundary of each member.
// Spans address the uncompressed stream; reads inflate the covering
// member only.
type gzipSegment struct {
	root    string
	relpath string
}

type gzBlock struct {
	uoff uint64 // uncompressed start of the member
	coff uint64 // compressed file offset of the member
}

func (s *gzipSegment) Relpath() string { return s.relpath }

func (s *gzipSegment) dataPath() string {
	return filepath.Join(s.root, s.relpath) + ".gz"
}

func (s *gzipSegment) idxPath() string {
	return filepath.Join(s.root, s.relpath) + ".gz.idx"
}

func (s *gzipSegment) loadIndex() ([]gzBlock, error) {
	f, err := os.Open(s.idxPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var blocks []gzBlock
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s: %w: malformed index line %q", s.idxPath(), ErrCorrupted, scanner.Text())
		}
		uoff, err1 := strconv.ParseUint(fields[0], 10, 64)
		coff, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%s: %w: malformed index line %q", s.idxPath(), ErrCorrupted, scanner.Text())
		}
		blocks = append(blocks, gzBlock{uoff: uoff, coff: coff})
	}
	return blocks, scanner.Err()
}

// uncompressedEnd is the logical size of the stream: the start of the
// last member plus its inflated length.
func (s *gzipSegment) uncompressedEnd(blocks []gzBlock) (uint64, error) {
	if len(blocks) == 0 {
		return 0, nil
	}
	last := blocks[len(blocks)-1]
	f, err := os.Open(s.dataPath())
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(last.coff), io.SeekStart); err != nil {
		return 0, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer zr.Close()
	zr.Multistream(false)
	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		return 0, err
	}
	return last.uoff + uint64(n), nil
}

func (s *gzipSegment) Append(payload []byte) (Span, error) {
	if err := ensureParent(s.dataPath()); err != nil {
		return Span{}, err
	}
	blocks, err := s.loadIndex()
	if err != nil {
		return Span{}, err
	}
	uoff, err := s.uncompressedEnd(blocks)
	if err != nil {
		return Span{}, err
	}

	f, err := os.OpenFile(s.dataPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return Span{}, err
	}
	coff, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return Span{}, err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(payload); err != nil {
		f.Close()
		return Span{}, err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return Span{}, err
	}
	if err := f.Close(); err != nil {
		return Span{}, err
	}

	idx, err := os.OpenFile(s.idxPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return Span{}, err
	}
	if _, err := fmt.Fprintf(idx, "%d %d\n", uoff, coff); err != nil {
		idx.Close()
		return Span{}, err
	}
	if err := idx.Close(); err != nil {
		return Span{}, err
	}
	return Span{Offset: uoff, Size: uint64(len(payload))}, nil
}

func (s *gzipSegment) Read(span Span) ([]byte, error) {
	blocks, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	// Find the last member starting at or before the span.
	blockIdx := -1
	for i, b := range blocks {
		if b.uoff <= span.Offset {
			blockIdx = i
		}
	}
	if blockIdx < 0 {
		return nil, fmt.Errorf("%s: %w: no block covers offset %d", s.dataPath(), ErrCorrupted, span.Offset)
	}
	block := blocks[blockIdx]

	f, err := os.Open(s.dataPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(block.coff), io.SeekStart); err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	if skip := span.Offset - block.uoff; skip > 0 {
		if _, err := io.CopyN(io.Discard, zr, int64(skip)); err != nil {
			return nil, fmt.Errorf("seeking to offset %d in %s: %w", span.Offset, s.dataPath(), err)
		}
	}
	buf := make([]byte, span.Size)
	if _, err := io.ReadFull(zr, buf); err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d from %s: %w", span.Size, span.Offset, s.dataPath(), err)
	}
	return buf, nil
}

func (s *gzipSegment) Check(expected []Span, quick bool) State {
	blocks, err := s.loadIndex()
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateCorrupted
	}
	if _, err := os.Stat(s.dataPath()); err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateCorrupted
	}

	end, err := s.uncompressedEnd(blocks)
	if err != nil {
		return StateCorrupted
	}

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
		next = span.Offset + span.Size
	}
	if next > end {
		return StateCorrupted
	}
	if next < end {
		dirty = true
	}
	if !quick {
		for _, span := range spans {
			if _, err := s.Read(span); err != nil {
				return StateCorrupted
			}
		}
	}
	if dirty {
		return StateDirty
	}
	return StateOK
}

func (s *gzipSegment) Repack(expected []Span) ([]Span, int64, error) {
	oldSize, err := os.Stat(s.dataPath())
	if err != nil {
		return nil, 0, err
	}

	payloads := make([][]byte, 0, len(expected))
	for _, span := range expected {
		p, err := s.Read(span)
		if err != nil {
			return nil, 0, err
		}
		payloads = append(payloads, p)
	}

	tmpData := s.dataPath() + ".repack"
	tmpIdx := s.idxPath() + ".repack"
	defer os.Remove(tmpData)
	defer os.Remove(tmpIdx)

	data, err := os.OpenFile(tmpData, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0o666)
	if err != nil {
		return nil, 0, err
	}
	idx, err := os.OpenFile(tmpIdx, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0o666)
	if err != nil {
		data.Close()
		return nil, 0, err
	}

	newSpans := make([]Span, 0, len(expected))
	var uoff, coff uint64
	for i, p := range payloads {
		if _, err := fmt.Fprintf(idx, "%d %d\n", uoff, coff); err != nil {
			data.Close()
			idx.Close()
			return nil, 0, err
		}
		zw := gzip.NewWriter(data)
		if _, err := zw.Write(p); err != nil {
			data.Close()
			idx.Close()
			return nil, 0, err
		}
		if err := zw.Close(); err != nil {
			data.Close()
			idx.Close()
			return nil, 0, err
		}
		newSpans = append(newSpans, Span{Offset: uoff, Size: expected[i].Size})
		uoff += expected[i].Size
		pos, err := data.Seek(0, io.SeekCurrent)
		if err != nil {
			data.Close()
			idx.Close()
			return nil, 0, err
		}
		coff = uint64(pos)
	}
	if err := data.Close(); err != nil {
		idx.Close()
		return nil, 0, err
	}
	if err := idx.Close(); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(tmpData, s.dataPath()); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(tmpIdx, s.idxPath()); err != nil {
		return nil, 0, err
	}

	newSize, err := util.FileSize(s.dataPath())
	if err != nil {
		return nil, 0, err
	}
	return newSpans, oldSize.Size() - newSize, nil
}

func (s *gzipSegment) Remove() error {
	if err := os.Remove(s.dataPath()); err != nil {
		return err
	}
	if err := os.Remove(s.idxPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
