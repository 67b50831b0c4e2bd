// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

type SourceStyle uint8

const (
	SourceBlob   SourceStyle = 1
	SourceURL    SourceStyle = 2
	SourceInline SourceStyle = 3
)

func (s SourceStyle) String() string {
	switch s {
	case SourceBlob:
		return "BLOB"
	case SourceURL:
		return "URL"
	case SourceInline:
		return "INLINE"
	}
	return fmt.Sprintf("source-style(%d)", uint8(s))
}

// Source points from metadata to the payload bytes. Blob sources
// address a (segment-relative path, offset, size) triple; the Basedir
// is runtime context and is not encoded.
type Source struct {
	Style  SourceStyle
	Format string

	// Blob fields. Basedir is the dataset root the Filename is
	// relative to; it is rebound when metadata crosses datasets.
	Basedir  string
	Filename string
	Offset   uint64
	Size     uint64

	// URL field.
	URL string
}

func NewSourceBlob(format, basedir, filename string, offset, size uint64) Source {
	return Source{
		Style: SourceBlob, Format: format,
		Basedir: basedir, Filename: filename, Offset: offset, Size: size,
	}
}

func NewSourceInline(format string, size uint64) Source {
	return Source{Style: SourceInline, Format: format, Size: size}
}

func NewSourceURL(format, url string) Source {
	return Source{Style: SourceURL, Format: format, URL: url}
}

func (Source) Code() Code { return CodeSource }

// AbsolutePath resolves the blob pathname against its basedir.
func (s Source) AbsolutePath() string {
	if filepath.IsAbs(s.Filename) || s.Basedir == "" {
		return filepath.Clean(s.Filename)
	}
	return filepath.Clean(filepath.Join(s.Basedir, s.Filename))
}

func (s Source) String() string {
	switch s.Style {
	case SourceBlob:
		return fmt.Sprintf("BLOB(%s,%s:%d+%d)", s.Format, s.Filename, s.Offset, s.Size)
	case SourceURL:
		return fmt.Sprintf("URL(%s,%s)", s.Format, s.URL)
	case SourceInline:
		return fmt.Sprintf("INLINE(%s,%d)", s.Format, s.Size)
	}
	return "SOURCE(invalid)"
}

func (s Source) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(s.Style), 1)
	enc.AddString(s.Format)
	switch s.Style {
	case SourceBlob:
		enc.AddString(s.Filename)
		enc.AddVarint(s.Offset)
		enc.AddVarint(s.Size)
	case SourceURL:
		enc.AddString(s.URL)
	case SourceInline:
		enc.AddVarint(s.Size)
	}
}

func decodeSource(dec *Decoder) (Item, error) {
	st, err := dec.PopUInt(1, "source style")
	if err != nil {
		return nil, err
	}
	format, err := dec.PopString("source format")
	if err != nil {
		return nil, err
	}
	switch SourceStyle(st) {
	case SourceBlob:
		fname, err := dec.PopString("blob filename")
		if err != nil {
			return nil, err
		}
		offset, err := dec.PopVarint("blob offset")
		if err != nil {
			return nil, err
		}
		size, err := dec.PopVarint("blob size")
		if err != nil {
			return nil, err
		}
		return NewSourceBlob(format, "", fname, offset, size), nil
	case SourceURL:
		url, err := dec.PopString("source url")
		if err != nil {
			return nil, err
		}
		return NewSourceURL(format, url), nil
	case SourceInline:
		size, err := dec.PopVarint("inline size")
		if err != nil {
			return nil, err
		}
		return NewSourceInline(format, size), nil
	}
	return nil, fmt.Errorf("decoding source: unknown style %d", st)
}

func (s Source) compareLocal(oi Item) int {
	v := oi.(Source)
	if d := int(s.Style) - int(v.Style); d != 0 {
		return d
	}
	if d := strings.Compare(s.Format, v.Format); d != 0 {
		return d
	}
	switch s.Style {
	case SourceBlob:
		if d := strings.Compare(s.Filename, v.Filename); d != 0 {
			return d
		}
		if s.Offset != v.Offset {
			if s.Offset < v.Offset {
				return -1
			}
			return 1
		}
		if s.Size != v.Size {
			if s.Size < v.Size {
				return -1
			}
			return 1
		}
	case SourceURL:
		return strings.Compare(s.URL, v.URL)
	case SourceInline:
		if s.Size != v.Size {
			if s.Size < v.Size {
				return -1
			}
			return 1
		}
	}
	return 0
}
