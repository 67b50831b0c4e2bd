// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"io"
)

// ItemSet is a collection of metadata items with at most one item per
// kind, stored by kind code.
type ItemSet struct {
	items [maxCode]Item
}

func (s *ItemSet) Set(it Item) {
	s.items[it.Code()] = it
}

func (s *ItemSet) Get(code Code) Item {
	if int(code) >= maxCode {
		return nil
	}
	return s.items[code]
}

func (s *ItemSet) Has(code Code) bool { return s.Get(code) != nil }

func (s *ItemSet) Unset(code Code) {
	if int(code) < maxCode {
		s.items[code] = nil
	}
}

// Items returns the present items in kind code order.
func (s *ItemSet) Items() []Item {
	var out []Item
	for _, it := range s.items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}

// Compare is lexicographic over the fixed scan order; an absent item
// sorts before any present one.
func (s *ItemSet) Compare(o *ItemSet) int {
	for _, code := range ScanOrder {
		a, b := s.Get(code), o.Get(code)
		switch {
		case a == nil && b == nil:
		case a == nil:
			return -1
		case b == nil:
			return 1
		default:
			if d := Compare(a, b); d != 0 {
				return d
			}
		}
	}
	return 0
}

func (s *ItemSet) Equal(o *ItemSet) bool { return s.Compare(o) == 0 }

// Metadata describes one archived message: its item set plus the
// source pointer, processing notes and, optionally, the inline
// payload bytes.
type Metadata struct {
	ItemSet

	source  *Source
	notes   []Note
	payload []byte
}

func (md *Metadata) HasSource() bool { return md.source != nil }

func (md *Metadata) Source() Source {
	if md.source == nil {
		return Source{}
	}
	return *md.source
}

func (md *Metadata) SetSource(s Source) { md.source = &s }

func (md *Metadata) UnsetSource() {
	md.source = nil
	md.payload = nil
}

// SetSourceInline attaches the payload and an inline source for it.
func (md *Metadata) SetSourceInline(format string, data []byte) {
	md.payload = append([]byte(nil), data...)
	md.SetSource(NewSourceInline(format, uint64(len(data))))
}

// PayloadData returns the payload carried inline with the metadata,
// or reconstructable from a Value item. Blob payloads are read by the
// segment layer instead.
func (md *Metadata) PayloadData() ([]byte, bool) {
	if md.payload != nil {
		return md.payload, true
	}
	if v := md.Get(CodeValue); v != nil {
		return v.(Value).Data, true
	}
	return nil, false
}

func (md *Metadata) Notes() []Note { return md.notes }

func (md *Metadata) AddNote(content string) {
	md.notes = append(md.notes, NewNote(content))
}

// AddNoteItem appends an already built note, preserving its time.
func (md *Metadata) AddNoteItem(n Note) {
	md.notes = append(md.notes, n)
}

func (md *Metadata) ClearNotes() { md.notes = nil }

func (md *Metadata) Reftime() (Reftime, bool) {
	it := md.Get(CodeReftime)
	if it == nil {
		return Reftime{}, false
	}
	return it.(Reftime), true
}

func (md *Metadata) Clone() *Metadata {
	out := &Metadata{}
	out.items = md.items
	if md.source != nil {
		s := *md.source
		out.source = &s
	}
	out.notes = append([]Note(nil), md.notes...)
	out.payload = append([]byte(nil), md.payload...)
	return out
}

// Encode returns the bundle body: all items in kind order, then the
// notes, with the source last.
func (md *Metadata) Encode() []byte {
	var enc Encoder
	for _, it := range md.Items() {
		EncodeTo(&enc, it)
	}
	for _, n := range md.notes {
		EncodeTo(&enc, n)
	}
	if md.source != nil {
		EncodeTo(&enc, *md.source)
	}
	return enc.Bytes()
}

// Write emits the framed metadata record; inline payloads follow the
// bundle immediately.
func (md *Metadata) Write(w io.Writer) error {
	if err := WriteBundle(w, BundleMetadata, BundleVersion, md.Encode()); err != nil {
		return err
	}
	if md.source != nil && md.source.Style == SourceInline {
		if _, err := w.Write(md.payload); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMetadata rebuilds a metadata record from a bundle body.
func DecodeMetadata(body []byte) (*Metadata, error) {
	md := &Metadata{}
	dec := NewDecoder(body)
	for dec.Remaining() > 0 {
		it, err := Decode(dec)
		if err != nil {
			return nil, err
		}
		switch v := it.(type) {
		case Note:
			md.notes = append(md.notes, v)
		case Source:
			md.SetSource(v)
		default:
			md.Set(it)
		}
	}
	return md, nil
}

// ReadMetadata reads the next metadata record from r, including any
// inline payload. Returns io.EOF at end of stream.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	signature, version, body, err := ReadBundle(r)
	if err != nil {
		return nil, err
	}
	if signature != BundleMetadata {
		return nil, fmt.Errorf("reading metadata: found bundle signature %q instead of %q", signature, BundleMetadata)
	}
	if version > BundleVersion {
		return nil, fmt.Errorf("reading metadata: unsupported bundle version %d", version)
	}
	md, err := DecodeMetadata(body)
	if err != nil {
		return nil, err
	}
	if md.source != nil && md.source.Style == SourceInline {
		md.payload = make([]byte, md.source.Size)
		if _, err := io.ReadFull(r, md.payload); err != nil {
			return nil, fmt.Errorf("reading %d bytes of inline data: %w", md.source.Size, err)
		}
	}
	return md, nil
}

// WriteYaml dumps the record in the human-readable key: value form.
func (md *Metadata) WriteYaml(w io.Writer) error {
	if md.source != nil {
		if _, err := fmt.Fprintf(w, "Source: %s\n", md.source); err != nil {
			return err
		}
	}
	for _, it := range md.Items() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", it.Code().Tag(), it); err != nil {
			return err
		}
	}
	for _, n := range md.notes {
		if _, err := fmt.Fprintf(w, "Note: %s\n", n); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
