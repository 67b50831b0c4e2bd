// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package summary

import (
	"fmt"
	"io"
	"os"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// Binary layout of a summary bundle body:
//
//	varint item count, then each distinct item envelope-encoded
//	varint row count, then per row:
//	    varint bitmap of present kinds (bit i = ScanOrder[i])
//	    varint intern-table index per present kind
//	    varint count, varint size, begin time, end time
//
// The intern table keeps repeated value-bag items encoded once.

// Encode returns the bundle body.
func (s *Summary) Encode() []byte {
	itemIndex := make(map[string]uint64)
	var items []types.Item

	for _, k := range s.sortedKeys() {
		r := s.rows[k]
		for _, code := range types.ScanOrder {
			if it := r.items.Get(code); it != nil {
				ek := string(types.Encode(it))
				if _, ok := itemIndex[ek]; !ok {
					itemIndex[ek] = uint64(len(items))
					items = append(items, it)
				}
			}
		}
	}

	var enc types.Encoder
	enc.AddVarint(uint64(len(items)))
	for _, it := range items {
		types.EncodeTo(&enc, it)
	}

	enc.AddVarint(uint64(len(s.rows)))
	for _, k := range s.sortedKeys() {
		r := s.rows[k]
		var bitmap uint64
		for i, code := range types.ScanOrder {
			if r.items.Has(code) {
				bitmap |= 1 << uint(i)
			}
		}
		enc.AddVarint(bitmap)
		for _, code := range types.ScanOrder {
			if it := r.items.Get(code); it != nil {
				enc.AddVarint(itemIndex[string(types.Encode(it))])
			}
		}
		enc.AddVarint(r.stats.Count)
		enc.AddVarint(r.stats.Size)
		types.EncodeTimeTo(&enc, r.stats.Begin)
		types.EncodeTimeTo(&enc, r.stats.End)
	}
	return enc.Bytes()
}

// Decode rebuilds a summary from a bundle body.
func Decode(body []byte) (*Summary, error) {
	dec := types.NewDecoder(body)

	nitems, err := dec.PopVarint("summary item count")
	if err != nil {
		return nil, err
	}
	items := make([]types.Item, 0, nitems)
	for i := uint64(0); i < nitems; i++ {
		it, err := types.Decode(dec)
		if err != nil {
			return nil, fmt.Errorf("summary intern table entry %d: %w", i, err)
		}
		items = append(items, it)
	}

	nrows, err := dec.PopVarint("summary row count")
	if err != nil {
		return nil, err
	}
	s := New()
	for i := uint64(0); i < nrows; i++ {
		bitmap, err := dec.PopVarint("summary row bitmap")
		if err != nil {
			return nil, err
		}
		var set types.ItemSet
		for bit, code := range types.ScanOrder {
			if bitmap&(1<<uint(bit)) == 0 {
				continue
			}
			idx, err := dec.PopVarint("summary row item index")
			if err != nil {
				return nil, err
			}
			if idx >= uint64(len(items)) {
				return nil, fmt.Errorf("summary row %d: item index %d out of table", i, idx)
			}
			it := items[idx]
			if it.Code() != code {
				return nil, fmt.Errorf("summary row %d: item %s where %s expected", i, it.Code(), code)
			}
			set.Set(it)
		}
		var st Stats
		if st.Count, err = dec.PopVarint("summary row count"); err != nil {
			return nil, err
		}
		if st.Size, err = dec.PopVarint("summary row size"); err != nil {
			return nil, err
		}
		if st.Begin, err = types.DecodeTimeFrom(dec, "summary row begin"); err != nil {
			return nil, err
		}
		if st.End, err = types.DecodeTimeFrom(dec, "summary row end"); err != nil {
			return nil, err
		}
		s.addRow(&set, st)
	}
	return s, nil
}

// Write emits the framed summary.
func (s *Summary) Write(w io.Writer) error {
	return types.WriteBundle(w, types.BundleSummary, types.BundleVersion, s.Encode())
}

// Read reads one framed summary. Returns io.EOF at end of stream.
func Read(r io.Reader) (*Summary, error) {
	signature, version, body, err := types.ReadBundle(r)
	if err != nil {
		return nil, err
	}
	if signature != types.BundleSummary {
		return nil, fmt.Errorf("reading summary: found bundle signature %q instead of %q", signature, types.BundleSummary)
	}
	if version > types.BundleVersion {
		return nil, fmt.Errorf("reading summary: unsupported bundle version %d", version)
	}
	return Decode(body)
}

// ReadFile loads a summary file.
func ReadFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}
