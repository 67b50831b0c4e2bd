// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package types implements the typed metadata items attached to every
// archived message, their binary and text codecs and their total
// ordering. Every item kind is a small value type; encode, decode and
// compare dispatch on the (kind, style) pair in one place each.
package types

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Code identifies a metadata item kind in the binary envelope.
// Values are stable on disk and must never be reused.
type Code uint8

const (
	CodeOrigin          Code = 1
	CodeProduct         Code = 2
	CodeLevel           Code = 3
	CodeTimerange       Code = 4
	CodeReftime         Code = 5
	CodeNote            Code = 6
	CodeSource          Code = 7
	CodeAssignedDataset Code = 8
	CodeArea            Code = 9
	CodeProddef         Code = 10
	CodeSummaryItem     Code = 11
	CodeSummaryStats    Code = 12
	CodeBBox            Code = 13
	CodeRun             Code = 14
	CodeTask            Code = 15
	CodeQuantity        Code = 16
	CodeValue           Code = 17

	maxCode = 18
)

// ScanOrder is the fixed kind order used when comparing item sets and
// when building summary row keys.
var ScanOrder = []Code{
	CodeOrigin, CodeProduct, CodeLevel, CodeTimerange, CodeArea,
	CodeProddef, CodeBBox, CodeRun, CodeQuantity, CodeTask,
}

func CheckCodeName(name string) Code {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "origin":
		return CodeOrigin
	case "product":
		return CodeProduct
	case "level":
		return CodeLevel
	case "timerange":
		return CodeTimerange
	case "reftime":
		return CodeReftime
	case "note":
		return CodeNote
	case "source":
		return CodeSource
	case "assigneddataset":
		return CodeAssignedDataset
	case "area":
		return CodeArea
	case "proddef", "ensemble":
		return CodeProddef
	case "bbox":
		return CodeBBox
	case "run":
		return CodeRun
	case "task":
		return CodeTask
	case "quantity":
		return CodeQuantity
	case "value":
		return CodeValue
	}
	return 0
}

func ParseCodeName(name string) (Code, error) {
	c := CheckCodeName(name)
	if c == 0 {
		return 0, fmt.Errorf("unsupported field type: %s", name)
	}
	return c, nil
}

func (c Code) String() string {
	switch c {
	case CodeOrigin:
		return "origin"
	case CodeProduct:
		return "product"
	case CodeLevel:
		return "level"
	case CodeTimerange:
		return "timerange"
	case CodeReftime:
		return "reftime"
	case CodeNote:
		return "note"
	case CodeSource:
		return "source"
	case CodeAssignedDataset:
		return "assigneddataset"
	case CodeArea:
		return "area"
	case CodeProddef:
		return "proddef"
	case CodeSummaryItem:
		return "summaryitem"
	case CodeSummaryStats:
		return "summarystats"
	case CodeBBox:
		return "bbox"
	case CodeRun:
		return "run"
	case CodeTask:
		return "task"
	case CodeQuantity:
		return "quantity"
	case CodeValue:
		return "value"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// Tag returns the capitalised form used in text dumps, e.g. "Origin".
func (c Code) Tag() string {
	s := c.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Item is one typed metadata value. Implementations are immutable
// value types; the style-specific body is encoded without envelope by
// encodeBody and compared by compareLocal, which is only called with
// an item of the same kind.
type Item interface {
	Code() Code
	String() string
	encodeBody(enc *Encoder)
	compareLocal(o Item) int
}

// Encode returns the type-tagged, length-prefixed envelope of it.
func Encode(it Item) []byte {
	var body Encoder
	it.encodeBody(&body)
	var enc Encoder
	enc.AddVarint(uint64(it.Code()))
	enc.AddVarint(uint64(len(body.Bytes())))
	enc.AddBytes(body.Bytes())
	return enc.Bytes()
}

// EncodeTo appends the envelope of it to enc.
func EncodeTo(enc *Encoder, it Item) {
	enc.AddBytes(Encode(it))
}

// EncodeItemBody appends only the style-specific body of it, without
// the envelope. Index attribute tables store bodies: the kind is
// implied by the table.
func EncodeItemBody(enc *Encoder, it Item) {
	it.encodeBody(enc)
}

// Decode reads one enveloped item from dec.
func Decode(dec *Decoder) (Item, error) {
	code, err := dec.PopVarint("element code")
	if err != nil {
		return nil, err
	}
	size, err := dec.PopVarint("element size")
	if err != nil {
		return nil, err
	}
	body, err := dec.PopBytes(int(size), "element body")
	if err != nil {
		return nil, err
	}
	return DecodeBody(Code(code), body)
}

// DecodeBody decodes the style-specific body of an item whose
// envelope has already been read.
func DecodeBody(code Code, body []byte) (Item, error) {
	dec := NewDecoder(body)
	switch code {
	case CodeOrigin:
		return decodeOrigin(dec)
	case CodeProduct:
		return decodeProduct(dec)
	case CodeLevel:
		return decodeLevel(dec)
	case CodeTimerange:
		return decodeTimerange(dec)
	case CodeReftime:
		return decodeReftime(dec)
	case CodeNote:
		return decodeNote(dec)
	case CodeSource:
		return decodeSource(dec)
	case CodeAssignedDataset:
		return decodeAssignedDataset(dec)
	case CodeArea:
		return decodeArea(dec)
	case CodeProddef:
		return decodeProddef(dec)
	case CodeBBox:
		// Compatibility-only: kept opaque, never re-emitted by writers.
		return BBox{raw: append([]byte(nil), body...)}, nil
	case CodeRun:
		return decodeRun(dec)
	case CodeTask:
		return decodeTask(dec)
	case CodeQuantity:
		return decodeQuantity(dec)
	case CodeValue:
		return decodeValue(dec)
	}
	return nil, fmt.Errorf("decoding item: unknown type code %d", code)
}

// Compare imposes the total order (kind code, style, fields...).
func Compare(a, b Item) int {
	if d := int(a.Code()) - int(b.Code()); d != 0 {
		return d
	}
	return a.compareLocal(b)
}

func Equal(a, b Item) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Compare(a, b) == 0
}

/* Bundles */

// Bundle signatures. MD introduces a metadata record, MM a metadata
// group, SU a summary.
const (
	BundleMetadata = "MD"
	BundleGroup    = "MM"
	BundleSummary  = "SU"

	BundleVersion = 0
)

// WriteBundle frames body with the 2-byte signature, a 2-byte version
// and a 4-byte length.
func WriteBundle(w io.Writer, signature string, version uint16, body []byte) error {
	var enc Encoder
	enc.AddBytes([]byte(signature[:2]))
	enc.AddUInt(uint64(version), 2)
	enc.AddUInt(uint64(len(body)), 4)
	if _, err := w.Write(enc.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadBundle reads the next bundle from r, skipping leading NUL
// padding. It returns io.EOF when no further bundle is present.
func ReadBundle(r io.Reader) (signature string, version uint16, body []byte, err error) {
	one := make([]byte, 1)
	for {
		if _, err = io.ReadFull(r, one); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return
		}
		if one[0] != 0 {
			break
		}
	}

	hdr := make([]byte, 8)
	hdr[0] = one[0]
	if _, err = io.ReadFull(r, hdr[1:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return
	}

	signature = string(hdr[:2])
	version = uint16(hdr[2])<<8 | uint16(hdr[3])
	length := uint32(hdr[4])<<24 | uint32(hdr[5])<<16 | uint32(hdr[6])<<8 | uint32(hdr[7])

	body = make([]byte, length)
	if _, err = io.ReadFull(r, body); err != nil {
		err = fmt.Errorf("reading %d byte bundle body: %w", length, err)
		return
	}
	return
}
