// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "fmt"

type ProddefStyle uint8

const ProddefGRIB ProddefStyle = 1

// Proddef carries additional product definition keys (ensemble
// member info and the like) as a value bag.
type Proddef struct {
	Style  ProddefStyle
	Values *ValueBag
}

func NewProddefGRIB(values *ValueBag) Proddef {
	if values == nil {
		values = NewValueBag()
	}
	return Proddef{Style: ProddefGRIB, Values: values}
}

func (Proddef) Code() Code { return CodeProddef }

func (p Proddef) String() string {
	return fmt.Sprintf("GRIB(%s)", p.Values)
}

func (p Proddef) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(p.Style), 1)
	p.Values.encode(enc)
}

func decodeProddef(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "proddef style")
	if err != nil {
		return nil, err
	}
	if ProddefStyle(s) != ProddefGRIB {
		return nil, fmt.Errorf("decoding proddef: unknown style %d", s)
	}
	vals, err := decodeValueBag(dec, "proddef values")
	if err != nil {
		return nil, err
	}
	return NewProddefGRIB(vals), nil
}

func (p Proddef) compareLocal(oi Item) int {
	v := oi.(Proddef)
	if d := int(p.Style) - int(v.Style); d != 0 {
		return d
	}
	return p.Values.Compare(v.Values)
}
