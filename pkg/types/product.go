// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"strings"
)

type ProductStyle uint8

const (
	ProductGRIB1  ProductStyle = 1
	ProductGRIB2  ProductStyle = 2
	ProductBUFR   ProductStyle = 3
	ProductODIMH5 ProductStyle = 4
	ProductVM2    ProductStyle = 5
)

func (s ProductStyle) String() string {
	switch s {
	case ProductGRIB1:
		return "GRIB1"
	case ProductGRIB2:
		return "GRIB2"
	case ProductBUFR:
		return "BUFR"
	case ProductODIMH5:
		return "ODIMH5"
	case ProductVM2:
		return "VM2"
	}
	return fmt.Sprintf("product-style(%d)", uint8(s))
}

func ParseProductStyle(s string) (ProductStyle, error) {
	switch s {
	case "GRIB1":
		return ProductGRIB1, nil
	case "GRIB2":
		return ProductGRIB2, nil
	case "BUFR":
		return ProductBUFR, nil
	case "ODIMH5":
		return ProductODIMH5, nil
	case "VM2":
		return ProductVM2, nil
	}
	return 0, fmt.Errorf("cannot parse product style %q", s)
}

// Product identifies what physical quantity a message carries.
type Product struct {
	Style ProductStyle

	// GRIB1: origin/table/product; GRIB2: centre/discipline/category/number.
	Origin     int
	Table      int
	Number     int
	Centre     int
	Discipline int
	Category   int

	// BUFR: type/subtype/localsubtype plus a free value bag. The bag
	// also carries the BUFR update sequence number when present.
	Type         int
	Subtype      int
	LocalSubtype int
	Values       *ValueBag

	// ODIMH5 object/product pair.
	Object  string
	Prod    string

	// VM2 variable id.
	VariableID int
}

func NewProductGRIB1(origin, table, product int) Product {
	return Product{Style: ProductGRIB1, Origin: origin, Table: table, Number: product}
}

func NewProductGRIB2(centre, discipline, category, number int) Product {
	return Product{Style: ProductGRIB2, Centre: centre, Discipline: discipline, Category: category, Number: number}
}

func NewProductBUFR(typ, subtype, localSubtype int, values *ValueBag) Product {
	if values == nil {
		values = NewValueBag()
	}
	return Product{Style: ProductBUFR, Type: typ, Subtype: subtype, LocalSubtype: localSubtype, Values: values}
}

func NewProductODIMH5(object, prod string) Product {
	return Product{Style: ProductODIMH5, Object: object, Prod: prod}
}

func NewProductVM2(variableID int) Product {
	return Product{Style: ProductVM2, VariableID: variableID}
}

func (Product) Code() Code { return CodeProduct }

func (p Product) String() string {
	switch p.Style {
	case ProductGRIB1:
		return fmt.Sprintf("GRIB1(%03d, %03d, %03d)", p.Origin, p.Table, p.Number)
	case ProductGRIB2:
		return fmt.Sprintf("GRIB2(%05d, %03d, %03d, %03d)", p.Centre, p.Discipline, p.Category, p.Number)
	case ProductBUFR:
		if p.Values.Len() == 0 {
			return fmt.Sprintf("BUFR(%03d, %03d, %03d)", p.Type, p.Subtype, p.LocalSubtype)
		}
		return fmt.Sprintf("BUFR(%03d, %03d, %03d, %s)", p.Type, p.Subtype, p.LocalSubtype, p.Values)
	case ProductODIMH5:
		return fmt.Sprintf("ODIMH5(%s, %s)", p.Object, p.Prod)
	case ProductVM2:
		return fmt.Sprintf("VM2(%d)", p.VariableID)
	}
	return "PRODUCT(invalid)"
}

// USN returns the BUFR update sequence number carried in the value
// bag, if any. Used by REPLACE_HIGHER_USN acquire mode.
func (p Product) USN() (int, bool) {
	if p.Style != ProductBUFR || p.Values == nil {
		return 0, false
	}
	v, ok := p.Values.Get("usn")
	if !ok || !v.IsInt {
		return 0, false
	}
	return int(v.Int), true
}

func (p Product) encodeBody(enc *Encoder) {
	enc.AddUInt(uint64(p.Style), 1)
	switch p.Style {
	case ProductGRIB1:
		enc.AddUInt(uint64(p.Origin), 1)
		enc.AddUInt(uint64(p.Table), 1)
		enc.AddUInt(uint64(p.Number), 1)
	case ProductGRIB2:
		enc.AddUInt(uint64(p.Centre), 2)
		enc.AddUInt(uint64(p.Discipline), 1)
		enc.AddUInt(uint64(p.Category), 1)
		enc.AddUInt(uint64(p.Number), 1)
	case ProductBUFR:
		enc.AddUInt(uint64(p.Type), 1)
		enc.AddUInt(uint64(p.Subtype), 1)
		enc.AddUInt(uint64(p.LocalSubtype), 1)
		p.Values.encode(enc)
	case ProductODIMH5:
		enc.AddString(p.Object)
		enc.AddString(p.Prod)
	case ProductVM2:
		enc.AddVarint(uint64(p.VariableID))
	}
}

func decodeProduct(dec *Decoder) (Item, error) {
	s, err := dec.PopUInt(1, "product style")
	if err != nil {
		return nil, err
	}
	switch ProductStyle(s) {
	case ProductGRIB1:
		o, err := dec.PopUInt(1, "GRIB1 origin")
		if err != nil {
			return nil, err
		}
		t, err := dec.PopUInt(1, "GRIB1 table")
		if err != nil {
			return nil, err
		}
		n, err := dec.PopUInt(1, "GRIB1 product")
		if err != nil {
			return nil, err
		}
		return NewProductGRIB1(int(o), int(t), int(n)), nil
	case ProductGRIB2:
		c, err := dec.PopUInt(2, "GRIB2 centre")
		if err != nil {
			return nil, err
		}
		d, err := dec.PopUInt(1, "GRIB2 discipline")
		if err != nil {
			return nil, err
		}
		ca, err := dec.PopUInt(1, "GRIB2 category")
		if err != nil {
			return nil, err
		}
		n, err := dec.PopUInt(1, "GRIB2 number")
		if err != nil {
			return nil, err
		}
		return NewProductGRIB2(int(c), int(d), int(ca), int(n)), nil
	case ProductBUFR:
		t, err := dec.PopUInt(1, "BUFR type")
		if err != nil {
			return nil, err
		}
		st, err := dec.PopUInt(1, "BUFR subtype")
		if err != nil {
			return nil, err
		}
		lt, err := dec.PopUInt(1, "BUFR localsubtype")
		if err != nil {
			return nil, err
		}
		vals, err := decodeValueBag(dec, "BUFR product values")
		if err != nil {
			return nil, err
		}
		return NewProductBUFR(int(t), int(st), int(lt), vals), nil
	case ProductODIMH5:
		obj, err := dec.PopString("ODIMH5 object")
		if err != nil {
			return nil, err
		}
		prod, err := dec.PopString("ODIMH5 product")
		if err != nil {
			return nil, err
		}
		return NewProductODIMH5(obj, prod), nil
	case ProductVM2:
		id, err := dec.PopVarint("VM2 variable id")
		if err != nil {
			return nil, err
		}
		return NewProductVM2(int(id)), nil
	}
	return nil, fmt.Errorf("decoding product: unknown style %d", s)
}

func (p Product) compareLocal(oi Item) int {
	v := oi.(Product)
	if d := int(p.Style) - int(v.Style); d != 0 {
		return d
	}
	switch p.Style {
	case ProductGRIB1:
		for _, d := range []int{p.Origin - v.Origin, p.Table - v.Table, p.Number - v.Number} {
			if d != 0 {
				return d
			}
		}
	case ProductGRIB2:
		for _, d := range []int{p.Centre - v.Centre, p.Discipline - v.Discipline, p.Category - v.Category, p.Number - v.Number} {
			if d != 0 {
				return d
			}
		}
	case ProductBUFR:
		for _, d := range []int{p.Type - v.Type, p.Subtype - v.Subtype, p.LocalSubtype - v.LocalSubtype} {
			if d != 0 {
				return d
			}
		}
		return p.Values.Compare(v.Values)
	case ProductODIMH5:
		if d := strings.Compare(p.Object, v.Object); d != 0 {
			return d
		}
		return strings.Compare(p.Prod, v.Prod)
	case ProductVM2:
		return p.VariableID - v.VariableID
	}
	return 0
}
