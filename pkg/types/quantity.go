// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"sort"
	"strings"
)

// Quantity is the set of physical quantities an ODIMH5 product
// carries. The set is kept sorted, making comparisons canonical.
type Quantity struct {
	Values []string
}

func NewQuantity(values ...string) Quantity {
	seen := make(map[string]bool, len(values))
	var vs []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			vs = append(vs, v)
		}
	}
	sort.Strings(vs)
	return Quantity{Values: vs}
}

func (Quantity) Code() Code { return CodeQuantity }

func (q Quantity) Has(v string) bool {
	i := sort.SearchStrings(q.Values, v)
	return i < len(q.Values) && q.Values[i] == v
}

func (q Quantity) String() string {
	return strings.Join(q.Values, ", ")
}

func (q Quantity) encodeBody(enc *Encoder) {
	enc.AddVarint(uint64(len(q.Values)))
	for _, v := range q.Values {
		enc.AddString(v)
	}
}

func decodeQuantity(dec *Decoder) (Item, error) {
	n, err := dec.PopVarint("quantity count")
	if err != nil {
		return nil, err
	}
	vs := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := dec.PopString("quantity value")
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return NewQuantity(vs...), nil
}

func (q Quantity) compareLocal(oi Item) int {
	v := oi.(Quantity)
	for i := 0; i < len(q.Values) && i < len(v.Values); i++ {
		if d := strings.Compare(q.Values[i], v.Values[i]); d != 0 {
			return d
		}
	}
	return len(q.Values) - len(v.Values)
}
