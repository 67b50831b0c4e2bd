// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"bytes"
	"fmt"
)

// Value holds opaque bytes from which the original message can be
// reconstructed, used for small line-oriented formats like VM2 where
// storing the whole payload in the index is cheaper than a blob read.
type Value struct {
	Data []byte
}

func NewValue(data []byte) Value {
	return Value{Data: append([]byte(nil), data...)}
}

func (Value) Code() Code { return CodeValue }

func (v Value) String() string {
	return fmt.Sprintf("VALUE(%d bytes)", len(v.Data))
}

func (v Value) encodeBody(enc *Encoder) {
	enc.AddVarint(uint64(len(v.Data)))
	enc.AddBytes(v.Data)
}

func decodeValue(dec *Decoder) (Item, error) {
	n, err := dec.PopVarint("value size")
	if err != nil {
		return nil, err
	}
	b, err := dec.PopBytes(int(n), "value data")
	if err != nil {
		return nil, err
	}
	return NewValue(b), nil
}

func (v Value) compareLocal(oi Item) int {
	return bytes.Compare(v.Data, oi.(Value).Data)
}
