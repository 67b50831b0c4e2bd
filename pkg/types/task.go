// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "strings"

// Task names the acquisition task that produced an ODIMH5 product.
type Task struct {
	Value string
}

func NewTask(value string) Task { return Task{Value: value} }

func (Task) Code() Code { return CodeTask }

func (t Task) String() string { return t.Value }

func (t Task) encodeBody(enc *Encoder) {
	enc.AddString(t.Value)
}

func decodeTask(dec *Decoder) (Item, error) {
	v, err := dec.PopString("task value")
	if err != nil {
		return nil, err
	}
	return NewTask(v), nil
}

func (t Task) compareLocal(oi Item) int {
	return strings.Compare(t.Value, oi.(Task).Value)
}
