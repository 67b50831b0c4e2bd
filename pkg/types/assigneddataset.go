// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"fmt"
	"strings"
	"time"
)

// AssignedDataset records which dataset a message was stored in, and
// under which local id. It is stamped at acquire time.
type AssignedDataset struct {
	Changed Time
	Name    string
	ID      string
}

func NewAssignedDataset(name, id string) AssignedDataset {
	return AssignedDataset{Changed: TimeOf(time.Now()), Name: name, ID: id}
}

func (AssignedDataset) Code() Code { return CodeAssignedDataset }

func (a AssignedDataset) String() string {
	return fmt.Sprintf("%s as %s imported on %s", a.Name, a.ID, a.Changed)
}

func (a AssignedDataset) encodeBody(enc *Encoder) {
	a.Changed.encode(enc)
	enc.AddString(a.Name)
	enc.AddString(a.ID)
}

func decodeAssignedDataset(dec *Decoder) (Item, error) {
	t, err := decodeTime(dec, "assigneddataset time")
	if err != nil {
		return nil, err
	}
	name, err := dec.PopString("assigneddataset name")
	if err != nil {
		return nil, err
	}
	id, err := dec.PopString("assigneddataset id")
	if err != nil {
		return nil, err
	}
	return AssignedDataset{Changed: t, Name: name, ID: id}, nil
}

func (a AssignedDataset) compareLocal(oi Item) int {
	v := oi.(AssignedDataset)
	if d := strings.Compare(a.Name, v.Name); d != 0 {
		return d
	}
	return strings.Compare(a.ID, v.ID)
}
