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

// Note is a free-form annotation accumulated while a message moves
// through scanning and dispatch. Notes are order-preserving and never
// take part in matching.
type Note struct {
	Time    Time
	Content string
}

func NewNote(content string) Note {
	return Note{Time: TimeOf(time.Now()), Content: content}
}

func (Note) Code() Code { return CodeNote }

func (n Note) String() string {
	return fmt.Sprintf("[%s] %s", n.Time, n.Content)
}

func (n Note) encodeBody(enc *Encoder) {
	n.Time.encode(enc)
	enc.AddString(n.Content)
}

func decodeNote(dec *Decoder) (Item, error) {
	t, err := decodeTime(dec, "note time")
	if err != nil {
		return nil, err
	}
	content, err := dec.PopString("note content")
	if err != nil {
		return nil, err
	}
	return Note{Time: t, Content: content}, nil
}

func (n Note) compareLocal(oi Item) int {
	v := oi.(Note)
	if d := n.Time.Compare(v.Time); d != 0 {
		return d
	}
	return strings.Compare(n.Content, v.Content)
}
