// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import (
	"bytes"
	"fmt"
)

// BBox is a deprecated compatibility-only kind: old indexes may still
// contain it, so it stays decodable, but new metadata never carries
// one and the matcher has no bbox clause.
type BBox struct {
	raw []byte
}

func (BBox) Code() Code { return CodeBBox }

func (b BBox) String() string {
	return fmt.Sprintf("BBOX(%d bytes)", len(b.raw))
}

func (b BBox) encodeBody(enc *Encoder) {
	enc.AddBytes(b.raw)
}

func (b BBox) compareLocal(oi Item) int {
	return bytes.Compare(b.raw, oi.(BBox).raw)
}
