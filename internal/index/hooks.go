// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"context"
	"time"

	"github.com/meteo-dpc/arkive/pkg/log"
)

// Hooks logs slow index statements through the sqlhooks driver
// wrapper.
type Hooks struct{}

type ctxKey int

const ctxKeyStart ctxKey = 0

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, ctxKeyStart, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(ctxKeyStart).(time.Time); ok {
		if took := time.Since(begin); took > 100*time.Millisecond {
			log.Debugf("slow SQL (%s): %s", took, query)
		}
	}
	return ctx, nil
}
