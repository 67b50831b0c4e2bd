// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatcher

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteo-dpc/arkive/internal/dataset"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

func message(centre int, day int) *types.Metadata {
	md := &types.Metadata{}
	md.Set(types.NewOriginGRIB1(centre, 0, 101))
	md.Set(types.NewProductGRIB1(200, 2, 11))
	md.Set(types.NewLevelGRIB1(102, 0, 0))
	md.Set(types.NewTimerangeGRIB1(0, types.UnitHour, 12, 0))
	md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, 0, 0, 0)))
	md.SetSourceInline("grib1", []byte(fmt.Sprintf("payload-%d-%d", centre, day)))
	return md
}

type testEnv struct {
	configs []*dataset.Config
	writers map[string]dataset.Writer
	d       *Dispatcher
}

func setup(t *testing.T, extra ...*dataset.Config) *testEnv {
	t.Helper()
	root := t.TempDir()

	mkcfg := func(name, filter string) *dataset.Config {
		cfg, err := dataset.ParseConfig(name, filepath.Join(root, name), strings.NewReader(fmt.Sprintf(`
type = ondisk2
step = daily
filter = %s
unique = reftime, origin, product, level, timerange, area
`, filter)))
		require.NoError(t, err)
		return cfg
	}

	errCfg, err := dataset.ParseConfig("error", filepath.Join(root, "error"), strings.NewReader("type = ondisk2\nstep = daily\n"))
	require.NoError(t, err)
	dupCfg, err := dataset.ParseConfig("duplicates", filepath.Join(root, "duplicates"), strings.NewReader("type = ondisk2\nstep = daily\n"))
	require.NoError(t, err)

	configs := []*dataset.Config{
		mkcfg("test200", "origin:GRIB1,200"),
		mkcfg("test98", "origin:GRIB1,98"),
		errCfg,
		dupCfg,
	}
	configs = append(configs, extra...)

	env := &testEnv{configs: configs, writers: make(map[string]dataset.Writer)}
	for _, cfg := range configs {
		w, err := dataset.OpenWriter(cfg)
		require.NoError(t, err)
		env.writers[cfg.Name] = w
	}
	t.Cleanup(func() {
		for _, w := range env.writers {
			w.Close()
		}
	})

	env.d, err = New(configs, env.writers)
	require.NoError(t, err)
	return env
}

func countIn(t *testing.T, configs []*dataset.Config, name string) int {
	t.Helper()
	for _, cfg := range configs {
		if cfg.Name != name {
			continue
		}
		r, err := dataset.OpenReader(cfg)
		require.NoError(t, err)
		defer r.Close()
		n := 0
		require.NoError(t, r.Query(matcher.Universal(), func(*types.Metadata) bool {
			n++
			return true
		}))
		return n
	}
	t.Fatalf("no dataset %s", name)
	return 0
}

func TestDispatchRouting(t *testing.T) {
	env := setup(t)

	assert.Equal(t, Ok, env.d.Dispatch(message(200, 7)))
	assert.Equal(t, Ok, env.d.Dispatch(message(98, 7)))

	// No matching dataset: the message goes to error with a note.
	md := message(44, 7)
	assert.Equal(t, Error, env.d.Dispatch(md))
	require.NotEmpty(t, md.Notes())
	assert.Contains(t, md.Notes()[len(md.Notes())-1].Content, "could not be assigned")

	// Missing reftime: error.
	noRef := message(200, 8)
	noRef.Unset(types.CodeReftime)
	assert.Equal(t, Error, env.d.Dispatch(noRef))

	require.NoError(t, env.d.Flush())
	assert.Equal(t, 1, countIn(t, env.configs, "test200"))
	assert.Equal(t, 1, countIn(t, env.configs, "test98"))
	assert.Equal(t, 2, countIn(t, env.configs, "error"))
}

func TestDispatchDuplicates(t *testing.T) {
	env := setup(t)

	assert.Equal(t, Ok, env.d.Dispatch(message(200, 7)))
	assert.Equal(t, DuplicateError, env.d.Dispatch(message(200, 7)))

	require.NoError(t, env.d.Flush())
	assert.Equal(t, 1, countIn(t, env.configs, "test200"))
	assert.Equal(t, 1, countIn(t, env.configs, "duplicates"))
	assert.Equal(t, 0, countIn(t, env.configs, "error"))
}

// Property: with pairwise-incompatible filters, no message lands in
// more than one normal dataset.
func TestDispatchExclusivity(t *testing.T) {
	env := setup(t)

	for day := 1; day <= 9; day++ {
		env.d.Dispatch(message(200, day))
		env.d.Dispatch(message(98, day))
	}
	require.NoError(t, env.d.Flush())

	assert.Equal(t, 9, countIn(t, env.configs, "test200"))
	assert.Equal(t, 9, countIn(t, env.configs, "test98"))
	assert.Equal(t, 0, countIn(t, env.configs, "error"))
}

func TestDispatchValidator(t *testing.T) {
	env := setup(t)

	v, err := NewExprValidator("only-july", `reftime >= "2007-07" && format == "grib1"`)
	require.NoError(t, err)
	env.d.AddValidator(v)

	assert.Equal(t, Ok, env.d.Dispatch(message(200, 7)))

	jan := message(200, 7)
	jan.Set(types.NewReftimePosition(types.NewTime(2007, time.January, 1, 0, 0, 0)))
	md := jan
	assert.Equal(t, Error, env.d.Dispatch(md))
	require.NotEmpty(t, md.Notes())
	assert.Contains(t, md.Notes()[len(md.Notes())-1].Content, "Validation error")
}

func TestDispatchOutbound(t *testing.T) {
	root := t.TempDir()
	outCfg, err := dataset.ParseConfig("export", filepath.Join(root, "export"),
		strings.NewReader("type = outbound\nstep = daily\nfilter = origin:GRIB1\n"))
	require.NoError(t, err)

	env := setup(t, outCfg)

	assert.Equal(t, Ok, env.d.Dispatch(message(200, 7)))
	require.NoError(t, env.d.Flush())

	// The outbound copy exists next to the normal acquire.
	assert.Equal(t, 1, countIn(t, env.configs, "test200"))
	assert.FileExists(t, filepath.Join(root, "export", "2007/07-07.grib1"))
	assert.Equal(t, 0, env.d.OutboundFailures())
}

func TestTestDispatcherWritesNothing(t *testing.T) {
	root := t.TempDir()
	mk := func(name, typ, filter string) *dataset.Config {
		cfg, err := dataset.ParseConfig(name, filepath.Join(root, name),
			strings.NewReader(fmt.Sprintf("type = %s\nstep = daily\nfilter = %s\n", typ, filter)))
		require.NoError(t, err)
		return cfg
	}
	configs := []*dataset.Config{
		mk("test200", "ondisk2", "origin:GRIB1,200"),
		mk("test98", "ondisk2", "origin:GRIB1,98"),
		mk("error", "ondisk2", ""),
	}

	var out bytes.Buffer
	d := NewTest(configs, &out)

	assert.Equal(t, Ok, d.Dispatch(message(200, 7)))
	assert.Equal(t, Error, d.Dispatch(message(44, 7)))

	assert.Contains(t, out.String(), "would go to dataset test200")
	assert.Contains(t, out.String(), "matches no dataset")

	// Nothing was created on disk.
	assert.NoFileExists(t, filepath.Join(root, "test200", "2007/07-07.grib1"))
}
