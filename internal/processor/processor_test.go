// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package processor

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
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

func seededDataset(t *testing.T) *dataset.Config {
	t.Helper()
	cfg, err := dataset.ParseConfig("test200", filepath.Join(t.TempDir(), "test200"), strings.NewReader(`
type = ondisk2
step = daily
filter = origin:GRIB1
unique = reftime, origin, product, level, timerange, area
`))
	require.NoError(t, err)

	w, err := dataset.OpenWriter(cfg)
	require.NoError(t, err)
	defer w.Close()

	for i, day := range []int{7, 8, 9} {
		md := &types.Metadata{}
		md.Set(types.NewOriginGRIB1(200-i, 0, 101))
		md.Set(types.NewProductGRIB1(200, 2, 11))
		md.Set(types.NewLevelGRIB1(102, 0, 0))
		md.Set(types.NewTimerangeGRIB1(0, types.UnitHour, 12, 0))
		md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, 0, 0, 0)))
		md.SetSourceInline("grib1", []byte(fmt.Sprintf("payload-%d", day)))
		res, err := w.Acquire(md, dataset.ModeDefault)
		require.NoError(t, err)
		require.Equal(t, dataset.AcquireOK, res)
	}
	require.NoError(t, w.Flush())
	return cfg
}

func TestProcessMetadata(t *testing.T) {
	cfg := seededDataset(t)
	r, err := dataset.OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	var out bytes.Buffer
	require.NoError(t, Process(r, Config{Query: matcher.Universal(), Shape: ShapeMetadata}, &out))

	// The stream parses back into three records.
	n := 0
	for {
		if _, err := types.ReadMetadata(&out); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
}

func TestProcessYaml(t *testing.T) {
	cfg := seededDataset(t)
	r, err := dataset.OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	var out bytes.Buffer
	require.NoError(t, Process(r, Config{Query: matcher.MustParse("reftime:=2007-07-08"), Shape: ShapeYaml}, &out))
	assert.Contains(t, out.String(), "Origin: GRIB1(199, 000, 101)")
	assert.Contains(t, out.String(), "Reftime: 2007-07-08T00:00:00Z")
}

func TestProcessData(t *testing.T) {
	cfg := seededDataset(t)
	r, err := dataset.OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	var out bytes.Buffer
	require.NoError(t, Process(r, Config{Query: matcher.MustParse("reftime:=2007-07-09"), Shape: ShapeData}, &out))
	assert.Equal(t, "payload-9", out.String())

	// The data stream hook diverts the bytes.
	var hook bytes.Buffer
	out.Reset()
	require.NoError(t, Process(r, Config{
		Query: matcher.MustParse("reftime:=2007-07-09"), Shape: ShapeData, DataStream: &hook,
	}, &out))
	assert.Empty(t, out.String())
	assert.Equal(t, "payload-9", hook.String())
}

func TestProcessSummary(t *testing.T) {
	cfg := seededDataset(t)
	r, err := dataset.OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	var out bytes.Buffer
	require.NoError(t, Process(r, Config{Query: matcher.Universal(), Shape: ShapeSummary}, &out))
	s, err := summary.Read(&out)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())

	// Projection folds rows.
	out.Reset()
	require.NoError(t, Process(r, Config{
		Query: matcher.Universal(), Shape: ShapeSummary, Project: []types.Code{types.CodeProduct},
	}, &out))
	s, err = summary.Read(&out)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Rows())
	assert.Equal(t, uint64(3), s.Count())
}

func TestSorter(t *testing.T) {
	s, err := ParseSorter("day:-origin")
	require.NoError(t, err)

	mds := make([]*types.Metadata, 3)
	for i, day := range []int{7, 8, 9} {
		md := &types.Metadata{}
		md.Set(types.NewOriginGRIB1(200-i, 0, 101))
		md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, 0, 0, 0)))
		mds[i] = md
	}
	// Two records on the same day, in ascending origin order; with
	// -origin they come back swapped inside the day.
	sameDay := mds[1].Clone()
	sameDay.Set(types.NewOriginGRIB1(100, 0, 101))

	var got []int
	consume, finish := s.Wrap(func(md *types.Metadata) bool {
		got = append(got, md.Get(types.CodeOrigin).(types.Origin).Centre)
		return true
	})
	for _, md := range []*types.Metadata{mds[0], sameDay, mds[1], mds[2]} {
		require.True(t, consume(md))
	}
	require.True(t, finish())

	assert.Equal(t, []int{200, 199, 100, 198}, got)
}

func TestImportCountsString(t *testing.T) {
	c := ImportCounts{Ok: 3, Duplicates: 1, NotImported: 2, Elapsed: 1500 * time.Millisecond}
	assert.Equal(t, "3 OK, 1 duplicates, 2 not-imported, 1.5 seconds", c.String())
}
