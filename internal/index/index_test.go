// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

var testConfig = Config{
	Unique: []types.Code{
		types.CodeReftime, types.CodeOrigin, types.CodeProduct,
		types.CodeLevel, types.CodeTimerange, types.CodeArea,
	},
}

func testMD(day, hour int, product int) *types.Metadata {
	md := &types.Metadata{}
	md.Set(types.NewOriginGRIB1(200, 0, 101))
	md.Set(types.NewProductGRIB1(200, 2, product))
	md.Set(types.NewLevelGRIB1(102, 0, 0))
	md.Set(types.NewTimerangeGRIB1(0, types.UnitHour, 12, 0))
	md.Set(types.NewReftimePosition(types.NewTime(2007, time.July, day, hour, 0, 0)))
	md.AddNote("Scanned from test.grib1")
	return md
}

func openTestIndex(t *testing.T) *SQLite {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.sqlite"), testConfig)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndQuery(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Offset: 0, Size: 7218}))
	require.NoError(t, idx.Index(testMD(8, 13, 11), "grib1", "2007/07-08.grib1", segment.Span{Offset: 0, Size: 34960}))
	require.NoError(t, idx.Index(testMD(8, 13, 22), "grib1", "2007/07-08.grib1", segment.Span{Offset: 34960, Size: 2234}))
	require.NoError(t, idx.Flush())

	var got []*Entry
	require.NoError(t, idx.Query(matcher.Universal(), func(e *Entry) bool {
		got = append(got, e)
		return true
	}))
	require.Len(t, got, 3)

	// (file, offset) order.
	assert.Equal(t, "2007/07-07.grib1", got[0].File)
	assert.Equal(t, uint64(0), got[1].Offset)
	assert.Equal(t, uint64(34960), got[2].Offset)

	// Metadata is reconstructed with items, notes and blob source.
	md := got[0].MD
	assert.True(t, types.Equal(md.Get(types.CodeOrigin), types.NewOriginGRIB1(200, 0, 101)))
	rt, ok := md.Reftime()
	require.True(t, ok)
	assert.Equal(t, "2007-07-07T00:00:00Z", rt.Begin.String())
	require.Len(t, md.Notes(), 1)
	src := md.Source()
	assert.Equal(t, types.SourceBlob, src.Style)
	assert.Equal(t, uint64(7218), src.Size)
}

func TestQueryFilters(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Index(testMD(8, 13, 22), "grib1", "2007/07-08.grib1", segment.Span{Size: 20}))
	require.NoError(t, idx.Flush())

	count := func(expr string) int {
		n := 0
		require.NoError(t, idx.Query(matcher.MustParse(expr), func(*Entry) bool {
			n++
			return true
		}))
		return n
	}

	// Reftime is pushed down to SQL.
	assert.Equal(t, 1, count("reftime:=2007-07-08"))
	assert.Equal(t, 2, count("reftime:>=2007-07-01"))
	assert.Equal(t, 0, count("reftime:>=2008-01-01"))
	// Other clauses are applied in memory.
	assert.Equal(t, 1, count("product:GRIB1,200,2,22"))
	assert.Equal(t, 0, count("origin:BUFR"))
	assert.Equal(t, 1, count("reftime:>=2007-07-08; product:GRIB1,200,2,22"))
}

func TestQueryCancellation(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "a.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Index(testMD(8, 0, 11), "grib1", "b.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Flush())

	n := 0
	require.NoError(t, idx.Query(matcher.Universal(), func(*Entry) bool {
		n++
		return false
	}))
	assert.Equal(t, 1, n)
}

func TestDuplicateDetection(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Size: 10}))
	err := idx.Index(testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Offset: 10, Size: 10})
	assert.True(t, errors.Is(err, ErrDuplicate), "expected ErrDuplicate, got %v", err)

	// Different product: no collision.
	require.NoError(t, idx.Index(testMD(7, 0, 22), "grib1", "2007/07-07.grib1", segment.Span{Offset: 10, Size: 10}))
	require.NoError(t, idx.Flush())
}

func TestAbsentUniqueKindsCollide(t *testing.T) {
	// Two records whose unique tuple has the same absent kinds must
	// collide: absent is interned as id 0, not NULL.
	idx := openTestIndex(t)

	md1 := &types.Metadata{}
	md1.Set(types.NewOriginGRIB1(200, 0, 101))
	md1.Set(types.NewReftimePosition(types.NewTime(2007, time.July, 7, 0, 0, 0)))
	md2 := md1.Clone()

	require.NoError(t, idx.Index(md1, "grib1", "a.grib1", segment.Span{Size: 10}))
	err := idx.Index(md2, "grib1", "a.grib1", segment.Span{Offset: 10, Size: 10})
	assert.True(t, errors.Is(err, ErrDuplicate), "expected ErrDuplicate, got %v", err)
}

func TestFindDuplicateAndReplace(t *testing.T) {
	idx := openTestIndex(t)

	md := testMD(7, 0, 11)
	require.NoError(t, idx.Index(md, "grib1", "2007/07-07.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Flush())

	dup, err := idx.FindDuplicate(testMD(7, 0, 11))
	require.NoError(t, err)
	require.NotNil(t, dup)

	none, err := idx.FindDuplicate(testMD(9, 0, 11))
	require.NoError(t, err)
	assert.Nil(t, none)

	// Replace points the row at the new location.
	require.NoError(t, idx.Replace(dup.ID, testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Offset: 10, Size: 12}))
	require.NoError(t, idx.Flush())

	entries, err := idx.SegmentEntries("2007/07-07.grib1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(10), entries[0].Offset)
	assert.Equal(t, uint64(12), entries[0].Size)
}

func TestSegmentsBookkeeping(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "2007/07-07.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Index(testMD(8, 0, 11), "grib1", "2007/07-08.grib1", segment.Span{Size: 20}))
	require.NoError(t, idx.Index(testMD(8, 13, 22), "grib1", "2007/07-08.grib1", segment.Span{Offset: 20, Size: 30}))
	require.NoError(t, idx.Flush())

	segments, err := idx.ListSegments()
	require.NoError(t, err)
	assert.Equal(t, []string{"2007/07-07.grib1", "2007/07-08.grib1"}, segments)

	spans, err := idx.SegmentSpans("2007/07-08.grib1")
	require.NoError(t, err)
	assert.Equal(t, []segment.Span{{Offset: 0, Size: 20}, {Offset: 20, Size: 30}}, spans)

	n, err := idx.RemoveSegment("2007/07-07.grib1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, idx.Flush())

	total, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRollbackDiscardsUncommitted(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "a.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Rollback())

	total, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestQuerySummary(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Index(testMD(7, 0, 11), "grib1", "a.grib1", segment.Span{Size: 10}))
	require.NoError(t, idx.Index(testMD(8, 0, 11), "grib1", "b.grib1", segment.Span{Size: 20}))
	require.NoError(t, idx.Flush())

	s, err := idx.QuerySummary(matcher.Universal())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Count())
	assert.Equal(t, uint64(30), s.Size())

	s, err = idx.QuerySummary(matcher.MustParse("reftime:=2007-07-07"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Count())
}

func TestManifestPlainAndSqlite(t *testing.T) {
	for _, force := range []bool{false, true} {
		dir := t.TempDir()
		m, err := OpenManifest(dir, force)
		require.NoError(t, err)

		jul := ManifestEntry{
			Relpath: "2007/07.grib1", Mtime: 100,
			Begin: types.NewTime(2007, time.July, 1, 0, 0, 0),
			End:   types.NewTime(2007, time.July, 31, 0, 0, 0),
		}
		oct := ManifestEntry{
			Relpath: "2007/10.grib1", Mtime: 200,
			Begin: types.NewTime(2007, time.October, 1, 0, 0, 0),
			End:   types.NewTime(2007, time.October, 31, 0, 0, 0),
		}
		require.NoError(t, m.Acquire(jul))
		require.NoError(t, m.Acquire(oct))
		require.NoError(t, m.Flush())

		all, err := m.Segments()
		require.NoError(t, err)
		require.Len(t, all, 2)

		begin, _ := types.ParseTime("2007-09-01")
		overlapping, err := m.SegmentsForRange(begin, types.Time{})
		require.NoError(t, err)
		require.Len(t, overlapping, 1)
		assert.Equal(t, "2007/10.grib1", overlapping[0].Relpath)

		require.NoError(t, m.Remove("2007/07.grib1"))
		require.NoError(t, m.Close())

		// Reopen and check persistence.
		m2, err := OpenManifest(dir, force)
		require.NoError(t, err)
		all, err = m2.Segments()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(200), all[0].Mtime)
		require.NoError(t, m2.Close())
	}
}
