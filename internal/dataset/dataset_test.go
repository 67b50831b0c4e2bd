// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Three GRIB-like messages with distinct reftimes, the shape of the
// classic three-message test file.
var testDays = []struct {
	day     int
	month   time.Month
	hour    int
	payload string
}{
	{8, time.July, 13, strings.Repeat("GRIB-one ", 100)},
	{7, time.July, 0, strings.Repeat("GRIB-two ", 200)},
	{9, time.October, 0, strings.Repeat("GRIB-three ", 50)},
}

func testMessage(i int) *types.Metadata {
	m := testDays[i]
	md := &types.Metadata{}
	md.Set(types.NewOriginGRIB1(200, 0, 101))
	md.Set(types.NewProductGRIB1(200, 2, 11+i))
	md.Set(types.NewLevelGRIB1(102, 0, 0))
	md.Set(types.NewTimerangeGRIB1(0, types.UnitHour, 12, 0))
	md.Set(types.NewReftimePosition(types.NewTime(2007, m.month, m.day, m.hour, 0, 0)))
	md.SetSourceInline("grib1", []byte(m.payload))
	return md
}

func testDatasetConfig(t *testing.T, typ string) *Config {
	t.Helper()
	cfg, err := ParseConfig("test200", filepath.Join(t.TempDir(), "test200"), strings.NewReader(fmt.Sprintf(`
type = %s
step = daily
filter = origin:GRIB1
unique = reftime, origin, product, level, timerange, area
`, typ)))
	require.NoError(t, err)
	return cfg
}

func acquireThree(t *testing.T, w Writer) {
	t.Helper()
	for i := 0; i < 3; i++ {
		res, err := w.Acquire(testMessage(i), ModeDefault)
		require.NoError(t, err)
		require.Equal(t, AcquireOK, res)
	}
	require.NoError(t, w.Flush())
}

// Scenario: acquire three messages into a daily dataset and find the
// expected segment files, a consistent index, and exact query
// results.
func TestOndisk2AcquireThenQuery(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		md := testMessage(i)
		res, err := w.Acquire(md, ModeDefault)
		require.NoError(t, err)
		require.Equal(t, AcquireOK, res)

		// The source now points into the dataset and the dataset is
		// stamped.
		src := md.Source()
		assert.Equal(t, types.SourceBlob, src.Style)
		assert.Equal(t, cfg.Path, src.Basedir)
		assert.NotNil(t, md.Get(types.CodeAssignedDataset))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	for _, file := range []string{"2007/07-07.grib1", "2007/07-08.grib1", "2007/10-09.grib1"} {
		assert.True(t, fileExists(filepath.Join(cfg.Path, file)), "missing segment %s", file)
	}

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	// Everything comes back, in (segment, offset) order.
	var got []*types.Metadata
	require.NoError(t, r.Query(matcher.Universal(), func(md *types.Metadata) bool {
		got = append(got, md)
		return true
	}))
	require.Len(t, got, 3)
	assert.Equal(t, "2007/07-07.grib1", got[0].Source().Filename)

	// One record for one day, byte-identical payload.
	got = nil
	require.NoError(t, r.Query(matcher.MustParse("reftime:=2007-07-08"), func(md *types.Metadata) bool {
		got = append(got, md)
		return true
	}))
	require.Len(t, got, 1)
	src := got[0].Source()
	seg := segment.New(src.Format, cfg.Path, src.Filename)
	data, err := seg.Read(segment.Span{Offset: src.Offset, Size: src.Size})
	require.NoError(t, err)
	assert.Equal(t, []byte(testDays[0].payload), data)

	// The summary agrees.
	s, err := r.QuerySummary(matcher.Universal())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())
}

// Scenario: a second identical batch yields three duplicates and
// appends no new bytes.
func TestOndisk2DuplicateBatch(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	defer w.Close()
	acquireThree(t, w)

	sizes := segmentSizes(t, cfg.Path)

	mds := []*types.Metadata{testMessage(0), testMessage(1), testMessage(2)}
	results, err := w.AcquireBatch(mds, ModeDefault)
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, AcquireErrorDuplicate, res)
	}

	assert.Equal(t, sizes, segmentSizes(t, cfg.Path), "duplicate batch appended bytes")
}

func TestOndisk2ReplaceAlways(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	defer w.Close()
	acquireThree(t, w)

	// Replacing appends the new payload and repoints the index; the
	// old bytes stay as a hole until repack.
	md := testMessage(0)
	res, err := w.Acquire(md, ModeReplaceAlways)
	require.NoError(t, err)
	assert.Equal(t, AcquireOK, res)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()
	n := 0
	require.NoError(t, r.Query(matcher.Universal(), func(*types.Metadata) bool {
		n++
		return true
	}))
	assert.Equal(t, 3, n)

	// Repack reclaims the replaced payload.
	c, err := OpenChecker(cfg)
	require.NoError(t, err)
	defer c.Close()
	reclaimed, err := c.Repack(&WriterReporter{Out: os.Stderr, Dataset: cfg.Name}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(testDays[0].payload)), reclaimed)
}

// Scenario: delete a segment from disk; check reports MISSING, repack
// forgets it, queries return the remaining records.
func TestOndisk2MissingSegment(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	require.NoError(t, os.Remove(filepath.Join(cfg.Path, "2007/07-07.grib1")))

	c, err := OpenChecker(cfg)
	require.NoError(t, err)

	var report bytes.Buffer
	require.NoError(t, c.Check(&WriterReporter{Out: &report, Dataset: cfg.Name}, true))
	assert.Contains(t, report.String(), "2007/07-07.grib1")
	assert.Contains(t, report.String(), "missing")

	report.Reset()
	_, err = c.Repack(&WriterReporter{Out: &report, Dataset: cfg.Name}, false)
	require.NoError(t, err)
	assert.Contains(t, report.String(), "1 file removed from the index")
	require.NoError(t, c.Close())

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()
	n := 0
	require.NoError(t, r.Query(matcher.Universal(), func(*types.Metadata) bool {
		n++
		return true
	}))
	assert.Equal(t, 2, n)
}

// Scenario: appending duplicate content onto a segment makes the
// repack ambiguous; it aborts with a consistency error.
func TestOndisk2AmbiguousRepackAborts(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	// Append a copy of the already indexed payload to the segment.
	path := filepath.Join(cfg.Path, "2007/07-08.grib1")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o666)
	require.NoError(t, err)
	_, err = f.Write([]byte(testDays[0].payload))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := OpenChecker(cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Repack(&WriterReporter{Out: os.Stderr, Dataset: cfg.Name}, false)
	require.ErrorIs(t, err, ErrConsistency)
}

// Property: repack preserves the payload set and reclaims >= 0 bytes.
func TestOndisk2RepackPreservesContent(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	// Replace one message so there is a hole to reclaim.
	_, err = w.Acquire(testMessage(1), ModeReplaceAlways)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	before := queryPayloads(t, cfg)

	c, err := OpenChecker(cfg)
	require.NoError(t, err)
	reclaimed, err := c.Repack(&WriterReporter{Out: os.Stderr, Dataset: cfg.Name}, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reclaimed, int64(0))
	require.NoError(t, c.Close())

	assert.Equal(t, before, queryPayloads(t, cfg))
}

// Segments older than the archive age move under .archive and are
// stored gzipped; the index forgets them.
func TestOndisk2ArchiveAge(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")
	cfg.ArchiveAge = 30

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	c, err := OpenChecker(cfg)
	require.NoError(t, err)
	var report bytes.Buffer
	_, err = c.Repack(&WriterReporter{Out: &report, Dataset: cfg.Name}, false)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Contains(t, report.String(), "moved to the archive")

	// Data files are gone from the live tree and gzipped in the
	// archive subtree.
	assert.False(t, fileExists(filepath.Join(cfg.Path, "2007/07-07.grib1")))
	assert.True(t, fileExists(filepath.Join(cfg.Path, ".archive", "2007/07-07.grib1.gz")))
	assert.True(t, fileExists(filepath.Join(cfg.Path, ".archive", "2007/07-08.grib1.gz")))

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()
	n := 0
	require.NoError(t, r.Query(matcher.Universal(), func(*types.Metadata) bool {
		n++
		return true
	}))
	assert.Equal(t, 0, n)
}

func TestOndisk2CheckRescansFromSidecar(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	// Write a sidecar for one segment, then forget it from the index.
	r, err := OpenReader(cfg)
	require.NoError(t, err)
	var sidecar bytes.Buffer
	require.NoError(t, r.Query(matcher.MustParse("reftime:=2007-07-08"), func(md *types.Metadata) bool {
		out := md.Clone()
		src := out.Source()
		src.Basedir = ""
		out.SetSource(src)
		require.NoError(t, out.Write(&sidecar))
		return true
	}))
	require.NoError(t, r.Close())
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Path, "2007/07-08.grib1.metadata"), sidecar.Bytes(), 0o666))

	c, err := OpenChecker(cfg)
	require.NoError(t, err)
	cc := c.(*ondisk2Checker)
	require.NoError(t, cc.idx.ResetSegment("2007/07-08.grib1"))
	require.NoError(t, cc.idx.Flush())

	var report bytes.Buffer
	require.NoError(t, c.Check(&WriterReporter{Out: &report, Dataset: cfg.Name}, false))
	assert.Contains(t, report.String(), "rescanned, 1 records indexed")
	require.NoError(t, c.Close())

	n := 0
	r2, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r2.Close()
	require.NoError(t, r2.Query(matcher.Universal(), func(*types.Metadata) bool {
		n++
		return true
	}))
	assert.Equal(t, 3, n)
}

func TestSummaryCacheLifecycle(t *testing.T) {
	cfg := testDatasetConfig(t, "ondisk2")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	r, err := OpenReader(cfg)
	require.NoError(t, err)

	// A full query materialises all.summary.
	s, err := r.QuerySummary(matcher.Universal())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())
	assert.True(t, fileExists(filepath.Join(cfg.Path, ".summaries", "all.summary")))

	// A bounded query materialises only months with data.
	s, err = r.QuerySummary(matcher.MustParse("reftime:>=2007-07-01,<2007-08-01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Count())
	assert.True(t, fileExists(filepath.Join(cfg.Path, ".summaries", "2007-07.summary")))
	assert.False(t, fileExists(filepath.Join(cfg.Path, ".summaries", "2007-08.summary")))
	require.NoError(t, r.Close())

	// A new acquire invalidates the affected caches.
	w2, err := OpenWriter(cfg)
	require.NoError(t, err)
	md := testMessage(0)
	md.Set(types.NewProductGRIB1(200, 2, 99))
	res, err := w2.Acquire(md, ModeDefault)
	require.NoError(t, err)
	require.Equal(t, AcquireOK, res)
	require.NoError(t, w2.Flush())
	require.NoError(t, w2.Close())

	assert.False(t, fileExists(filepath.Join(cfg.Path, ".summaries", "all.summary")))
	assert.False(t, fileExists(filepath.Join(cfg.Path, ".summaries", "2007-07.summary")))

	// Recomputation sees the new record.
	r2, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r2.Close()
	s, err = r2.QuerySummary(matcher.MustParse("reftime:>=2007-07-01,<2007-08-01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())
}

func TestIsegFlavour(t *testing.T) {
	cfg := testDatasetConfig(t, "iseg")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)

	// The second pass is rejected per segment index.
	res, err := w.Acquire(testMessage(0), ModeDefault)
	require.NoError(t, err)
	assert.Equal(t, AcquireErrorDuplicate, res)
	require.NoError(t, w.Close())

	// One index database per segment.
	assert.True(t, fileExists(filepath.Join(cfg.Path, "2007/07-08.grib1.index")))
	assert.True(t, fileExists(filepath.Join(cfg.Path, "2007/10-09.grib1.index")))

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()
	var got []*types.Metadata
	require.NoError(t, r.Query(matcher.MustParse("reftime:>=2007-10-01"), func(md *types.Metadata) bool {
		got = append(got, md)
		return true
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "2007/10-09.grib1", got[0].Source().Filename)

	s, err := r.QuerySummary(matcher.Universal())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())
}

func TestSimpleFlavour(t *testing.T) {
	cfg := testDatasetConfig(t, "simple")

	w, err := OpenWriter(cfg)
	require.NoError(t, err)
	acquireThree(t, w)
	require.NoError(t, w.Close())

	assert.True(t, fileExists(filepath.Join(cfg.Path, "MANIFEST")))
	assert.True(t, fileExists(filepath.Join(cfg.Path, "2007/07-08.grib1.metadata")))
	assert.True(t, fileExists(filepath.Join(cfg.Path, "2007/07-08.grib1.summary")))

	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()

	var got []*types.Metadata
	require.NoError(t, r.Query(matcher.MustParse("reftime:=2007-07-08"), func(md *types.Metadata) bool {
		got = append(got, md)
		return true
	}))
	require.Len(t, got, 1)

	src := got[0].Source()
	seg := segment.New(src.Format, cfg.Path, src.Filename)
	data, err := seg.Read(segment.Span{Offset: src.Offset, Size: src.Size})
	require.NoError(t, err)
	assert.Equal(t, []byte(testDays[0].payload), data)

	s, err := r.QuerySummary(matcher.Universal())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Count())
}

func TestRemoteNotImplemented(t *testing.T) {
	cfg := &Config{Name: "remote1", Type: "remote", Path: t.TempDir()}
	_, err := OpenReader(cfg)
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = OpenWriter(cfg)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestStepNaming(t *testing.T) {
	at := types.NewTime(2007, time.July, 8, 13, 0, 0)
	cases := map[Step]string{
		StepYearly:   "20/2007.grib1",
		StepMonthly:  "2007/07.grib1",
		StepBiweekly: "2007/07-a.grib1",
		StepWeekly:   "2007/07-2.grib1",
		StepDaily:    "2007/07-08.grib1",
	}
	for step, want := range cases {
		assert.Equal(t, want, step.Relpath(at, "grib1", 0), "step %s", step)
	}
	assert.Equal(t, "2007/07-08.130000.0003.grib1", StepSinglefile.Relpath(at, "grib1", 3))

	// Segment names round-trip to their covered interval.
	begin, end, ok := TimeSpanOf("2007/07-08.grib1")
	require.True(t, ok)
	assert.Equal(t, "2007-07-08T00:00:00Z", begin.String())
	assert.Equal(t, "2007-07-09T00:00:00Z", end.String())

	begin, end, ok = TimeSpanOf("2007/07.grib1")
	require.True(t, ok)
	assert.Equal(t, "2007-07-01T00:00:00Z", begin.String())
	assert.Equal(t, "2007-08-01T00:00:00Z", end.String())
}

/* helpers */

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func segmentSizes(t *testing.T, root string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		if strings.HasSuffix(path, ".grib1") {
			rel, _ := filepath.Rel(root, path)
			out[rel] = fi.Size()
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func queryPayloads(t *testing.T, cfg *Config) map[string]bool {
	t.Helper()
	r, err := OpenReader(cfg)
	require.NoError(t, err)
	defer r.Close()
	out := make(map[string]bool)
	require.NoError(t, r.Query(matcher.Universal(), func(md *types.Metadata) bool {
		src := md.Source()
		seg := segment.New(src.Format, cfg.Path, src.Filename)
		data, err := seg.Read(segment.Span{Offset: src.Offset, Size: src.Size})
		require.NoError(t, err)
		out[string(data)] = true
		return true
	}))
	return out
}
