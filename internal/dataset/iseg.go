// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/meteo-dpc/arkive/internal/index"
	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// iseg is the per-segment index flavour: every segment carries its
// own <relpath>.index sqlite database. Losing one segment loses one
// index, not the whole dataset.
type iseg struct {
	cfg   *Config
	cache *SummaryCache

	// Open per-segment indexes, keyed by relpath.
	indexes map[string]*index.SQLite
}

func openIseg(cfg *Config) (*iseg, error) {
	if err := os.MkdirAll(cfg.Path, 0o777); err != nil {
		return nil, err
	}
	ds := &iseg{cfg: cfg, indexes: make(map[string]*index.SQLite)}
	ds.cache = NewSummaryCache(cfg.Path, ds.computeSummary)
	return ds, nil
}

func (ds *iseg) Name() string { return ds.cfg.Name }

func (ds *iseg) indexFor(relpath string) (*index.SQLite, error) {
	if idx, ok := ds.indexes[relpath]; ok {
		return idx, nil
	}
	path := filepath.Join(ds.cfg.Path, relpath+".index")
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, err
	}
	idx, err := index.Open(path, index.Config{
		Indexed: ds.cfg.Index,
		Unique:  ds.cfg.Unique,
	})
	if err != nil {
		return nil, err
	}
	ds.indexes[relpath] = idx
	return idx, nil
}

// segments lists the dataset's segments from their .index files.
func (ds *iseg) segments() ([]string, error) {
	var out []string
	err := filepath.WalkDir(ds.cfg.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if path != ds.cfg.Path && strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".index") {
			rel, rerr := filepath.Rel(ds.cfg.Path, strings.TrimSuffix(path, ".index"))
			if rerr != nil {
				return rerr
			}
			out = append(out, rel)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// segmentsForQuery trims the candidate list by the reftime clause and
// the span encoded in each segment name.
func (ds *iseg) segmentsForQuery(q *matcher.Matcher) ([]string, error) {
	all, err := ds.segments()
	if err != nil {
		return nil, err
	}
	var qBegin, qEnd types.Time
	if !q.RestrictDateRange(&qBegin, &qEnd) {
		return nil, nil
	}
	var out []string
	for _, relpath := range all {
		begin, end, ok := TimeSpanOf(relpath)
		if ok {
			if !qBegin.IsZero() && end.Before(qBegin) {
				continue
			}
			if !qEnd.IsZero() && !begin.Before(qEnd) {
				continue
			}
		}
		out = append(out, relpath)
	}
	return out, nil
}

func (ds *iseg) Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error {
	segments, err := ds.segmentsForQuery(q)
	if err != nil {
		return err
	}
	for _, relpath := range segments {
		idx, err := ds.indexFor(relpath)
		if err != nil {
			return err
		}
		stop := false
		err = idx.Query(q, func(e *index.Entry) bool {
			src := e.MD.Source()
			src.Basedir = ds.cfg.Path
			e.MD.SetSource(src)
			if !fn(e.MD) {
				stop = true
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (ds *iseg) computeSummary(begin, end types.Time) (*summary.Summary, error) {
	q, err := rangeMatcher(begin, end)
	if err != nil {
		return nil, err
	}
	out := summary.New()
	segments, err := ds.segmentsForQuery(q)
	if err != nil {
		return nil, err
	}
	for _, relpath := range segments {
		idx, err := ds.indexFor(relpath)
		if err != nil {
			return nil, err
		}
		s, err := idx.QuerySummary(q)
		if err != nil {
			return nil, err
		}
		out.Merge(s)
	}
	return out, nil
}

// span is the reftime extent across all per-segment indexes.
func (ds *iseg) span() (types.Time, types.Time, error) {
	segments, err := ds.segments()
	if err != nil {
		return types.Time{}, types.Time{}, err
	}
	var begin, end types.Time
	for _, relpath := range segments {
		idx, err := ds.indexFor(relpath)
		if err != nil {
			return types.Time{}, types.Time{}, err
		}
		b, e, err := idx.Span()
		if err != nil {
			return types.Time{}, types.Time{}, err
		}
		if b.IsZero() {
			continue
		}
		if begin.IsZero() || b.Before(begin) {
			begin = b
		}
		if e.After(end) {
			end = e
		}
	}
	return begin, end, nil
}

func (ds *iseg) QuerySummary(q *matcher.Matcher) (*summary.Summary, error) {
	return ds.cache.Query(q, ds.span)
}

func (ds *iseg) Close() error {
	var firstErr error
	for _, idx := range ds.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ds.indexes = make(map[string]*index.SQLite)
	return firstErr
}

/* reader */

type isegReader struct {
	*iseg
}

func openIsegReader(cfg *Config) (Reader, error) {
	ds, err := openIseg(cfg)
	if err != nil {
		return nil, err
	}
	return &isegReader{ds}, nil
}

/* writer */

type isegWriter struct {
	*iseg
	lock *util.FileLock

	touchedBegin types.Time
	touchedEnd   types.Time
}

func openIsegWriter(cfg *Config) (Writer, error) {
	ds, err := openIseg(cfg)
	if err != nil {
		return nil, err
	}
	lock, err := util.AcquireLock(filepath.Join(cfg.Path, "lock"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	return &isegWriter{iseg: ds, lock: lock}, nil
}

func (w *isegWriter) touch(md *types.Metadata) {
	rt, ok := md.Reftime()
	if !ok {
		return
	}
	begin, end := rt.Period()
	if w.touchedBegin.IsZero() || begin.Before(w.touchedBegin) {
		w.touchedBegin = begin
	}
	if end.After(w.touchedEnd) {
		w.touchedEnd = end
	}
}

func (w *isegWriter) Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error) {
	payload, ok := md.PayloadData()
	if !ok {
		return AcquireError, fmt.Errorf("%s: cannot acquire metadata without payload data", w.Name())
	}
	relpath, err := segmentFor(w.cfg, md)
	if err != nil {
		return AcquireError, fmt.Errorf("%s: %w", w.Name(), err)
	}
	format := formatOf(md)

	idx, err := w.indexFor(relpath)
	if err != nil {
		return AcquireError, err
	}
	dup, err := idx.FindDuplicate(md)
	if err != nil {
		return AcquireError, err
	}
	if dup != nil {
		switch mode {
		case ModeDefault, ModeReplaceNever:
			return AcquireErrorDuplicate, nil
		case ModeReplaceHigherUSN:
			oldUSN, oldOK := usnOf(dup.MD)
			newUSN, newOK := usnOf(md)
			if !oldOK || !newOK || newUSN <= oldUSN {
				return AcquireErrorDuplicate, nil
			}
		}
		seg := segment.New(format, w.cfg.Path, relpath)
		span, err := seg.Append(payload)
		if err != nil {
			return AcquireError, err
		}
		if err := idx.Replace(dup.ID, md, format, relpath, span); err != nil {
			return AcquireError, err
		}
		w.finish(md, format, relpath, span)
		return AcquireOK, nil
	}

	seg := segment.New(format, w.cfg.Path, relpath)
	span, err := seg.Append(payload)
	if err != nil {
		return AcquireError, err
	}
	if err := idx.Index(md, format, relpath, span); err != nil {
		if errors.Is(err, index.ErrDuplicate) {
			return AcquireErrorDuplicate, nil
		}
		return AcquireError, err
	}
	w.finish(md, format, relpath, span)
	return AcquireOK, nil
}

func (w *isegWriter) finish(md *types.Metadata, format, relpath string, span segment.Span) {
	md.SetSource(types.NewSourceBlob(format, w.cfg.Path, relpath, span.Offset, span.Size))
	md.Set(types.NewAssignedDataset(w.Name(), fmt.Sprintf("%s:%d", relpath, span.Offset)))
	w.touch(md)
	metrics.BytesAppended.WithLabelValues(w.Name()).Add(float64(span.Size))
}

func (w *isegWriter) AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error) {
	results := make([]AcquireResult, len(mds))
	for i, md := range mds {
		res, err := w.Acquire(md, mode)
		results[i] = res
		if err != nil {
			return results, err
		}
	}
	return results, w.Flush()
}

func (w *isegWriter) Flush() error {
	for _, idx := range w.indexes {
		if err := idx.Flush(); err != nil {
			return err
		}
	}
	w.cache.Invalidate(w.touchedBegin, w.touchedEnd)
	w.touchedBegin, w.touchedEnd = types.Time{}, types.Time{}
	return nil
}

func (w *isegWriter) Close() error {
	err := w.iseg.Close()
	if w.lock != nil {
		if lerr := w.lock.Release(); err == nil {
			err = lerr
		}
		w.lock = nil
	}
	return err
}

/* checker */

// isegChecker checks every per-segment index against its segment.
// Check only reports the state of each segment and repairs nothing,
// whatever readonly says. Repack drops the index of segments missing
// on disk and rewrites dirty ones; it applies neither archive age nor
// delete age and does not look for ambiguous duplicates.
type isegChecker struct {
	*iseg
	lock *util.FileLock
}

func openIsegChecker(cfg *Config) (Checker, error) {
	ds, err := openIseg(cfg)
	if err != nil {
		return nil, err
	}
	lock, err := util.AcquireLock(filepath.Join(cfg.Path, "lock"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	return &isegChecker{iseg: ds, lock: lock}, nil
}

func (c *isegChecker) Check(reporter Reporter, readonly bool) error {
	segments, err := c.segments()
	if err != nil {
		return err
	}
	for _, relpath := range segments {
		idx, err := c.indexFor(relpath)
		if err != nil {
			reporter.Report(SeverityError, relpath, fmt.Sprintf("cannot open index: %v", err))
			continue
		}
		spans, err := idx.SegmentSpans(relpath)
		if err != nil {
			return err
		}
		entries, err := idx.SegmentEntries(relpath)
		if err != nil {
			return err
		}
		format := "grib1"
		if len(entries) > 0 {
			format = entries[0].Format
		}
		state := segment.New(format, c.cfg.Path, relpath).Check(spans, false)
		severity := SeverityInfo
		if state != segment.StateOK {
			severity = SeverityWarning
		}
		reporter.Report(severity, relpath, fmt.Sprintf("segment is %s", state))
	}
	return nil
}

func (c *isegChecker) Repack(reporter Reporter, readonly bool) (int64, error) {
	segments, err := c.segments()
	if err != nil {
		return 0, err
	}
	var reclaimed int64
	for _, relpath := range segments {
		idx, err := c.indexFor(relpath)
		if err != nil {
			return reclaimed, err
		}
		entries, err := idx.SegmentEntries(relpath)
		if err != nil {
			return reclaimed, err
		}
		spans := make([]segment.Span, len(entries))
		format := "grib1"
		for i, e := range entries {
			spans[i] = segment.Span{Offset: e.Offset, Size: e.Size}
			format = e.Format
		}
		seg := segment.New(format, c.cfg.Path, relpath)
		switch seg.Check(spans, false) {
		case segment.StateMissing:
			if readonly {
				reporter.Report(SeverityInfo, relpath, "would be removed from the index")
				continue
			}
			if _, err := idx.RemoveSegment(relpath); err != nil {
				return reclaimed, err
			}
			if err := idx.Flush(); err != nil {
				return reclaimed, err
			}
			idx.Close()
			delete(c.indexes, relpath)
			os.Remove(filepath.Join(c.cfg.Path, relpath+".index"))
			reporter.Report(SeverityInfo, relpath, "removed from the index")
		case segment.StateDirty:
			if readonly {
				reporter.Report(SeverityInfo, relpath, "would be repacked")
				continue
			}
			newSpans, freed, err := seg.Repack(spans)
			if err != nil {
				reporter.Report(SeverityError, relpath, fmt.Sprintf("repack failed: %v", err))
				continue
			}
			if err := idx.UpdateSegmentSpans(entries, newSpans); err != nil {
				return reclaimed, err
			}
			if err := idx.Flush(); err != nil {
				return reclaimed, err
			}
			reclaimed += freed
			reporter.Report(SeverityInfo, relpath, fmt.Sprintf("repacked, %d bytes reclaimed", freed))
		case segment.StateCorrupted:
			reporter.Report(SeverityError, relpath, "segment data fails validation, not repacked")
		}
	}
	if reclaimed > 0 {
		c.cache.InvalidateAll()
	}
	return reclaimed, nil
}

func (c *isegChecker) Close() error {
	err := c.iseg.Close()
	if c.lock != nil {
		if lerr := c.lock.Release(); err == nil {
			err = lerr
		}
		c.lock = nil
	}
	return err
}
