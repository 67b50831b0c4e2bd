// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meteo-dpc/arkive/internal/index"
	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// ondisk2 is the full-index dataset flavour: one index.sqlite per
// dataset, segments named by step, summary cache under .summaries.
type ondisk2 struct {
	cfg   *Config
	idx   *index.SQLite
	cache *SummaryCache
}

func openOndisk2(cfg *Config) (*ondisk2, error) {
	if err := os.MkdirAll(cfg.Path, 0o777); err != nil {
		return nil, err
	}
	idx, err := index.Open(filepath.Join(cfg.Path, "index.sqlite"), index.Config{
		Indexed: cfg.Index,
		Unique:  cfg.Unique,
	})
	if err != nil {
		return nil, err
	}
	ds := &ondisk2{cfg: cfg, idx: idx}
	ds.cache = NewSummaryCache(cfg.Path, ds.computeSummary)
	return ds, nil
}

func (ds *ondisk2) Name() string { return ds.cfg.Name }

// rangeMatcher builds the reftime-only matcher for [begin, end).
func rangeMatcher(begin, end types.Time) (*matcher.Matcher, error) {
	expr := ""
	switch {
	case begin.IsZero() && end.IsZero():
		return matcher.Universal(), nil
	case begin.IsZero():
		expr = fmt.Sprintf("reftime:<%s", end.SQL())
	case end.IsZero():
		expr = fmt.Sprintf("reftime:>=%s", begin.SQL())
	default:
		expr = fmt.Sprintf("reftime:>=%s,<%s", begin.SQL(), end.SQL())
	}
	return matcher.Parse(expr)
}

func (ds *ondisk2) computeSummary(begin, end types.Time) (*summary.Summary, error) {
	q, err := rangeMatcher(begin, end)
	if err != nil {
		return nil, err
	}
	return ds.idx.QuerySummary(q)
}

func (ds *ondisk2) Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error {
	return ds.idx.Query(q, func(e *index.Entry) bool {
		src := e.MD.Source()
		src.Basedir = ds.cfg.Path
		e.MD.SetSource(src)
		return fn(e.MD)
	})
}

func (ds *ondisk2) QuerySummary(q *matcher.Matcher) (*summary.Summary, error) {
	return ds.cache.Query(q, ds.idx.Span)
}

func (ds *ondisk2) Close() error {
	return ds.idx.Close()
}

/* reader */

type ondisk2Reader struct {
	*ondisk2
}

func openOndisk2Reader(cfg *Config) (Reader, error) {
	ds, err := openOndisk2(cfg)
	if err != nil {
		return nil, err
	}
	return &ondisk2Reader{ds}, nil
}

/* writer */

type ondisk2Writer struct {
	*ondisk2
	lock *util.FileLock

	// Reftime span of the acquires since the last flush, driving
	// summary cache invalidation.
	touchedBegin types.Time
	touchedEnd   types.Time
}

func openOndisk2Writer(cfg *Config) (Writer, error) {
	ds, err := openOndisk2(cfg)
	if err != nil {
		return nil, err
	}
	lock, err := util.AcquireLock(filepath.Join(cfg.Path, "lock"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	return &ondisk2Writer{ondisk2: ds, lock: lock}, nil
}

// segmentFor derives the target segment path from the reference
// time. Singlefile steps probe for an unused sequence number.
func segmentFor(cfg *Config, md *types.Metadata) (string, error) {
	rt, ok := md.Reftime()
	if !ok {
		return "", fmt.Errorf("cannot acquire metadata without reftime")
	}
	format := formatOf(md)
	if cfg.Step != StepSinglefile {
		return cfg.Step.Relpath(rt.Begin, format, 0), nil
	}
	for seq := 0; seq < 10000; seq++ {
		relpath := cfg.Step.Relpath(rt.Begin, format, seq)
		if !util.CheckFileExists(filepath.Join(cfg.Path, relpath)) {
			return relpath, nil
		}
	}
	return "", fmt.Errorf("no free singlefile slot for %s", rt.Begin)
}

func (w *ondisk2Writer) touch(md *types.Metadata) {
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

// usnOf extracts the BUFR update sequence number, when there is one.
func usnOf(md *types.Metadata) (int, bool) {
	if it := md.Get(types.CodeProduct); it != nil {
		return it.(types.Product).USN()
	}
	return 0, false
}

func (w *ondisk2Writer) Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error) {
	payload, ok := md.PayloadData()
	if !ok {
		return AcquireError, fmt.Errorf("%s: cannot acquire metadata without payload data", w.Name())
	}
	relpath, err := segmentFor(w.cfg, md)
	if err != nil {
		return AcquireError, fmt.Errorf("%s: %w", w.Name(), err)
	}
	format := formatOf(md)

	// Uniqueness first: DEFAULT mode must not touch the data file
	// when the tuple is already taken.
	dup, err := w.idx.FindDuplicate(md)
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
		// Replacing: the old payload becomes a hole in its segment,
		// reclaimed by the next repack.
		seg := segment.New(format, w.cfg.Path, relpath)
		span, err := seg.Append(payload)
		if err != nil {
			return AcquireError, err
		}
		if err := w.idx.Replace(dup.ID, md, format, relpath, span); err != nil {
			return AcquireError, err
		}
		w.finishAcquire(md, format, relpath, span)
		return AcquireOK, nil
	}

	seg := segment.New(format, w.cfg.Path, relpath)
	span, err := seg.Append(payload)
	if err != nil {
		return AcquireError, err
	}
	if err := w.idx.Index(md, format, relpath, span); err != nil {
		if errors.Is(err, index.ErrDuplicate) {
			// The appended bytes stay as a hole for repack.
			return AcquireErrorDuplicate, nil
		}
		return AcquireError, err
	}
	w.finishAcquire(md, format, relpath, span)
	return AcquireOK, nil
}

func (w *ondisk2Writer) finishAcquire(md *types.Metadata, format, relpath string, span segment.Span) {
	md.SetSource(types.NewSourceBlob(format, w.cfg.Path, relpath, span.Offset, span.Size))
	md.Set(types.NewAssignedDataset(w.Name(), fmt.Sprintf("%s:%d", relpath, span.Offset)))
	w.touch(md)
	metrics.BytesAppended.WithLabelValues(w.Name()).Add(float64(span.Size))
}

func (w *ondisk2Writer) AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error) {
	results := make([]AcquireResult, len(mds))
	for i, md := range mds {
		res, err := w.Acquire(md, mode)
		results[i] = res
		if err != nil {
			log.Warnf("%s: batch acquire item %d: %v", w.Name(), i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return results, err
	}
	return results, nil
}

func (w *ondisk2Writer) Flush() error {
	if err := w.idx.Flush(); err != nil {
		return err
	}
	w.cache.Invalidate(w.touchedBegin, w.touchedEnd)
	w.touchedBegin, w.touchedEnd = types.Time{}, types.Time{}
	return nil
}

func (w *ondisk2Writer) Close() error {
	err := w.idx.Close()
	if w.lock != nil {
		if lerr := w.lock.Release(); err == nil {
			err = lerr
		}
		w.lock = nil
	}
	return err
}
