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
	"time"

	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// SummaryCache is the on-disk cache of per-month and whole-dataset
// summaries kept under <dataset>/.summaries. Index writes invalidate
// the months they touch; corrupt or missing cache files are
// recomputed from the index.
type SummaryCache struct {
	dir string

	// compute rebuilds the summary for a reftime interval from the
	// index; zero times mean open bounds.
	compute func(begin, end types.Time) (*summary.Summary, error)
}

func NewSummaryCache(datasetPath string, compute func(begin, end types.Time) (*summary.Summary, error)) *SummaryCache {
	return &SummaryCache{dir: filepath.Join(datasetPath, ".summaries"), compute: compute}
}

func monthName(month types.Time) string {
	return month.Std().Format("2006-01") + ".summary"
}

func (c *SummaryCache) monthPath(month types.Time) string {
	return filepath.Join(c.dir, monthName(month))
}

func (c *SummaryCache) allPath() string {
	return filepath.Join(c.dir, "all.summary")
}

func (c *SummaryCache) store(path string, s *summary.Summary) error {
	if err := os.MkdirAll(c.dir, 0o777); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return err
	}
	return util.WriteFileAtomically(path, buf.Bytes())
}

// load returns nil without error when the cache file is missing or
// unreadable: a bad cache is recomputed, never trusted.
func (c *SummaryCache) load(path string) *summary.Summary {
	if !util.CheckFileExists(path) {
		return nil
	}
	s, err := summary.ReadFile(path)
	if err != nil {
		log.Warnf("discarding unreadable summary cache %s: %v", path, err)
		os.Remove(path)
		return nil
	}
	return s
}

// Month returns the summary of one month, computing and caching it on
// a miss. Months with no data are not materialised.
func (c *SummaryCache) Month(month types.Time) (*summary.Summary, error) {
	month = month.StartOfMonth()
	if s := c.load(c.monthPath(month)); s != nil {
		return s, nil
	}
	s, err := c.compute(month, month.NextMonth())
	if err != nil {
		return nil, err
	}
	if s.Count() > 0 {
		if err := c.store(c.monthPath(month), s); err != nil {
			log.Warnf("cannot store summary cache %s: %v", c.monthPath(month), err)
		}
	}
	return s, nil
}

// All returns the whole-dataset summary, used for queries with no
// reftime restriction.
func (c *SummaryCache) All() (*summary.Summary, error) {
	if s := c.load(c.allPath()); s != nil {
		return s, nil
	}
	s, err := c.compute(types.Time{}, types.Time{})
	if err != nil {
		return nil, err
	}
	if s.Count() > 0 {
		if err := c.store(c.allPath(), s); err != nil {
			log.Warnf("cannot store summary cache %s: %v", c.allPath(), err)
		}
	}
	return s, nil
}

// Invalidate drops the cached months covering [begin, end] plus the
// whole-dataset summary. Called on writer flush with the span of the
// acquired reftimes.
func (c *SummaryCache) Invalidate(begin, end types.Time) {
	os.Remove(c.allPath())
	if begin.IsZero() {
		return
	}
	for month := begin.StartOfMonth(); !month.After(end); month = month.NextMonth() {
		os.Remove(c.monthPath(month))
	}
}

// InvalidateAll drops every cache file, used by maintenance after
// index rebuilds.
func (c *SummaryCache) InvalidateAll() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.Remove(filepath.Join(c.dir, e.Name()))
	}
}

// Query composes the cached summaries for a matcher: month caches
// when the reftime clause bounds the query inside the dataset span,
// the all cache otherwise, filtered by the full matcher.
func (c *SummaryCache) Query(q *matcher.Matcher, span func() (types.Time, types.Time, error)) (*summary.Summary, error) {
	var begin, end types.Time
	if !q.RestrictDateRange(&begin, &end) {
		// Unsatisfiable reftime constraints.
		return summary.New(), nil
	}

	if begin.IsZero() || end.IsZero() {
		// Open ranges span the whole dataset.
		all, err := c.All()
		if err != nil {
			return nil, err
		}
		return all.Filter(q), nil
	}

	// Never materialise months outside of the dataset span.
	dsBegin, dsEnd, err := span()
	if err != nil {
		return nil, err
	}
	if dsBegin.IsZero() {
		return summary.New(), nil
	}
	if begin.Before(dsBegin) {
		begin = dsBegin
	}
	if dsEnd.Before(end) {
		end = types.TimeOf(dsEnd.Std().Add(time.Second))
	}

	out := summary.New()
	for month := begin.StartOfMonth(); month.Before(end); month = month.NextMonth() {
		ms, err := c.Month(month)
		if err != nil {
			return nil, fmt.Errorf("summarising %s: %w", monthName(month), err)
		}
		out.Merge(ms.Filter(q))
	}
	return out, nil
}
