// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// ondisk2Checker runs the maintenance scan for full-index datasets.
type ondisk2Checker struct {
	*ondisk2
	lock *util.FileLock
}

func openOndisk2Checker(cfg *Config) (Checker, error) {
	ds, err := openOndisk2(cfg)
	if err != nil {
		return nil, err
	}
	lock, err := util.AcquireLock(filepath.Join(cfg.Path, "lock"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	return &ondisk2Checker{ondisk2: ds, lock: lock}, nil
}

func (c *ondisk2Checker) Close() error {
	err := c.idx.Close()
	if c.lock != nil {
		if lerr := c.lock.Release(); err == nil {
			err = lerr
		}
		c.lock = nil
	}
	return err
}

// segmentFinding is the classified state of one segment.
type segmentFinding struct {
	relpath string
	state   segment.State
}

// isSegmentFile filters dataset bookkeeping out of the on-disk scan.
func isSegmentFile(relpath string) bool {
	base := filepath.Base(relpath)
	switch base {
	case "config", "lock", "index.sqlite", "MANIFEST":
		return false
	}
	if strings.HasPrefix(relpath, ".summaries") || strings.HasPrefix(relpath, ".archive") {
		return false
	}
	for _, suffix := range []string{".metadata", ".summary", ".gz.idx", ".index", ".sqlite-journal", ".repack", ".tmp"} {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return !strings.HasPrefix(base, ".")
}

// diskSegments walks the dataset tree for data files.
func (c *ondisk2Checker) diskSegments() ([]string, error) {
	var out []string
	err := filepath.WalkDir(c.cfg.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(c.cfg.Path, path)
		if rerr != nil {
			return rerr
		}
		if d.IsDir() {
			if rel != "." && !isSegmentFile(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." || !isSegmentFile(rel) {
			return nil
		}
		out = append(out, strings.TrimSuffix(rel, ".gz"))
		return nil
	})
	sort.Strings(out)
	return out, err
}

// segmentEnd is the newest datum of a segment, driving retention:
// a straddling period counts by its end, so a segment is old only
// when everything in it is old.
func (c *ondisk2Checker) segmentEnd(relpath string) types.Time {
	entries, err := c.idx.SegmentEntries(relpath)
	if err != nil || len(entries) == 0 {
		if _, end, ok := TimeSpanOf(relpath); ok {
			return end
		}
		return types.Time{}
	}
	var latest types.Time
	for _, e := range entries {
		if rt, ok := e.MD.Reftime(); ok {
			_, end := rt.Period()
			if end.After(latest) {
				latest = end
			}
		}
	}
	return latest
}

// scan classifies every segment known to the index or found on disk.
func (c *ondisk2Checker) scan() ([]segmentFinding, error) {
	indexed, err := c.idx.ListSegments()
	if err != nil {
		return nil, err
	}
	onDisk, err := c.diskSegments()
	if err != nil {
		return nil, err
	}
	inIndex := make(map[string]bool, len(indexed))
	for _, relpath := range indexed {
		inIndex[relpath] = true
	}

	now := types.TimeOf(time.Now())
	var findings []segmentFinding
	for _, relpath := range indexed {
		spans, err := c.idx.SegmentSpans(relpath)
		if err != nil {
			return nil, err
		}
		entries, err := c.idx.SegmentEntries(relpath)
		if err != nil {
			return nil, err
		}
		format := "grib1"
		if len(entries) > 0 {
			format = entries[0].Format
		}
		state := segment.New(format, c.cfg.Path, relpath).Check(spans, false)

		if state == segment.StateOK {
			end := c.segmentEnd(relpath)
			if c.cfg.DeleteAge > 0 && !end.IsZero() &&
				end.Before(types.TimeOf(now.Std().AddDate(0, 0, -c.cfg.DeleteAge))) {
				state = segment.StateDeleteAge
			} else if c.cfg.ArchiveAge > 0 && !end.IsZero() &&
				end.Before(types.TimeOf(now.Std().AddDate(0, 0, -c.cfg.ArchiveAge))) {
				state = segment.StateArchiveAge
			}
		}
		findings = append(findings, segmentFinding{relpath: relpath, state: state})
	}
	for _, relpath := range onDisk {
		if !inIndex[relpath] {
			findings = append(findings, segmentFinding{relpath: relpath, state: segment.StateUnaligned})
		}
	}
	return findings, nil
}

// Check reports misalignments and, unless readonly, re-indexes
// unaligned segments from their metadata sidecars, drops the index
// rows of segments missing on disk and drops the summary caches so
// they are recomputed lazily.
func (c *ondisk2Checker) Check(reporter Reporter, readonly bool) error {
	findings, err := c.scan()
	if err != nil {
		return err
	}

	changed := false
	for _, f := range findings {
		switch f.state {
		case segment.StateOK:
			reporter.Report(SeverityInfo, f.relpath, "segment is ok")
		case segment.StateDirty:
			reporter.Report(SeverityWarning, f.relpath, "segment contains deleted data, run repack")
		case segment.StateMissing:
			if readonly {
				reporter.Report(SeverityError, f.relpath, "segment referenced by the index but missing on disk")
				continue
			}
			n, err := c.idx.RemoveSegment(f.relpath)
			if err != nil {
				return err
			}
			reporter.Report(SeverityWarning, f.relpath, fmt.Sprintf("segment missing on disk, %d index rows removed", n))
			changed = true
		case segment.StateCorrupted:
			reporter.Report(SeverityError, f.relpath, "segment data fails validation")
		case segment.StateUnaligned:
			if readonly {
				reporter.Report(SeverityWarning, f.relpath, "segment on disk but not in the index")
				continue
			}
			n, err := c.rescan(f.relpath)
			if err != nil {
				reporter.Report(SeverityError, f.relpath, fmt.Sprintf("cannot rescan: %v", err))
				continue
			}
			reporter.Report(SeverityInfo, f.relpath, fmt.Sprintf("rescanned, %d records indexed", n))
			changed = true
		case segment.StateArchiveAge:
			reporter.Report(SeverityInfo, f.relpath, "segment is older than archive age")
		case segment.StateDeleteAge:
			reporter.Report(SeverityInfo, f.relpath, "segment is older than delete age")
		}
	}

	if changed {
		if err := c.idx.Flush(); err != nil {
			return err
		}
		c.cache.InvalidateAll()
	}
	return nil
}

// rescan rebuilds the index rows of a segment from its .metadata
// sidecar. Raw-format rescans need an external scanner, which is
// outside the core.
func (c *ondisk2Checker) rescan(relpath string) (int, error) {
	sidecar := filepath.Join(c.cfg.Path, relpath+".metadata")
	f, err := os.Open(sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no metadata sidecar to rescan from")
		}
		return 0, err
	}
	defer f.Close()

	if err := c.idx.ResetSegment(relpath); err != nil {
		return 0, err
	}
	n := 0
	for {
		md, err := types.ReadMetadata(f)
		if err != nil {
			break
		}
		src := md.Source()
		if src.Style != types.SourceBlob {
			continue
		}
		if err := c.idx.Index(md, src.Format, relpath, segment.Span{Offset: src.Offset, Size: src.Size}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// checkAmbiguity looks for unindexed trailing bytes duplicating an
// indexed payload. Repack refuses to guess a winner in that case.
func (c *ondisk2Checker) checkAmbiguity(relpath string, spans []segment.Span, format string) error {
	abspath := filepath.Join(c.cfg.Path, relpath)
	fi, err := os.Stat(abspath)
	if err != nil || fi.IsDir() {
		return nil
	}
	var next uint64
	for _, span := range spans {
		if span.Offset+span.Size > next {
			next = span.Offset + span.Size
		}
	}
	if next >= uint64(fi.Size()) {
		return nil
	}
	data, err := os.ReadFile(abspath)
	if err != nil {
		return err
	}
	trailing := data[next:]
	seg := segment.New(format, c.cfg.Path, relpath)
	for _, span := range spans {
		payload, err := seg.Read(span)
		if err != nil {
			return err
		}
		if len(payload) > 0 && bytes.Contains(trailing, payload) {
			return fmt.Errorf("%s: %w: unindexed data duplicates indexed payload at offset %d",
				relpath, ErrConsistency, span.Offset)
		}
	}
	return nil
}

// Repack rewrites dirty segments in index order, forgets missing
// ones, applies retention and reports the bytes reclaimed.
func (c *ondisk2Checker) Repack(reporter Reporter, readonly bool) (int64, error) {
	findings, err := c.scan()
	if err != nil {
		return 0, err
	}

	var reclaimed int64
	removedFiles := 0
	changed := false
	for _, f := range findings {
		entries, err := c.idx.SegmentEntries(f.relpath)
		if err != nil {
			return reclaimed, err
		}
		spans := make([]segment.Span, len(entries))
		format := "grib1"
		for i, e := range entries {
			spans[i] = segment.Span{Offset: e.Offset, Size: e.Size}
			format = e.Format
		}

		switch f.state {
		case segment.StateMissing:
			if readonly {
				reporter.Report(SeverityInfo, f.relpath, "would be removed from the index")
				continue
			}
			n, err := c.idx.RemoveSegment(f.relpath)
			if err != nil {
				return reclaimed, err
			}
			removedFiles++
			changed = true
			reporter.Report(SeverityInfo, f.relpath, fmt.Sprintf("removed from the index (%d records)", n))

		case segment.StateDirty:
			if err := c.checkAmbiguity(f.relpath, spans, format); err != nil {
				reporter.Report(SeverityError, f.relpath, err.Error())
				return reclaimed, err
			}
			if readonly {
				reporter.Report(SeverityInfo, f.relpath, "would be repacked")
				continue
			}
			seg := segment.New(format, c.cfg.Path, f.relpath)
			newSpans, freed, err := seg.Repack(spans)
			if err != nil {
				reporter.Report(SeverityError, f.relpath, fmt.Sprintf("repack failed: %v", err))
				continue
			}
			if err := c.idx.UpdateSegmentSpans(entries, newSpans); err != nil {
				return reclaimed, err
			}
			reclaimed += freed
			changed = true
			reporter.Report(SeverityInfo, f.relpath, fmt.Sprintf("repacked, %d bytes reclaimed", freed))

		case segment.StateCorrupted:
			reporter.Report(SeverityError, f.relpath, "segment data fails validation, not repacked")

		case segment.StateDeleteAge:
			if readonly {
				reporter.Report(SeverityInfo, f.relpath, "would be deleted by retention")
				continue
			}
			size, _ := util.FileSize(filepath.Join(c.cfg.Path, f.relpath))
			if err := segment.New(format, c.cfg.Path, f.relpath).Remove(); err != nil {
				reporter.Report(SeverityError, f.relpath, fmt.Sprintf("cannot delete: %v", err))
				continue
			}
			if _, err := c.idx.RemoveSegment(f.relpath); err != nil {
				return reclaimed, err
			}
			reclaimed += size
			changed = true
			reporter.Report(SeverityInfo, f.relpath, "deleted by retention")

		case segment.StateArchiveAge:
			if readonly {
				reporter.Report(SeverityInfo, f.relpath, "would be moved to the archive")
				continue
			}
			if err := c.moveToArchive(f.relpath); err != nil {
				reporter.Report(SeverityError, f.relpath, fmt.Sprintf("cannot archive: %v", err))
				continue
			}
			if _, err := c.idx.RemoveSegment(f.relpath); err != nil {
				return reclaimed, err
			}
			changed = true
			reporter.Report(SeverityInfo, f.relpath, "moved to the archive")
		}
	}

	if changed && !readonly {
		if err := c.idx.Flush(); err != nil {
			return reclaimed, err
		}
		c.cache.InvalidateAll()
		metrics.BytesReclaimed.WithLabelValues(c.Name()).Add(float64(reclaimed))
	}
	if removedFiles > 0 {
		reporter.Report(SeverityInfo, "", fmt.Sprintf("%d file removed from the index", removedFiles))
	}
	log.Debugf("%s: repack reclaimed %d bytes", c.Name(), reclaimed)
	return reclaimed, nil
}

// moveToArchive relocates a segment and its sidecars under .archive,
// keeping the same relative layout. Archived data files are stored
// gzipped; only maintenance ever reads them again.
func (c *ondisk2Checker) moveToArchive(relpath string) error {
	dst := filepath.Join(c.cfg.Path, ".archive", relpath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(c.cfg.Path, relpath), dst); err != nil {
		return err
	}
	for _, suffix := range []string{".metadata", ".summary"} {
		src := filepath.Join(c.cfg.Path, relpath+suffix)
		if util.CheckFileExists(src) {
			if err := os.Rename(src, dst+suffix); err != nil {
				return err
			}
		}
	}
	if fi, err := os.Stat(dst); err == nil && !fi.IsDir() && !strings.HasSuffix(dst, ".gz") {
		if err := util.CompressFile(dst, dst+".gz"); err != nil {
			return err
		}
	}
	return nil
}

// CheckIssue51 validates and repairs the historical corruption
// pattern of a duplicated trailing payload in GRIB concat segments:
// when the extra bytes are exactly one copy of the last indexed
// payload, the file is truncated back to its indexed size.
func (c *ondisk2Checker) CheckIssue51(reporter Reporter, fix bool) error {
	segments, err := c.idx.ListSegments()
	if err != nil {
		return err
	}
	for _, relpath := range segments {
		entries, err := c.idx.SegmentEntries(relpath)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		var end uint64
		for _, e := range entries {
			if e.Offset+e.Size > end {
				end = e.Offset + e.Size
			}
		}
		abspath := filepath.Join(c.cfg.Path, relpath)
		fi, err := os.Stat(abspath)
		if err != nil || fi.IsDir() || uint64(fi.Size()) <= end {
			continue
		}
		last := entries[len(entries)-1]
		seg := segment.New(last.Format, c.cfg.Path, relpath)
		payload, err := seg.Read(segment.Span{Offset: last.Offset, Size: last.Size})
		if err != nil {
			return err
		}
		trailing := make([]byte, uint64(fi.Size())-end)
		f, err := os.Open(abspath)
		if err != nil {
			return err
		}
		_, rerr := f.ReadAt(trailing, int64(end))
		f.Close()
		if rerr != nil {
			return rerr
		}
		if !bytes.Equal(trailing, payload) {
			continue
		}
		if !fix {
			reporter.Report(SeverityWarning, relpath, "trailing duplicate of the last payload found")
			continue
		}
		if err := os.Truncate(abspath, int64(end)); err != nil {
			return err
		}
		reporter.Report(SeverityInfo, relpath, "trailing duplicate removed")
	}
	return nil
}
