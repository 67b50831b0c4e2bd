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

	"github.com/meteo-dpc/arkive/internal/index"
	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/lrucache"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// simple is the manifest-backed flavour: no record-level index, just
// a listing of segments with their reftime extent, plus per-segment
// .metadata and .summary sidecars loaded on demand. It detects no
// duplicates.
type simple struct {
	cfg *Config
	mft index.Manifest

	// Decoded sidecars are kept in a size-bounded cache; the writer
	// flushes it on commit so readers never serve stale records.
	sidecars *lrucache.Cache
}

func openSimple(cfg *Config) (*simple, error) {
	if err := os.MkdirAll(cfg.Path, 0o777); err != nil {
		return nil, err
	}
	mft, err := index.OpenManifest(cfg.Path, cfg.ForceSqlite)
	if err != nil {
		return nil, err
	}
	return &simple{cfg: cfg, mft: mft, sidecars: lrucache.New(32 * 1024 * 1024)}, nil
}

func (ds *simple) Name() string { return ds.cfg.Name }

func (ds *simple) sidecarPath(relpath, suffix string) string {
	return filepath.Join(ds.cfg.Path, relpath+suffix)
}

// segmentMetadata loads a segment's records from its sidecar, going
// through the sidecar cache.
func (ds *simple) segmentMetadata(relpath string) ([]*types.Metadata, error) {
	var loadErr error
	cached := ds.sidecars.Get(relpath, func() (interface{}, int) {
		path := ds.sidecarPath(relpath, ".metadata")
		f, err := os.Open(path)
		if err != nil {
			loadErr = err
			return nil, 0
		}
		defer f.Close()

		var out []*types.Metadata
		size := 0
		for {
			md, err := types.ReadMetadata(f)
			if err != nil {
				break
			}
			out = append(out, md)
			size += len(md.Encode())
		}
		return out, size
	})
	if loadErr != nil {
		ds.sidecars.Del(relpath)
		return nil, loadErr
	}
	mds, _ := cached.([]*types.Metadata)

	// Sources are shared with the cache: hand out clones so callers
	// can rebind basedirs freely.
	out := make([]*types.Metadata, len(mds))
	for i, md := range mds {
		out[i] = md.Clone()
	}
	return out, nil
}

func (ds *simple) segmentsForQuery(q *matcher.Matcher) ([]index.ManifestEntry, error) {
	var begin, end types.Time
	if !q.RestrictDateRange(&begin, &end) {
		return nil, nil
	}
	return ds.mft.SegmentsForRange(begin, end)
}

func (ds *simple) Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error {
	entries, err := ds.segmentsForQuery(q)
	if err != nil {
		return err
	}
	for _, e := range entries {
		mds, err := ds.segmentMetadata(e.Relpath)
		if err != nil {
			return fmt.Errorf("%s: reading segment metadata: %w", ds.Name(), err)
		}
		for _, md := range mds {
			if !q.Match(&md.ItemSet) {
				continue
			}
			src := md.Source()
			if src.Style == types.SourceBlob {
				src.Basedir = ds.cfg.Path
				md.SetSource(src)
			}
			if !fn(md) {
				return nil
			}
		}
	}
	return nil
}

// segmentSummary loads the .summary sidecar, rebuilding it from the
// metadata sidecar when missing or unreadable.
func (ds *simple) segmentSummary(relpath string) (*summary.Summary, error) {
	path := ds.sidecarPath(relpath, ".summary")
	if util.CheckFileExists(path) {
		if s, err := summary.ReadFile(path); err == nil {
			return s, nil
		}
		log.Warnf("%s: discarding unreadable summary sidecar %s", ds.Name(), path)
	}
	mds, err := ds.segmentMetadata(relpath)
	if err != nil {
		return nil, err
	}
	s := summary.New()
	for _, md := range mds {
		if err := s.Add(md); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := s.Write(&buf); err == nil {
		if err := util.WriteFileAtomically(path, buf.Bytes()); err != nil {
			log.Warnf("%s: cannot store summary sidecar %s: %v", ds.Name(), path, err)
		}
	}
	return s, nil
}

func (ds *simple) QuerySummary(q *matcher.Matcher) (*summary.Summary, error) {
	entries, err := ds.segmentsForQuery(q)
	if err != nil {
		return nil, err
	}
	out := summary.New()
	for _, e := range entries {
		s, err := ds.segmentSummary(e.Relpath)
		if err != nil {
			return nil, err
		}
		out.Merge(s.Filter(q))
	}
	return out, nil
}

func (ds *simple) Close() error { return ds.mft.Close() }

/* reader */

type simpleReader struct {
	*simple
}

func openSimpleReader(cfg *Config) (Reader, error) {
	ds, err := openSimple(cfg)
	if err != nil {
		return nil, err
	}
	return &simpleReader{ds}, nil
}

/* writer */

type simpleWriter struct {
	*simple
	lock *util.FileLock

	// Segments touched since the last flush, whose summary sidecars
	// must be rebuilt.
	touched map[string]bool
}

func openSimpleWriter(cfg *Config) (Writer, error) {
	ds, err := openSimple(cfg)
	if err != nil {
		return nil, err
	}
	lock, err := util.AcquireLock(filepath.Join(cfg.Path, "lock"))
	if err != nil {
		ds.Close()
		return nil, err
	}
	return &simpleWriter{simple: ds, lock: lock, touched: make(map[string]bool)}, nil
}

func (w *simpleWriter) Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error) {
	payload, ok := md.PayloadData()
	if !ok {
		return AcquireError, fmt.Errorf("%s: cannot acquire metadata without payload data", w.Name())
	}
	relpath, err := segmentFor(w.cfg, md)
	if err != nil {
		return AcquireError, fmt.Errorf("%s: %w", w.Name(), err)
	}
	format := formatOf(md)

	seg := segment.New(format, w.cfg.Path, relpath)
	span, err := seg.Append(payload)
	if err != nil {
		return AcquireError, err
	}

	md.SetSource(types.NewSourceBlob(format, w.cfg.Path, relpath, span.Offset, span.Size))
	md.Set(types.NewAssignedDataset(w.Name(), fmt.Sprintf("%s:%d", relpath, span.Offset)))

	// The sidecar stores sources relative to the dataset.
	stored := md.Clone()
	src := stored.Source()
	src.Basedir = ""
	stored.SetSource(src)
	f, err := os.OpenFile(w.sidecarPath(relpath, ".metadata"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return AcquireError, err
	}
	if err := stored.Write(f); err != nil {
		f.Close()
		return AcquireError, err
	}
	if err := f.Close(); err != nil {
		return AcquireError, err
	}

	rt, _ := md.Reftime()
	begin, end := rt.Period()
	mtime := int64(0)
	if fi, err := os.Stat(filepath.Join(w.cfg.Path, relpath)); err == nil {
		mtime = fi.ModTime().Unix()
	}
	if err := w.mft.Acquire(index.ManifestEntry{Relpath: relpath, Mtime: mtime, Begin: begin, End: end}); err != nil {
		return AcquireError, err
	}
	w.touched[relpath] = true
	metrics.BytesAppended.WithLabelValues(w.Name()).Add(float64(span.Size))
	return AcquireOK, nil
}

func (w *simpleWriter) AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error) {
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

func (w *simpleWriter) Flush() error {
	w.sidecars.Flush()
	for relpath := range w.touched {
		// Rebuild the summary sidecar from the metadata sidecar.
		os.Remove(w.sidecarPath(relpath, ".summary"))
		if _, err := w.segmentSummary(relpath); err != nil {
			return err
		}
	}
	w.touched = make(map[string]bool)
	return w.mft.Flush()
}

func (w *simpleWriter) Close() error {
	err := w.mft.Close()
	if w.lock != nil {
		if lerr := w.lock.Release(); err == nil {
			err = lerr
		}
		w.lock = nil
	}
	return err
}
