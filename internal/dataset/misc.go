// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

/* outbound: write-only exports with no index */

// outboundWriter appends to step-named segments and keeps no index:
// no duplicate detection, no queries.
type outboundWriter struct {
	cfg *Config
}

func openOutboundWriter(cfg *Config) (Writer, error) {
	if err := os.MkdirAll(cfg.Path, 0o777); err != nil {
		return nil, err
	}
	return &outboundWriter{cfg: cfg}, nil
}

func (w *outboundWriter) Name() string { return w.cfg.Name }

func (w *outboundWriter) Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error) {
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
	metrics.BytesAppended.WithLabelValues(w.Name()).Add(float64(span.Size))
	return AcquireOK, nil
}

func (w *outboundWriter) AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error) {
	results := make([]AcquireResult, len(mds))
	for i, md := range mds {
		res, err := w.Acquire(md, mode)
		results[i] = res
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (w *outboundWriter) Flush() error { return nil }
func (w *outboundWriter) Close() error { return nil }

/* empty: accepts and discards everything */

type emptyWriter struct {
	name string
}

func (w *emptyWriter) Name() string { return w.name }

func (w *emptyWriter) Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error) {
	md.Set(types.NewAssignedDataset(w.name, "discarded"))
	return AcquireOK, nil
}

func (w *emptyWriter) AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error) {
	results := make([]AcquireResult, len(mds))
	for i, md := range mds {
		results[i], _ = w.Acquire(md, mode)
	}
	return results, nil
}

func (w *emptyWriter) Flush() error { return nil }
func (w *emptyWriter) Close() error { return nil }

type emptyReader struct {
	name string
}

func (r *emptyReader) Name() string { return r.name }

func (r *emptyReader) Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error {
	return nil
}

func (r *emptyReader) QuerySummary(q *matcher.Matcher) (*summary.Summary, error) {
	return summary.New(), nil
}

func (r *emptyReader) Close() error { return nil }

/* file: a read-only dataset over one standalone metadata file */

// fileReader serves queries over a standalone .metadata bundle file,
// letting query tools treat plain files as datasets.
type fileReader struct {
	cfg *Config
}

func openFileReader(cfg *Config) (Reader, error) {
	if !strings.HasSuffix(cfg.Path, ".metadata") {
		return nil, fmt.Errorf("file dataset %s: only .metadata files are supported without a scanner", cfg.Name)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, err
	}
	return &fileReader{cfg: cfg}, nil
}

func (r *fileReader) Name() string { return r.cfg.Name }

func (r *fileReader) Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	basedir := filepath.Dir(r.cfg.Path)
	for {
		md, err := types.ReadMetadata(f)
		if err != nil {
			return nil
		}
		if !q.Match(&md.ItemSet) {
			continue
		}
		if src := md.Source(); src.Style == types.SourceBlob && src.Basedir == "" {
			src.Basedir = basedir
			md.SetSource(src)
		}
		if !fn(md) {
			return nil
		}
	}
}

func (r *fileReader) QuerySummary(q *matcher.Matcher) (*summary.Summary, error) {
	out := summary.New()
	var addErr error
	err := r.Query(q, func(md *types.Metadata) bool {
		if err := out.Add(md); err != nil {
			addErr = err
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, addErr
}

func (r *fileReader) Close() error { return nil }
