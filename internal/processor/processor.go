// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package processor turns a (reader, query) pair into output in the
// requested shape: binary or yaml metadata, raw data, or summaries.
// Raw data can be diverted through a caller byte-stream hook, the
// seam external postprocessors attach to.
package processor

import (
	"fmt"
	"io"
	"time"

	"github.com/meteo-dpc/arkive/internal/dataset"
	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Shape selects what a query emits.
type Shape int

const (
	// Binary metadata bundles.
	ShapeMetadata Shape = iota
	// Human-readable metadata dump.
	ShapeYaml
	// Raw payload bytes.
	ShapeData
	// Binary summary.
	ShapeSummary
	// Human-readable summary dump.
	ShapeSummaryYaml
)

// Config describes one query run.
type Config struct {
	Query *matcher.Matcher
	Shape Shape

	// Sorter reorders results within its interval; nil keeps
	// (segment, offset) order.
	Sorter *Sorter

	// Summary projection, applied for the summary shapes when
	// non-empty.
	Project []types.Code

	// DataStream, when set, receives payload bytes instead of the
	// main output. Hosts pipe it through their own postprocessor.
	DataStream io.Writer
}

// payload resolves the bytes a metadata record points to.
func payload(md *types.Metadata) ([]byte, error) {
	if data, ok := md.PayloadData(); ok {
		return data, nil
	}
	src := md.Source()
	if src.Style != types.SourceBlob {
		return nil, fmt.Errorf("cannot read data from %s source", src.Style)
	}
	seg := segment.New(src.Format, src.Basedir, src.Filename)
	return seg.Read(segment.Span{Offset: src.Offset, Size: src.Size})
}

// Process runs one query against a reader and writes the requested
// shape to out.
func Process(r dataset.Reader, cfg Config, out io.Writer) error {
	metrics.QueriesServed.WithLabelValues(r.Name()).Inc()

	switch cfg.Shape {
	case ShapeSummary, ShapeSummaryYaml:
		s, err := r.QuerySummary(cfg.Query)
		if err != nil {
			return err
		}
		if len(cfg.Project) > 0 {
			s = s.Project(cfg.Project...)
		}
		if cfg.Shape == ShapeSummaryYaml {
			return s.WriteYaml(out)
		}
		return s.Write(out)
	}

	var iterErr error
	emit := func(md *types.Metadata) bool {
		switch cfg.Shape {
		case ShapeYaml:
			iterErr = md.WriteYaml(out)
		case ShapeData:
			var data []byte
			if data, iterErr = payload(md); iterErr == nil {
				sink := out
				if cfg.DataStream != nil {
					sink = cfg.DataStream
				}
				_, iterErr = sink.Write(data)
			}
		default:
			iterErr = md.Write(out)
		}
		return iterErr == nil
	}

	consume := emit
	finish := func() bool { return true }
	if cfg.Sorter != nil {
		consume, finish = cfg.Sorter.Wrap(emit)
	}

	if err := r.Query(cfg.Query, consume); err != nil {
		return err
	}
	if iterErr == nil {
		finish()
	}
	return iterErr
}

// ImportCounts is the human-visible tally of a dispatch run.
type ImportCounts struct {
	Ok          int
	Duplicates  int
	NotImported int
	Elapsed     time.Duration
}

func (c ImportCounts) String() string {
	return fmt.Sprintf("%d OK, %d duplicates, %d not-imported, %.1f seconds",
		c.Ok, c.Duplicates, c.NotImported, c.Elapsed.Seconds())
}
