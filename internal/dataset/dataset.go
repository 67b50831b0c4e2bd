// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dataset combines segments, index and summary cache into the
// polymorphic dataset facade: readers answer queries, writers acquire
// messages, checkers run maintenance.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

var (
	// ErrNotImplemented marks operations a dataset flavour does not
	// support, like writing to a remote dataset.
	ErrNotImplemented = errors.New("operation not implemented for this dataset type")

	// ErrConsistency marks invariant violations found at runtime;
	// the affected operation aborts, maintenance moves on to the
	// next segment.
	ErrConsistency = errors.New("consistency error")
)

// AcquireResult is the outcome of storing one message.
type AcquireResult int

const (
	AcquireOK AcquireResult = iota
	AcquireErrorDuplicate
	AcquireError
)

func (r AcquireResult) String() string {
	switch r {
	case AcquireOK:
		return "OK"
	case AcquireErrorDuplicate:
		return "ERROR_DUPLICATE"
	case AcquireError:
		return "ERROR"
	}
	return fmt.Sprintf("acquire-result(%d)", int(r))
}

// WriteMode selects the duplicate handling of an acquire.
type WriteMode int

const (
	ModeDefault WriteMode = iota
	ModeReplaceAlways
	ModeReplaceHigherUSN
	ModeReplaceNever
)

// ModeFor maps a config replace policy to the acquire mode.
func ModeFor(cfg *Config) WriteMode {
	switch cfg.Replace {
	case "always":
		return ModeReplaceAlways
	case "higher_usn":
		return ModeReplaceHigherUSN
	case "never":
		return ModeReplaceNever
	}
	return ModeDefault
}

// Reader answers queries on a dataset.
type Reader interface {
	Name() string

	// Query iterates matching metadata in (segment, offset) order.
	// Blob sources are bound to the dataset root so payloads can be
	// read. Returning false from fn terminates the iteration.
	Query(q *matcher.Matcher, fn func(*types.Metadata) bool) error

	QuerySummary(q *matcher.Matcher) (*summary.Summary, error)

	Close() error
}

// Writer acquires messages into a dataset. One writer at a time per
// dataset; the dataset-wide lock is held for the whole session.
type Writer interface {
	Name() string

	// Acquire stores the payload carried by md and updates md in
	// place: the source becomes a blob into the dataset and an
	// AssignedDataset item is stamped.
	Acquire(md *types.Metadata, mode WriteMode) (AcquireResult, error)

	// AcquireBatch processes the batch under one transaction,
	// committing items in input order.
	AcquireBatch(mds []*types.Metadata, mode WriteMode) ([]AcquireResult, error)

	// Flush commits pending index changes and invalidates summary
	// caches.
	Flush() error

	Close() error
}

// Severity of a maintenance report line.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Reporter receives per-segment maintenance findings.
type Reporter interface {
	Report(severity Severity, segment, message string)
}

// WriterReporter prints findings one per line.
type WriterReporter struct {
	Out io.Writer
	// Dataset name prefixed to every line.
	Dataset string
}

func (r *WriterReporter) Report(severity Severity, segment, message string) {
	if segment != "" {
		fmt.Fprintf(r.Out, "%s:%s: %s: %s\n", r.Dataset, segment, severity, message)
	} else {
		fmt.Fprintf(r.Out, "%s: %s: %s\n", r.Dataset, severity, message)
	}
}

// Checker runs maintenance on a dataset.
type Checker interface {
	Name() string

	// Check reports (and with readonly unset, repairs) index/segment
	// misalignments without touching segment bytes.
	Check(reporter Reporter, readonly bool) error

	// Repack rewrites dirty segments, drops deleted ones, applies
	// retention, and returns the bytes reclaimed.
	Repack(reporter Reporter, readonly bool) (int64, error)

	Close() error
}

// OpenReader opens the reader flavour for a dataset config.
func OpenReader(cfg *Config) (Reader, error) {
	switch cfg.Type {
	case "ondisk2":
		return openOndisk2Reader(cfg)
	case "iseg":
		return openIsegReader(cfg)
	case "simple":
		return openSimpleReader(cfg)
	case "file":
		return openFileReader(cfg)
	case "empty", "outbound":
		return &emptyReader{name: cfg.Name}, nil
	case "remote":
		return nil, fmt.Errorf("reading remote dataset %s: %w", cfg.Name, ErrNotImplemented)
	}
	return nil, fmt.Errorf("unknown dataset type %q for %s", cfg.Type, cfg.Name)
}

// OpenWriter opens the writer flavour for a dataset config, creating
// the directory layout on first use and taking the dataset lock.
func OpenWriter(cfg *Config) (Writer, error) {
	switch cfg.Type {
	case "ondisk2":
		return openOndisk2Writer(cfg)
	case "iseg":
		return openIsegWriter(cfg)
	case "simple":
		return openSimpleWriter(cfg)
	case "outbound":
		return openOutboundWriter(cfg)
	case "empty":
		return &emptyWriter{name: cfg.Name}, nil
	case "file", "remote":
		return nil, fmt.Errorf("writing %s dataset %s: %w", cfg.Type, cfg.Name, ErrNotImplemented)
	}
	return nil, fmt.Errorf("unknown dataset type %q for %s", cfg.Type, cfg.Name)
}

// OpenChecker opens the maintenance flavour for a dataset config.
func OpenChecker(cfg *Config) (Checker, error) {
	switch cfg.Type {
	case "ondisk2":
		return openOndisk2Checker(cfg)
	case "iseg":
		return openIsegChecker(cfg)
	}
	return nil, fmt.Errorf("checking %s dataset %s: %w", cfg.Type, cfg.Name, ErrNotImplemented)
}

// Create materialises the directory layout of a new dataset and
// writes its config file.
func Create(cfg *Config) error {
	if err := os.MkdirAll(cfg.Path, 0o777); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(cfg.Path, "config"))
	if err != nil {
		return err
	}
	if err := cfg.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// formatOf returns the payload format of md, defaulting sensibly.
func formatOf(md *types.Metadata) string {
	if md.HasSource() {
		if f := md.Source().Format; f != "" {
			return f
		}
	}
	return "grib1"
}
