// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scan defines the seam between external format scanners and
// the archive core. Scanners for raw GRIB/BUFR/ODIMH5/VM2 payloads
// live outside the core; the core only consumes the Scanner contract
// and ships a scanner for its own metadata bundle files.
package scan

import (
	"fmt"
	"io"
	"os"

	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Scanner yields metadata records from some input; each record carries
// its payload inline or points at it with a blob source. Returning
// false from yield stops the scan. Per-payload problems are isolated:
// implementations annotate and keep going where they can.
type Scanner interface {
	Scan(yield func(md *types.Metadata) bool) error
}

// BundleScanner reads metadata bundle (.metadata) files: each record
// already carries its items and either inline data or a blob source
// resolved against basedir.
type BundleScanner struct {
	r       io.Reader
	name    string
	basedir string
}

func NewBundleScanner(r io.Reader, name, basedir string) *BundleScanner {
	return &BundleScanner{r: r, name: name, basedir: basedir}
}

// OpenBundleFile opens a .metadata file for scanning. Close the
// returned closer when done.
func OpenBundleFile(path, basedir string) (*BundleScanner, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return NewBundleScanner(f, path, basedir), f, nil
}

func (s *BundleScanner) Scan(yield func(md *types.Metadata) bool) error {
	count := 0
	for {
		md, err := types.ReadMetadata(s.r)
		if err == io.EOF {
			log.Debugf("%s: scanned %d records", s.name, count)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", s.name, count+1, err)
		}
		count++
		if src := md.Source(); src.Style == types.SourceBlob && src.Basedir == "" {
			src.Basedir = s.basedir
			md.SetSource(src)
		}
		if !yield(md) {
			return nil
		}
	}
}
