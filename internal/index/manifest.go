// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/meteo-dpc/arkive/internal/util"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// ManifestEntry is one segment known to a simple dataset: its
// relative path, data file mtime and reftime extent.
type ManifestEntry struct {
	Relpath string
	Mtime   int64
	Begin   types.Time
	End     types.Time
}

// Manifest is the lightweight index flavour of simple datasets. The
// actual items live in per-segment .metadata and .summary sidecars;
// the manifest only knows which segments exist and what reftime span
// they cover.
type Manifest interface {
	Acquire(e ManifestEntry) error
	Segments() ([]ManifestEntry, error)
	// SegmentsForRange returns the entries overlapping [begin, end);
	// zero times mean an open bound.
	SegmentsForRange(begin, end types.Time) ([]ManifestEntry, error)
	Remove(relpath string) error
	Flush() error
	Close() error
}

// OpenManifest opens the manifest for a dataset directory, choosing
// the sqlite form when forceSqlite is set or an index.sqlite is
// already there.
func OpenManifest(dir string, forceSqlite bool) (Manifest, error) {
	sqlitePath := filepath.Join(dir, "index.sqlite")
	if forceSqlite || util.CheckFileExists(sqlitePath) {
		return openSqliteManifest(sqlitePath)
	}
	return openPlainManifest(filepath.Join(dir, "MANIFEST"))
}

func overlaps(e ManifestEntry, begin, end types.Time) bool {
	if !begin.IsZero() && e.End.Before(begin) {
		return false
	}
	if !end.IsZero() && !e.Begin.Before(end) {
		return false
	}
	return true
}

/* plain text flavour */

// plainManifest keeps the whole listing in memory and rewrites the
// MANIFEST file atomically on flush. Lines are
// relpath;mtime;begin;end.
type plainManifest struct {
	path    string
	entries map[string]ManifestEntry
	dirty   bool
}

func openPlainManifest(path string) (*plainManifest, error) {
	m := &plainManifest{path: path, entries: make(map[string]ManifestEntry)}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s:%d: malformed manifest line", path, lineno)
		}
		mtime, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
		begin, err := types.ParseTime(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
		end, err := types.ParseTime(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
		m.entries[fields[0]] = ManifestEntry{Relpath: fields[0], Mtime: mtime, Begin: begin, End: end}
	}
	return m, scanner.Err()
}

func (m *plainManifest) Acquire(e ManifestEntry) error {
	if old, ok := m.entries[e.Relpath]; ok {
		// Extend the extent instead of replacing it.
		if !old.Begin.IsZero() && old.Begin.Before(e.Begin) {
			e.Begin = old.Begin
		}
		if old.End.After(e.End) {
			e.End = old.End
		}
	}
	m.entries[e.Relpath] = e
	m.dirty = true
	return nil
}

func (m *plainManifest) Segments() ([]ManifestEntry, error) {
	out := make([]ManifestEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relpath < out[j].Relpath })
	return out, nil
}

func (m *plainManifest) SegmentsForRange(begin, end types.Time) ([]ManifestEntry, error) {
	all, _ := m.Segments()
	out := all[:0]
	for _, e := range all {
		if overlaps(e, begin, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *plainManifest) Remove(relpath string) error {
	if _, ok := m.entries[relpath]; ok {
		delete(m.entries, relpath)
		m.dirty = true
	}
	return nil
}

func (m *plainManifest) Flush() error {
	if !m.dirty {
		return nil
	}
	var buf bytes.Buffer
	entries, _ := m.Segments()
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s;%d;%s;%s\n", e.Relpath, e.Mtime, e.Begin.SQL(), e.End.SQL())
	}
	if err := util.WriteFileAtomically(m.path, buf.Bytes()); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

func (m *plainManifest) Close() error { return m.Flush() }

/* sqlite flavour */

type sqliteManifest struct {
	db   *sqlx.DB
	path string
}

func openSqliteManifest(path string) (*sqliteManifest, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS mft (
		file TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest table in %s: %w", path, err)
	}
	return &sqliteManifest{db: db, path: path}, nil
}

func (m *sqliteManifest) Acquire(e ManifestEntry) error {
	_, err := m.db.Exec(`INSERT INTO mft (file, mtime, start_time, end_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			mtime = excluded.mtime,
			start_time = MIN(start_time, excluded.start_time),
			end_time = MAX(end_time, excluded.end_time)`,
		e.Relpath, e.Mtime, e.Begin.SQL(), e.End.SQL())
	return err
}

func (m *sqliteManifest) scan(query string, args ...interface{}) ([]ManifestEntry, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ManifestEntry
	for rows.Next() {
		var e ManifestEntry
		var begin, end string
		if err := rows.Scan(&e.Relpath, &e.Mtime, &begin, &end); err != nil {
			return nil, err
		}
		if e.Begin, err = types.ParseTime(begin); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", m.path, err)
		}
		if e.End, err = types.ParseTime(end); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", m.path, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *sqliteManifest) Segments() ([]ManifestEntry, error) {
	return m.scan("SELECT file, mtime, start_time, end_time FROM mft ORDER BY file")
}

func (m *sqliteManifest) SegmentsForRange(begin, end types.Time) ([]ManifestEntry, error) {
	all, err := m.Segments()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if overlaps(e, begin, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *sqliteManifest) Remove(relpath string) error {
	_, err := m.db.Exec("DELETE FROM mft WHERE file = ?", relpath)
	return err
}

func (m *sqliteManifest) Flush() error { return nil }

func (m *sqliteManifest) Close() error { return m.db.Close() }
