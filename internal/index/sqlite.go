// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package index implements the per-dataset secondary index mapping
// metadata to (segment, offset, size) triples, with uniqueness
// enforcement. The sqlite flavour backs ondisk2 (one index.sqlite per
// dataset) and iseg (one database per segment) datasets; the manifest
// flavour backs simple datasets.
package index

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/meteo-dpc/arkive/internal/segment"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/summary"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// ErrDuplicate is returned by Index when the unique column tuple of
// the new metadata collides with an already indexed one.
var ErrDuplicate = errors.New("duplicate metadata")

// Config selects which kinds are indexed and which combination must
// be unique within the dataset.
type Config struct {
	Indexed []types.Code
	Unique  []types.Code
}

// DefaultIndexed is the kind list indexed when the dataset config
// does not say otherwise.
var DefaultIndexed = []types.Code{
	types.CodeOrigin, types.CodeProduct, types.CodeLevel,
	types.CodeTimerange, types.CodeArea, types.CodeProddef,
	types.CodeRun,
}

// Entry is one indexed record.
type Entry struct {
	ID     int64
	MD     *types.Metadata
	Format string
	File   string
	Offset uint64
	Size   uint64
}

// SQLite is the sqlite-backed index flavour.
type SQLite struct {
	db    *sqlx.DB
	path  string
	cfg   Config
	attrs map[types.Code]*attrCache
	tx    *sqlx.Tx
}

// columnOf maps an indexable kind to its md column.
func columnOf(code types.Code) string { return code.String() }

// Open opens or creates an index database. The fixed schema comes
// from the embedded migrations; attribute tables and the unique index
// depend on cfg and are created here.
func Open(path string, cfg Config) (*SQLite, error) {
	if len(cfg.Indexed) == 0 {
		cfg.Indexed = DefaultIndexed
	}
	// Reftime has its own column; notes and sources are stored with
	// the record. None of them get attribute tables.
	indexed := cfg.Indexed[:0:0]
	for _, code := range cfg.Indexed {
		switch code {
		case types.CodeReftime, types.CodeNote, types.CodeSource, types.CodeAssignedDataset:
		default:
			indexed = append(indexed, code)
		}
	}
	cfg.Indexed = indexed

	// Unique kinds need attribute tables even when the index list
	// omits them.
	for _, code := range cfg.Unique {
		if code == types.CodeReftime {
			continue
		}
		present := false
		for _, have := range cfg.Indexed {
			if have == code {
				present = true
				break
			}
		}
		if !present {
			cfg.Indexed = append(cfg.Indexed, code)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	idx := &SQLite{db: db, path: path, cfg: cfg, attrs: make(map[types.Code]*attrCache)}
	for _, code := range cfg.Indexed {
		a := newAttrCache(code)
		if err := a.createTable(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s: %w", a.table, err)
		}
		if err := a.load(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("loading %s: %w", a.table, err)
		}
		idx.attrs[code] = a
	}

	if len(cfg.Unique) > 0 {
		cols := make([]string, 0, len(cfg.Unique))
		for _, code := range cfg.Unique {
			if code == types.CodeReftime {
				cols = append(cols, "reftime")
				continue
			}
			cols = append(cols, columnOf(code))
		}
		ddl := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS md_idx_unique ON md (%s)", strings.Join(cols, ", "))
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating unique index on %s: %w", path, err)
		}
	}
	return idx, nil
}

func (idx *SQLite) Path() string { return idx.path }

// begin opens the write transaction lazily. Inserts are bundled into
// transactions because in sqlite, that speeds up inserts A LOT.
func (idx *SQLite) begin() (*sqlx.Tx, error) {
	if idx.tx != nil {
		return idx.tx, nil
	}
	tx, err := idx.db.Beginx()
	if err != nil {
		log.Warn("Error while starting index transaction")
		return nil, err
	}
	idx.tx = tx
	return tx, nil
}

// Flush commits the pending write transaction.
func (idx *SQLite) Flush() error {
	if idx.tx == nil {
		return nil
	}
	err := idx.tx.Commit()
	idx.tx = nil
	if err != nil {
		log.Warn("Error while committing index transaction")
		return err
	}
	return nil
}

// Rollback discards the pending write transaction.
func (idx *SQLite) Rollback() error {
	if idx.tx == nil {
		return nil
	}
	err := idx.tx.Rollback()
	idx.tx = nil
	return err
}

func (idx *SQLite) Close() error {
	if idx.tx != nil {
		idx.tx.Rollback()
		idx.tx = nil
	}
	return idx.db.Close()
}

// encodeNotes packs the notes as concatenated envelopes.
func encodeNotes(md *types.Metadata) []byte {
	notes := md.Notes()
	if len(notes) == 0 {
		return nil
	}
	var enc types.Encoder
	for _, n := range notes {
		types.EncodeTo(&enc, n)
	}
	return enc.Bytes()
}

func decodeNotes(blob []byte, md *types.Metadata) error {
	dec := types.NewDecoder(blob)
	for dec.Remaining() > 0 {
		it, err := types.Decode(dec)
		if err != nil {
			return err
		}
		if n, ok := it.(types.Note); ok {
			md.AddNoteItem(n)
		}
	}
	return nil
}

func reftimeColumns(md *types.Metadata) (string, interface{}, error) {
	rt, ok := md.Reftime()
	if !ok {
		return "", nil, fmt.Errorf("cannot index metadata without reftime")
	}
	begin, end := rt.Period()
	if rt.Style == types.ReftimePeriod {
		return begin.SQL(), end.SQL(), nil
	}
	return begin.SQL(), nil, nil
}

// Index inserts one record. It returns ErrDuplicate when the unique
// tuple collides.
func (idx *SQLite) Index(md *types.Metadata, format, file string, span segment.Span) error {
	tx, err := idx.begin()
	if err != nil {
		return err
	}

	cols := []string{"format", "file", "offset", "size", "notes", "reftime", "reftime_end"}
	reftime, reftimeEnd, err := reftimeColumns(md)
	if err != nil {
		return err
	}
	vals := []interface{}{format, file, span.Offset, span.Size, encodeNotes(md), reftime, reftimeEnd}

	for _, code := range idx.cfg.Indexed {
		id, err := idx.attrs[code].idFor(tx, md.Get(code))
		if err != nil {
			return err
		}
		cols = append(cols, columnOf(code))
		vals = append(vals, id)
	}

	query, args, err := sq.Insert("md").Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicate
		}
		return fmt.Errorf("indexing into %s: %w", idx.path, err)
	}
	return nil
}

// uniqueWhere builds the predicate identifying md's unique tuple.
func (idx *SQLite) uniqueWhere(md *types.Metadata) (sq.Eq, error) {
	where := sq.Eq{}
	for _, code := range idx.cfg.Unique {
		if code == types.CodeReftime {
			reftime, _, err := reftimeColumns(md)
			if err != nil {
				return nil, err
			}
			where["reftime"] = reftime
			continue
		}
		a, ok := idx.attrs[code]
		if !ok {
			return nil, fmt.Errorf("unique kind %s is not indexed", code)
		}
		id, err := a.idFor(idx.execer(), md.Get(code))
		if err != nil {
			return nil, err
		}
		where[columnOf(code)] = id
	}
	return where, nil
}

// FindDuplicate looks up the record occupying md's unique tuple.
func (idx *SQLite) FindDuplicate(md *types.Metadata) (*Entry, error) {
	if len(idx.cfg.Unique) == 0 {
		return nil, nil
	}
	where, err := idx.uniqueWhere(md)
	if err != nil {
		return nil, err
	}
	entries, err := idx.selectEntries(sq.Select(idx.selectColumns()...).From("md").Where(where))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// Replace points an existing record at new metadata and location. The
// old payload bytes become a hole reclaimed by repack.
func (idx *SQLite) Replace(id int64, md *types.Metadata, format, file string, span segment.Span) error {
	tx, err := idx.begin()
	if err != nil {
		return err
	}

	reftime, reftimeEnd, err := reftimeColumns(md)
	if err != nil {
		return err
	}
	update := sq.Update("md").
		Set("format", format).
		Set("file", file).
		Set("offset", span.Offset).
		Set("size", span.Size).
		Set("notes", encodeNotes(md)).
		Set("reftime", reftime).
		Set("reftime_end", reftimeEnd).
		Where(sq.Eq{"id": id})
	for _, code := range idx.cfg.Indexed {
		attrID, err := idx.attrs[code].idFor(tx, md.Get(code))
		if err != nil {
			return err
		}
		update = update.Set(columnOf(code), attrID)
	}
	query, args, err := update.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("replacing record %d in %s: %w", id, idx.path, err)
	}
	return nil
}

func (idx *SQLite) selectColumns() []string {
	cols := []string{"id", "format", "file", "offset", "size", "notes", "reftime", "reftime_end"}
	for _, code := range idx.cfg.Indexed {
		cols = append(cols, columnOf(code))
	}
	return cols
}

func (idx *SQLite) scanEntry(rows *sqlx.Rows) (*Entry, error) {
	e := &Entry{MD: &types.Metadata{}}
	var notes []byte
	var reftime string
	var reftimeEnd *string
	dest := []interface{}{&e.ID, &e.Format, &e.File, &e.Offset, &e.Size, &notes, &reftime, &reftimeEnd}
	attrIDs := make([]int64, len(idx.cfg.Indexed))
	for i := range attrIDs {
		dest = append(dest, &attrIDs[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	begin, err := types.ParseTime(reftime)
	if err != nil {
		return nil, fmt.Errorf("record %d of %s: %w", e.ID, idx.path, err)
	}
	if reftimeEnd != nil {
		end, err := types.ParseTime(*reftimeEnd)
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", e.ID, idx.path, err)
		}
		e.MD.Set(types.NewReftimePeriod(begin, end))
	} else {
		e.MD.Set(types.NewReftimePosition(begin))
	}

	for i, code := range idx.cfg.Indexed {
		it, err := idx.attrs[code].itemFor(attrIDs[i])
		if err != nil {
			return nil, err
		}
		if it != nil {
			e.MD.Set(it)
		}
	}
	if len(notes) > 0 {
		if err := decodeNotes(notes, e.MD); err != nil {
			return nil, fmt.Errorf("record %d of %s: decoding notes: %w", e.ID, idx.path, err)
		}
	}
	e.MD.SetSource(types.NewSourceBlob(e.Format, "", e.File, e.Offset, e.Size))
	return e, nil
}

func (idx *SQLite) selectEntries(builder sq.SelectBuilder) ([]*Entry, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	log.Debugf("SQL query: `%s`, args: %#v", query, args)
	rows, err := idx.queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := idx.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// queryx routes reads through the open transaction so a writer sees
// its own uncommitted records. With a single sqlite connection,
// bypassing the transaction would deadlock on the pool.
func (idx *SQLite) queryx(query string, args ...interface{}) (*sqlx.Rows, error) {
	if idx.tx != nil {
		return idx.tx.Queryx(query, args...)
	}
	return idx.db.Queryx(query, args...)
}

func (idx *SQLite) execer() execer {
	if idx.tx != nil {
		return idx.tx
	}
	return idx.db
}

// Query iterates matching entries in (file, offset) order. The
// reftime clause is pushed down to SQL; the other clauses are applied
// in memory on the reconstructed metadata. Returning false from fn
// terminates the iteration.
func (idx *SQLite) Query(m *matcher.Matcher, fn func(*Entry) bool) error {
	builder := sq.Select(idx.selectColumns()...).From("md").OrderBy("file", "offset")
	if frag := m.ReftimeSQL("reftime"); frag != "" {
		builder = builder.Where(frag)
	}
	_, rest := m.Split(types.CodeReftime)

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	log.Debugf("SQL query: `%s`, args: %#v", query, args)
	rows, err := idx.queryx(query, args...)
	if err != nil {
		log.Warn("Error while running index query")
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := idx.scanEntry(rows)
		if err != nil {
			return err
		}
		if !rest.Match(&e.MD.ItemSet) {
			continue
		}
		if !fn(e) {
			return nil
		}
	}
	return rows.Err()
}

// QuerySummary aggregates the matching entries.
func (idx *SQLite) QuerySummary(m *matcher.Matcher) (*summary.Summary, error) {
	out := summary.New()
	var addErr error
	err := idx.Query(m, func(e *Entry) bool {
		if err := out.Add(e.MD); err != nil {
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

// ListSegments returns the distinct segment paths, ordered.
func (idx *SQLite) ListSegments() ([]string, error) {
	rows, err := idx.queryx("SELECT DISTINCT file FROM md ORDER BY file")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	return out, rows.Err()
}

// SegmentEntries returns a segment's records in offset order, the
// order repack rewrites payloads in.
func (idx *SQLite) SegmentEntries(relpath string) ([]*Entry, error) {
	return idx.selectEntries(
		sq.Select(idx.selectColumns()...).From("md").
			Where(sq.Eq{"file": relpath}).OrderBy("offset"))
}

// SegmentSpans returns the payload spans the index expects in a
// segment, in offset order.
func (idx *SQLite) SegmentSpans(relpath string) ([]segment.Span, error) {
	entries, err := idx.SegmentEntries(relpath)
	if err != nil {
		return nil, err
	}
	spans := make([]segment.Span, 0, len(entries))
	for _, e := range entries {
		spans = append(spans, segment.Span{Offset: e.Offset, Size: e.Size})
	}
	return spans, nil
}

// UpdateSegmentSpans rewrites the location of a segment's records
// after a repack, matching entries by id.
func (idx *SQLite) UpdateSegmentSpans(entries []*Entry, spans []segment.Span) error {
	if len(entries) != len(spans) {
		return fmt.Errorf("span count %d does not match entry count %d", len(spans), len(entries))
	}
	tx, err := idx.begin()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if _, err := tx.Exec("UPDATE md SET offset = ?, size = ? WHERE id = ?",
			spans[i].Offset, spans[i].Size, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSegment drops all records referencing a segment and returns
// how many there were.
func (idx *SQLite) RemoveSegment(relpath string) (int64, error) {
	tx, err := idx.begin()
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec("DELETE FROM md WHERE file = ?", relpath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetSegment is RemoveSegment for rescans: the segment stays on
// disk and will be re-indexed from its content.
func (idx *SQLite) ResetSegment(relpath string) error {
	_, err := idx.RemoveSegment(relpath)
	return err
}

// Count returns the number of indexed records.
func (idx *SQLite) Count() (int64, error) {
	rows, err := idx.queryx("SELECT COUNT(*) FROM md")
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// Span returns the reftime extent of the dataset; zero times when it
// is empty.
func (idx *SQLite) Span() (types.Time, types.Time, error) {
	rows, err := idx.queryx("SELECT MIN(reftime), MAX(COALESCE(reftime_end, reftime)) FROM md")
	if err != nil {
		return types.Time{}, types.Time{}, err
	}
	defer rows.Close()
	var minRef, maxRef *string
	if rows.Next() {
		if err := rows.Scan(&minRef, &maxRef); err != nil {
			return types.Time{}, types.Time{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return types.Time{}, types.Time{}, err
	}
	if minRef == nil || maxRef == nil {
		return types.Time{}, types.Time{}, nil
	}
	begin, err := types.ParseTime(*minRef)
	if err != nil {
		return types.Time{}, types.Time{}, err
	}
	end, err := types.ParseTime(*maxRef)
	if err != nil {
		return types.Time{}, types.Time{}, err
	}
	return begin, end, nil
}

// Vacuum reclaims the free pages left by deleted rows. Nothing in the
// index package calls it on its own.
func (idx *SQLite) Vacuum() error {
	if idx.tx != nil {
		if err := idx.Flush(); err != nil {
			return err
		}
	}
	_, err := idx.db.Exec("VACUUM")
	return err
}
