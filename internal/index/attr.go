// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// attrCache fronts one sub_<kind> attribute table. Attribute rows are
// immutable (id INTEGER PRIMARY KEY, val BLOB UNIQUE), so both
// directions are cached for the life of the session. Id 0 is reserved
// for "kind absent", which lets the unique index treat missing items
// as equal instead of inheriting sqlite's NULLs-are-distinct rule.
type attrCache struct {
	code  types.Code
	table string
	byVal map[string]int64
	byID  map[int64]types.Item
}

func newAttrCache(code types.Code) *attrCache {
	return &attrCache{
		code:  code,
		table: "sub_" + code.String(),
		byVal: make(map[string]int64),
		byID:  make(map[int64]types.Item),
	}
}

func (a *attrCache) createTable(db *sqlx.DB) error {
	_, err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, val BLOB NOT NULL UNIQUE)", a.table))
	return err
}

func (a *attrCache) load(db *sqlx.DB) error {
	rows, err := db.Query(fmt.Sprintf("SELECT id, val FROM %s", a.table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var val []byte
		if err := rows.Scan(&id, &val); err != nil {
			return err
		}
		it, err := types.DecodeBody(a.code, val)
		if err != nil {
			return fmt.Errorf("decoding %s attribute %d: %w", a.code, id, err)
		}
		a.byVal[string(val)] = id
		a.byID[id] = it
	}
	return rows.Err()
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// idFor interns an item, inserting it when unseen. A nil item maps to
// the reserved id 0.
func (a *attrCache) idFor(e execer, it types.Item) (int64, error) {
	if it == nil {
		return 0, nil
	}
	var enc types.Encoder
	types.EncodeItemBody(&enc, it)
	val := enc.Bytes()
	if id, ok := a.byVal[string(val)]; ok {
		return id, nil
	}
	res, err := e.Exec(fmt.Sprintf("INSERT INTO %s (val) VALUES (?)", a.table), val)
	if err != nil {
		return 0, fmt.Errorf("interning %s attribute: %w", a.code, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.byVal[string(val)] = id
	a.byID[id] = it
	return id, nil
}

// itemFor resolves an interned id back to its item. Id 0 is the
// absent item.
func (a *attrCache) itemFor(id int64) (types.Item, error) {
	if id == 0 {
		return nil, nil
	}
	it, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s attribute %d not found in %s", a.code, id, a.table)
	}
	return it, nil
}
