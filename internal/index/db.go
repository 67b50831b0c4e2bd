// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/meteo-dpc/arkive/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

var registerDriverOnce sync.Once

// openDB opens (and creates, if needed) one index database. sqlite
// keeps its default locking mode and the pool holds a single
// connection; one writer at a time per dataset is enforced by the
// dataset lock file, not by sqlite.
func openDB(path string) (*sqlx.DB, error) {
	registerDriverOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
	})

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	// sqlite does not multithread. Having more than one connection
	// open would just mean waiting for locks.
	db.SetMaxOpenConns(1)

	if err := migrateDB(db.DB, path); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrateDB brings the fixed part of the index schema up to date. The
// per-kind attribute tables and the unique index are derived from the
// dataset configuration and created separately.
func migrateDB(db *sql.DB, path string) error {
	driver, err := migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("preparing migrations for %s: %w", path, err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrating index %s: %w", path, err)
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	log.Debugf("index %s at schema version %d", path, version)
	return nil
}
