// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package store provides the durable notification store.
//
// Notifications live in DuckDB (embedded, database/sql). Per-user view
// records live in BadgerDB, where the idempotent insert-if-absent write maps
// directly onto a keyed transaction. The engine is otherwise agnostic to
// both backends; every query the scheduler and the API need is exposed as a
// method here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/logging"
)

// Store wraps the DuckDB connection and the Badger view-record database.
type Store struct {
	conn  *sql.DB
	views *badger.DB
}

// New opens the store and initializes the schema. An empty database path
// opens DuckDB in memory; an empty views path opens Badger in memory. Both
// are intended for tests.
func New(dbCfg config.DatabaseConfig, viewsCfg config.ViewsConfig) (*Store, error) {
	connStr := ""
	if dbCfg.Path != "" {
		dir := filepath.Dir(dbCfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		threads := dbCfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		maxMemory := dbCfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "512MB"
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", dbCfg.Path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	badgerOpts := badger.DefaultOptions(viewsCfg.Path).WithLogger(nil)
	if viewsCfg.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	views, err := badger.Open(badgerOpts)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open view store: %w", err)
	}
	s.views = views

	logging.Info().Str("database", dbCfg.Path).Str("views", viewsCfg.Path).Msg("notification store opened")
	return s, nil
}

// initSchema creates the tables the engine needs.
//
// target_roles and meta are stored as JSON text: role matching happens in Go
// against the decoded slice, which keeps the schema portable and the queries
// trivially indexable on the hot columns (active, sent, scheduled_at).
func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS notifications (
	id           VARCHAR PRIMARY KEY,
	title        VARCHAR NOT NULL,
	body         VARCHAR NOT NULL,
	category     VARCHAR NOT NULL DEFAULT 'info',
	target_roles VARCHAR NOT NULL DEFAULT '["all"]',
	target_venue VARCHAR NOT NULL DEFAULT 'all',
	meta         VARCHAR NOT NULL DEFAULT '{}',
	active       BOOLEAN NOT NULL DEFAULT true,
	sent         BOOLEAN NOT NULL DEFAULT false,
	created_by   VARCHAR NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	scheduled_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	id            VARCHAR PRIMARY KEY,
	username      VARCHAR NOT NULL UNIQUE,
	email         VARCHAR NOT NULL DEFAULT '',
	password_hash VARCHAR NOT NULL,
	role          VARCHAR NOT NULL DEFAULT 'asistente',
	passes        VARCHAR NOT NULL DEFAULT '[]',
	venue         VARCHAR NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);
`
	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Conn exposes the DuckDB handle for collaborators that keep their own
// tables in the same database file (the audit trail).
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Close closes both backends.
func (s *Store) Close() error {
	var firstErr error
	if err := s.views.Close(); err != nil {
		firstErr = err
	}
	if err := s.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
