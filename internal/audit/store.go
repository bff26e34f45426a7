// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DuckDBStore persists audit entries in the engine's DuckDB database.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an existing DuckDB handle. Call CreateTable before
// first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_entries table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS audit_entries (
	id              VARCHAR PRIMARY KEY,
	ts              TIMESTAMP NOT NULL,
	actor           VARCHAR NOT NULL,
	role            VARCHAR NOT NULL DEFAULT '',
	action          VARCHAR NOT NULL,
	notification_id VARCHAR NOT NULL,
	request_id      VARCHAR NOT NULL DEFAULT '',
	detail          VARCHAR NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts DESC);
`)
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Save appends one entry.
func (s *DuckDBStore) Save(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, ts, actor, role, action, notification_id, request_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Timestamp, e.Actor, e.Role, string(e.Action),
		e.NotificationID, e.RequestID, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("save audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *DuckDBStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, actor, role, action, notification_id, request_id, detail
		FROM audit_entries ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e      Entry
			idStr  string
			action string
		)
		if err := rows.Scan(&idStr, &e.Timestamp, &e.Actor, &e.Role, &action,
			&e.NotificationID, &e.RequestID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse audit id %q: %w", idStr, err)
		}
		e.Action = Action(action)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteBefore purges entries older than the cutoff and reports how many.
func (s *DuckDBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // driver may not report affected rows
	}
	return n, nil
}
