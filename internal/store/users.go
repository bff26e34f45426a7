// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// User is the minimal account record the engine needs: seed tooling writes
// it, and identity-backed tests read it. Token issuance happens elsewhere.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Passes       []string
	Venue        string
	CreatedAt    time.Time
}

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// UpsertUser inserts or replaces a user by username.
func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	passes, err := json.Marshal(u.Passes)
	if err != nil {
		return fmt.Errorf("encode passes: %w", err)
	}

	// Delete-then-insert keeps the statement portable; the engine only
	// upserts from seed tooling, never on a hot path.
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, u.Username); err != nil {
		return fmt.Errorf("replace user: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, passes, venue, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.Email, u.PasswordHash, u.Role, string(passes), u.Venue, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit()
}

// GetUserByUsername fetches one user.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, passes, venue, created_at
		FROM users WHERE username = ?`, username)

	var (
		u      User
		idStr  string
		passes string
	)
	err := row.Scan(&idStr, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &passes, &u.Venue, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(passes), &u.Passes); err != nil {
		return nil, fmt.Errorf("decode passes: %w", err)
	}
	return &u, nil
}
