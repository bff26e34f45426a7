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
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/metrics"
	"github.com/cmcapp/pulse/internal/models"
)

const notificationColumns = `id, title, body, category, target_roles, target_venue, meta, active, sent, created_by, created_at, scheduled_at`

// validateNotification enforces the create/update input contract.
func validateNotification(n *models.Notification) error {
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if strings.TrimSpace(n.Body) == "" {
		return &ValidationError{Field: "body", Message: "must not be empty"}
	}
	return nil
}

// Create inserts a new notification. The ID and CreatedAt are assigned when
// zero; Sent always starts false.
func (s *Store) Create(ctx context.Context, n *models.Notification) error {
	start := time.Now()
	err := s.create(ctx, n)
	metrics.ObserveStoreQuery("create", start, err)
	return err
}

func (s *Store) create(ctx context.Context, n *models.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Category == "" {
		n.Category = models.CategoryInfo
	}
	if len(n.TargetRoles) == 0 {
		n.TargetRoles = []string{models.TargetAll}
	}
	if n.TargetVenue == "" {
		n.TargetVenue = models.TargetAll
	}
	n.Sent = false

	roles, meta, err := encodeJSONFields(n)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.Title, n.Body, n.Category, roles, n.TargetVenue, meta,
		n.Active, n.Sent, n.CreatedBy, n.CreatedAt, n.ScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Update replaces the editable fields of an existing notification. When the
// schedule changes, the sent flag is reset so the scheduler dispatches the
// notification again at its new time.
func (s *Store) Update(ctx context.Context, n *models.Notification) error {
	start := time.Now()
	err := s.update(ctx, n)
	metrics.ObserveStoreQuery("update", start, err)
	return err
}

func (s *Store) update(ctx context.Context, n *models.Notification) error {
	if err := validateNotification(n); err != nil {
		return err
	}

	existing, err := s.get(ctx, n.ID)
	if err != nil {
		return err
	}

	n.Sent = existing.Sent
	if !sameSchedule(existing.ScheduledAt, n.ScheduledAt) {
		n.Sent = false
	}
	n.CreatedAt = existing.CreatedAt
	if n.CreatedBy == "" {
		n.CreatedBy = existing.CreatedBy
	}

	roles, meta, err := encodeJSONFields(n)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE notifications
		SET title = ?, body = ?, category = ?, target_roles = ?, target_venue = ?,
		    meta = ?, active = ?, sent = ?, scheduled_at = ?
		WHERE id = ?`,
		n.Title, n.Body, n.Category, roles, n.TargetVenue,
		meta, n.Active, n.Sent, n.ScheduledAt, n.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a notification permanently. Deletion is terminal; callers
// broadcast the tombstone event after a successful delete.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.delete(ctx, id)
	metrics.ObserveStoreQuery("delete", start, err)
	return err
}

func (s *Store) delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches one notification by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	start := time.Now()
	n, err := s.get(ctx, id)
	metrics.ObserveStoreQuery("get", start, err)
	return n, err
}

func (s *Store) get(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE id = ?`, id.String())
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// ListVisibleTo returns the active notifications the identity may see,
// newest first, each joined with the caller's view state. Targeting matches
// the system role, the pass-derived tier, or the wildcard; venue matches the
// caller's current venue or the wildcard.
func (s *Store) ListVisibleTo(ctx context.Context, id models.Identity, venue string) ([]models.VisibleNotification, error) {
	start := time.Now()
	out, err := s.listVisibleTo(ctx, id, venue)
	metrics.ObserveStoreQuery("list_visible", start, err)
	return out, err
}

func (s *Store) listVisibleTo(ctx context.Context, id models.Identity, venue string) ([]models.VisibleNotification, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE active = true
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	tier := id.PassTier()
	visible := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		if !n.TargetsRole(id.Role) && !n.TargetsRole(tier) {
			continue
		}
		if !n.TargetsVenue(venue) {
			continue
		}
		visible = append(visible, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s.attachViewState(id.UserID, visible)
}

// History returns every notification, newest first, joined with the user's
// view state. Unlike ListVisibleTo it ignores targeting so the panel can
// show the user's complete record.
func (s *Store) History(ctx context.Context, userID string) ([]models.VisibleNotification, error) {
	start := time.Now()
	out, err := s.history(ctx, userID)
	metrics.ObserveStoreQuery("history", start, err)
	return out, err
}

func (s *Store) history(ctx context.Context, userID string) ([]models.VisibleNotification, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	all := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s.attachViewState(userID, all)
}

// DueForDispatch returns notifications whose schedule has elapsed and that
// have not been sent, ordered by scheduled time ascending. The query is
// naturally idempotent: once MarkSent succeeds a notification never appears
// again.
func (s *Store) DueForDispatch(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	start := time.Now()
	out, err := s.dueForDispatch(ctx, now)
	metrics.ObserveStoreQuery("due_for_dispatch", start, err)
	return out, err
}

func (s *Store) dueForDispatch(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE active = true
		  AND sent = false
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	due := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	return due, rows.Err()
}

// MarkSent flips sent false->true as a single compare-and-set. It returns
// true when this caller won the transition; a concurrent scheduler tick that
// lost the race gets false and must not count the dispatch as its own.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()
	won, err := s.markSent(ctx, id)
	metrics.ObserveStoreQuery("mark_sent", start, err)
	return won, err
}

func (s *Store) markSent(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE notifications SET sent = true
		WHERE id = ? AND sent = false`, id.String())
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SetActive toggles a notification's visibility without touching its other
// fields.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	start := time.Now()
	err := s.setActive(ctx, id, active)
	metrics.ObserveStoreQuery("set_active", start, err)
	return err
}

func (s *Store) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE notifications SET active = ? WHERE id = ?`, active, id.String())
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// sameSchedule compares two optional schedule times.
func sameSchedule(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func encodeJSONFields(n *models.Notification) (roles string, meta string, err error) {
	rolesBytes, err := json.Marshal(n.TargetRoles)
	if err != nil {
		return "", "", fmt.Errorf("encode target roles: %w", err)
	}
	if n.Meta == nil {
		n.Meta = map[string]string{}
	}
	metaBytes, err := json.Marshal(n.Meta)
	if err != nil {
		return "", "", fmt.Errorf("encode meta: %w", err)
	}
	return string(rolesBytes), string(metaBytes), nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n         models.Notification
		idStr     string
		roles     string
		meta      string
		scheduled sql.NullTime
	)
	err := row.Scan(&idStr, &n.Title, &n.Body, &n.Category, &roles, &n.TargetVenue,
		&meta, &n.Active, &n.Sent, &n.CreatedBy, &n.CreatedAt, &scheduled)
	if err != nil {
		return nil, err
	}

	n.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse notification id %q: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(roles), &n.TargetRoles); err != nil {
		return nil, fmt.Errorf("decode target roles: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &n.Meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	if scheduled.Valid {
		t := scheduled.Time
		n.ScheduledAt = &t
	}
	return &n, nil
}
