// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/metrics"
	"github.com/cmcapp/pulse/internal/models"
)

// viewKeyPrefix namespaces view records in Badger:
// view:<user-id>:<notification-id>
const viewKeyPrefix = "view:"

func viewKey(userID string, notificationID uuid.UUID) []byte {
	return []byte(viewKeyPrefix + userID + ":" + notificationID.String())
}

// MarkViewed records that the user has seen the notification. The write is
// insert-if-absent: calling it again for the same pair is a no-op, so
// concurrent or repeated marks never produce duplicate records. Returns
// ErrNotFound when the notification does not exist.
func (s *Store) MarkViewed(ctx context.Context, userID string, notificationID uuid.UUID) error {
	start := time.Now()
	err := s.markViewed(ctx, userID, notificationID)
	metrics.ObserveStoreQuery("mark_viewed", start, err)
	return err
}

func (s *Store) markViewed(ctx context.Context, userID string, notificationID uuid.UUID) error {
	if _, err := s.get(ctx, notificationID); err != nil {
		return err
	}

	record := models.ViewRecord{
		UserID:         userID,
		NotificationID: notificationID,
		ViewedAt:       time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.views.Update(func(txn *badger.Txn) error {
		key := viewKey(userID, notificationID)
		_, err := txn.Get(key)
		if err == nil {
			// Already viewed; idempotent.
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// ViewRecord fetches the view record for one (user, notification) pair, or
// nil when the user has not viewed it.
func (s *Store) ViewRecord(userID string, notificationID uuid.UUID) (*models.ViewRecord, error) {
	var record *models.ViewRecord
	err := s.views.View(func(txn *badger.Txn) error {
		item, err := txn.Get(viewKey(userID, notificationID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r models.ViewRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			record = &r
			return nil
		})
	})
	return record, err
}

// attachViewState joins notifications with the user's view records in one
// Badger read transaction.
func (s *Store) attachViewState(userID string, notifications []*models.Notification) ([]models.VisibleNotification, error) {
	out := make([]models.VisibleNotification, 0, len(notifications))
	err := s.views.View(func(txn *badger.Txn) error {
		for _, n := range notifications {
			vn := models.VisibleNotification{Notification: *n}
			item, err := txn.Get(viewKey(userID, n.ID))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// not viewed
			case err != nil:
				return err
			default:
				var r models.ViewRecord
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &r)
				}); err != nil {
					return err
				}
				vn.Viewed = true
				t := r.ViewedAt
				vn.ViewedAt = &t
			}
			out = append(out, vn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
