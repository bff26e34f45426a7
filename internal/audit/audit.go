// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package audit records who changed which notification and when. The trail
// is append-only, buffered, and persisted next to the notifications in
// DuckDB so one backup covers both.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/logging"
)

// Action categorizes a recorded mutation.
type Action string

const (
	ActionCreated      Action = "notification.created"
	ActionUpdated      Action = "notification.updated"
	ActionDeleted      Action = "notification.deleted"
	ActionStateChanged Action = "notification.state_changed"
)

// Entry is one audit record.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Actor          string    `json:"actor"`
	Role           string    `json:"role"`
	Action         Action    `json:"action"`
	NotificationID string    `json:"notification_id"`
	RequestID      string    `json:"request_id,omitempty"`
	Detail         string    `json:"detail,omitempty"`
}

// Store persists audit entries.
type Store interface {
	Save(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds trail settings.
type Config struct {
	// BufferSize is the async write queue length. Full queue drops the
	// entry with a warning rather than blocking the request path.
	BufferSize int

	// Retention is how long entries are kept. Zero disables cleanup.
	Retention time.Duration

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns production defaults: 90 days retention, daily
// cleanup.
func DefaultConfig() Config {
	return Config{
		BufferSize:      1000,
		Retention:       90 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
	}
}

// Trail is the audit recording service. Writes are asynchronous; Close
// drains the queue.
type Trail struct {
	store   Store
	entries chan *Entry
	stop    chan struct{}
	wg      sync.WaitGroup
	cfg     Config
}

// NewTrail starts the async writer.
func NewTrail(store Store, cfg Config) *Trail {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	t := &Trail{
		store:   store,
		entries: make(chan *Entry, cfg.BufferSize),
		stop:    make(chan struct{}),
		cfg:     cfg,
	}
	t.wg.Add(1)
	go t.writer()
	return t
}

// Record queues an entry. Missing id and timestamp are filled in. Never
// blocks: a full queue drops the entry with a warning.
func (t *Trail) Record(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case t.entries <- e:
	default:
		logging.Warn().
			Str("action", string(e.Action)).
			Str("notification_id", e.NotificationID).
			Msg("audit queue full, entry dropped")
	}
}

// Close stops the writer after draining queued entries.
func (t *Trail) Close() {
	close(t.stop)
	t.wg.Wait()
}

// StartCleanup purges expired entries on the configured interval until the
// context is canceled. No-op when retention is disabled.
func (t *Trail) StartCleanup(ctx context.Context) {
	if t.cfg.Retention <= 0 || t.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(t.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-t.cfg.Retention)
				purged, err := t.store.DeleteBefore(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("audit retention cleanup failed")
					continue
				}
				if purged > 0 {
					logging.Info().Int64("purged", purged).Msg("audit entries expired")
				}
			}
		}
	}()
}

func (t *Trail) writer() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stop:
			for {
				select {
				case e := <-t.entries:
					t.persist(e)
				default:
					return
				}
			}
		case e := <-t.entries:
			t.persist(e)
		}
	}
}

func (t *Trail) persist(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, e); err != nil {
		logging.Error().Err(err).Str("action", string(e.Action)).Msg("failed to save audit entry")
	}
}
