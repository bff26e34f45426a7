// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package scheduler promotes scheduled notifications to the stream. Two
// independent interval triggers run the same idempotent tick; the store's
// compare-and-set on the sent flag keeps concurrent ticks from
// double-counting a dispatch.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/metrics"
	"github.com/cmcapp/pulse/internal/models"
)

// Store is the slice of the notification store the dispatcher needs.
type Store interface {
	DueForDispatch(ctx context.Context, now time.Time) ([]*models.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// Publisher pushes dispatched notifications onto the event bus.
type Publisher interface {
	PublishNew(ctx context.Context, n *models.Notification) error
}

// DispatcherConfig tunes the tick behavior.
type DispatcherConfig struct {
	// DispatchRate is the maximum broadcasts per second during a tick.
	DispatchRate float64
	// DispatchBurst is the burst size of the pacing limiter.
	DispatchBurst int
}

// Dispatcher runs the per-tick dispatch algorithm.
type Dispatcher struct {
	store     Store
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[[]*models.Notification]
	limiter   *rate.Limiter
}

// NewDispatcher builds a dispatcher with a circuit breaker around the due
// query and a rate limiter pacing the broadcasts.
func NewDispatcher(s Store, p Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.DispatchRate <= 0 {
		cfg.DispatchRate = 50
	}
	if cfg.DispatchBurst <= 0 {
		cfg.DispatchBurst = 10
	}

	breaker := gobreaker.NewCircuitBreaker[[]*models.Notification](gobreaker.Settings{
		Name:        "due-query",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &Dispatcher{
		store:     s,
		publisher: p,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.DispatchRate), cfg.DispatchBurst),
	}
}

// Tick queries the due notifications and dispatches each in scheduled
// order: broadcast first, then mark sent. A crash between the two may
// produce a duplicate broadcast on the next tick; receivers dedup by id.
// A failed tick is abandoned whole, the next tick retries from scratch.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	err := d.tick(ctx, now)
	metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SchedulerTickErrors.Inc()
		logging.Error().Err(err).Msg("Scheduler tick failed")
	}
	return err
}

func (d *Dispatcher) tick(ctx context.Context, now time.Time) error {
	due, err := d.breaker.Execute(func() ([]*models.Notification, error) {
		return d.store.DueForDispatch(ctx, now)
	})
	if err != nil {
		return fmt.Errorf("query due notifications: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	logging.Debug().Int("count", len(due)).Msg("Dispatching due notifications")
	for _, n := range due {
		// The store query is the source of truth, but the dispatch contract
		// is re-checked per row: only active, unsent notifications whose
		// schedule has elapsed may broadcast.
		if !n.Due(now) {
			logging.Debug().Str("notification_id", n.ID.String()).Msg("Skipping notification no longer due")
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dispatch pacing interrupted: %w", err)
		}
		if err := d.dispatch(ctx, n); err != nil {
			metrics.DispatchErrors.Inc()
			logging.Error().Err(err).
				Str("notification_id", n.ID.String()).
				Msg("Failed to dispatch notification")
			continue
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, n *models.Notification) error {
	if err := d.publisher.PublishNew(ctx, n); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}

	won, err := d.store.MarkSent(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !won {
		// A concurrent tick got here first. The duplicate broadcast is
		// absorbed by receiver dedup.
		logging.Debug().Str("notification_id", n.ID.String()).Msg("Notification already marked sent")
		return nil
	}

	metrics.DispatchesTotal.Inc()
	logging.Info().
		Str("notification_id", n.ID.String()).
		Str("title", n.Title).
		Msg("Notification dispatched")
	return nil
}
