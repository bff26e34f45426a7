// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/logging"
)

// Scheduler drives the dispatcher on two independent interval triggers.
// The backup trigger covers a stalled or slow primary; both run the same
// idempotent tick so overlap is harmless.
type Scheduler struct {
	dispatcher *Dispatcher
	primary    time.Duration
	backup     time.Duration
}

// New builds the scheduler from configuration.
func New(d *Dispatcher, cfg config.SchedulerConfig) *Scheduler {
	primary := cfg.PrimaryInterval
	if primary <= 0 {
		primary = 30 * time.Second
	}
	backup := cfg.BackupInterval
	if backup <= 0 {
		backup = time.Minute
	}
	return &Scheduler{
		dispatcher: d,
		primary:    primary,
		backup:     backup,
	}
}

// Serve runs the cron triggers until the context is canceled. It implements
// suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	c := cron.New()

	tick := func(trigger string) func() {
		return func() {
			if err := s.dispatcher.Tick(ctx, time.Now().UTC()); err != nil {
				logging.Warn().Err(err).Str("trigger", trigger).Msg("Tick abandoned")
			}
		}
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.primary), tick("primary")); err != nil {
		return fmt.Errorf("register primary trigger: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.backup), tick("backup")); err != nil {
		return fmt.Errorf("register backup trigger: %w", err)
	}

	logging.Info().
		Dur("primary_interval", s.primary).
		Dur("backup_interval", s.backup).
		Msg("Scheduler started")

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		logging.Warn().Msg("Timed out waiting for in-flight tick on shutdown")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string { return "scheduler" }
