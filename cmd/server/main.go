// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package main is the entry point for the Pulse notification server.
//
// Pulse is the real-time notification engine for a congress event app. It
// stores admin-authored notifications in DuckDB, fans them out to connected
// clients over SSE and WebSocket, and flushes scheduled notifications on a
// dual-interval dispatch loop.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env vars)
//  2. Store: DuckDB notifications plus BadgerDB per-user view records
//  3. Broadcast hub: per-connection fan-out with heartbeats
//  4. Event bus: watermill channel bridging store mutations to the hub
//  5. Scheduler: cron-driven idempotent dispatch of due notifications
//  6. Auth: JWT validation and Casbin role enforcement
//  7. HTTP server: Chi REST API with SSE and WebSocket streams
//
// Everything runs under a suture supervision tree; a crash in one layer
// restarts that layer without tearing down the rest.
//
// # Configuration
//
// Required in production:
//   - PULSE_SECURITY_JWT_SECRET: 32+ character secret for token verification
//
// Optional admin bootstrap (idempotent upsert at boot):
//   - PULSE_SECURITY_ADMIN_USERNAME
//   - PULSE_SECURITY_ADMIN_PASSWORD
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, live streams are closed, and the stores are flushed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cmcapp/pulse/internal/access"
	"github.com/cmcapp/pulse/internal/api"
	"github.com/cmcapp/pulse/internal/audit"
	"github.com/cmcapp/pulse/internal/auth"
	"github.com/cmcapp/pulse/internal/authz"
	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/events"
	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/scheduler"
	"github.com/cmcapp/pulse/internal/store"
	"github.com/cmcapp/pulse/internal/supervisor"
	"github.com/cmcapp/pulse/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("views_path", cfg.Views.Path).
		Msg("Starting Pulse")

	s, err := store.New(cfg.Database, cfg.Views)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedAdmin(ctx, s, cfg.Security); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed admin user")
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager (set PULSE_SECURITY_JWT_SECRET)")
	}

	enforcer, err := authz.NewEnforcer(&authz.Config{DefaultRole: cfg.Security.DefaultRole})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize role enforcer")
	}

	h := hub.New(hub.Options{
		SendBuffer:        cfg.Hub.SendBuffer,
		BroadcastBuffer:   cfg.Hub.BroadcastBuffer,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
	})

	bus := events.NewBus(int64(cfg.Hub.BroadcastBuffer))
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	dispatcher := scheduler.NewDispatcher(s, bus, scheduler.DispatcherConfig{
		DispatchRate:  cfg.Scheduler.DispatchRate,
		DispatchBurst: cfg.Scheduler.DispatchBurst,
	})

	auditStore := audit.NewDuckDBStore(s.Conn())
	if err := auditStore.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit table")
	}
	trail := audit.NewTrail(auditStore, audit.DefaultConfig())
	defer trail.Close()
	trail.StartCleanup(ctx)

	handler := api.NewHandler(s, h, bus, access.NewResolver(access.DefaultPassTable()))
	handler.SetAudit(trail, auditStore)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager, cfg.Security.DefaultRole), enforcer, cfg.Security)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewHubService(h))
	tree.AddMessagingService(events.NewBridge(bus, h))
	tree.AddDispatchService(scheduler.New(dispatcher, cfg.Scheduler))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Supervision tree assembled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Pulse stopped gracefully")
}

// seedAdmin upserts the bootstrap admin account when credentials are
// configured. Safe to run on every boot.
func seedAdmin(ctx context.Context, s *store.Store, sec config.SecurityConfig) error {
	if sec.AdminUsername == "" || sec.AdminPassword == "" {
		return nil
	}
	if len(sec.AdminPassword) < 8 {
		return errors.New("admin password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(sec.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.UpsertUser(ctx, &store.User{
		Username:     sec.AdminUsername,
		PasswordHash: string(hash),
		Role:         "admin",
	}); err != nil {
		return err
	}
	logging.Info().Str("username", sec.AdminUsername).Msg("Admin account seeded")
	return nil
}
