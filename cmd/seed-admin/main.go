// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package main seeds or replaces an account in the Pulse user store.
//
// Intended for ops bootstrap before first start:
//
//	seed-admin -username admin -password 'secret123' -role admin
//	seed-admin -username desk1 -password '...' -role staff -venue "Hotel Eurobuilding"
//
// Database paths come from the regular server configuration (env vars or
// config file), so the tool writes to the same DuckDB file the server uses.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/store"
)

func main() {
	var (
		username = flag.String("username", "", "account username (required)")
		password = flag.String("password", "", "account password, 8+ characters (required)")
		role     = flag.String("role", "admin", "account role: admin, staff, speaker, expositor, asistente")
		email    = flag.String("email", "", "contact email")
		passes   = flag.String("passes", "", "comma-separated pass codes (e.g. CONGRESO,CURSO)")
		venue    = flag.String("venue", "", "assigned venue; empty derives from the calendar day")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if len(*password) < 8 {
		logging.Fatal().Msg("Password must be at least 8 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	s, err := store.New(cfg.Database, cfg.Views)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() { _ = s.Close() }()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to hash password")
	}

	var passList []string
	for _, p := range strings.Split(*passes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			passList = append(passList, strings.ToUpper(p))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.UpsertUser(ctx, &store.User{
		Username:     *username,
		Email:        *email,
		PasswordHash: string(hash),
		Role:         *role,
		Passes:       passList,
		Venue:        *venue,
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed user")
	}

	logging.Info().
		Str("username", *username).
		Str("role", *role).
		Strs("passes", passList).
		Msg("User seeded")
}
