// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package config defines the Pulse configuration structure and loads it via
// Koanf v2 with layered sources: built-in defaults, optional YAML file,
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Pulse server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Views     ViewsConfig     `koanf:"views"`
	Hub       HubConfig       `koanf:"hub"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds DuckDB settings for the notification store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory (tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ViewsConfig holds BadgerDB settings for the per-user view records.
type ViewsConfig struct {
	// Path is the Badger directory. Empty means in-memory (tests).
	Path string `koanf:"path"`
}

// HubConfig holds broadcast hub settings.
type HubConfig struct {
	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue fills is treated as dead and unregistered.
	SendBuffer int `koanf:"send_buffer"`

	// BroadcastBuffer is the hub's inbound event queue length.
	BroadcastBuffer int `koanf:"broadcast_buffer"`

	// HeartbeatInterval is how often a ping event is fanned out to detect
	// half-open transports.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// SchedulerConfig holds dispatch loop settings.
//
// Two interval triggers run the same idempotent tick; the backup covers the
// primary being wedged or the process having just restarted mid-minute.
type SchedulerConfig struct {
	PrimaryInterval time.Duration `koanf:"primary_interval"`
	BackupInterval  time.Duration `koanf:"backup_interval"`

	// DispatchBurst bounds how many due notifications a tick pushes per
	// second through the hub.
	DispatchRate  float64 `koanf:"dispatch_rate"`
	DispatchBurst int     `koanf:"dispatch_burst"`
}

// SecurityConfig holds auth and rate limit settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies identity tokens. Minimum 32 characters.
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`

	// DefaultRole is assigned to identities without an explicit role claim.
	DefaultRole string `koanf:"default_role"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if c.Scheduler.PrimaryInterval <= 0 {
		return fmt.Errorf("scheduler.primary_interval must be positive")
	}
	if c.Scheduler.BackupInterval <= 0 {
		return fmt.Errorf("scheduler.backup_interval must be positive")
	}
	if c.Hub.HeartbeatInterval <= 0 {
		return fmt.Errorf("hub.heartbeat_interval must be positive")
	}
	return nil
}
