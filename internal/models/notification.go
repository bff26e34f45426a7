// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package models defines the shared data types for the Pulse notification
// engine: notifications, view records, resolved identities and the API
// response envelope.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TargetAll is the wildcard value for role and venue targeting.
const TargetAll = "all"

// Notification categories. Free-form strings are accepted; these are the
// values the admin panel produces.
const (
	CategoryInfo    = "info"
	CategoryAlert   = "alert"
	CategoryAgenda  = "agenda"
	CategorySponsor = "sponsor"
)

// Notification is a congress-wide announcement pushed to connected clients.
//
// Lifecycle: created by an authorized actor, optionally with ScheduledAt in
// the future. The scheduler flips Sent false->true exactly once when the
// schedule elapses; an edit that changes the schedule resets Sent to false.
// Deletion is terminal and is broadcast to clients as a tombstone event.
type Notification struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Category    string            `json:"category"`
	TargetRoles []string          `json:"target_roles"` // role tags or pass tiers; contains "all" for everyone
	TargetVenue string            `json:"target_venue"` // venue tag or "all"
	Meta        map[string]string `json:"meta,omitempty"`
	Active      bool              `json:"active"`
	Sent        bool              `json:"sent"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"` // nil means immediate
}

// TargetsRole reports whether the notification targets the given role or
// pass tier. An empty target list behaves like the "all" wildcard.
func (n *Notification) TargetsRole(role string) bool {
	if len(n.TargetRoles) == 0 {
		return true
	}
	for _, r := range n.TargetRoles {
		if r == TargetAll || r == role {
			return true
		}
	}
	return false
}

// TargetsVenue reports whether the notification targets the given venue.
func (n *Notification) TargetsVenue(venue string) bool {
	return n.TargetVenue == TargetAll || n.TargetVenue == "" || n.TargetVenue == venue
}

// Due reports whether the notification is scheduled and its schedule has
// elapsed at the given instant.
func (n *Notification) Due(now time.Time) bool {
	return n.Active && !n.Sent && n.ScheduledAt != nil && !n.ScheduledAt.After(now)
}

// ViewRecord marks that a user has seen a notification.
// At most one record exists per (user, notification) pair.
type ViewRecord struct {
	UserID         string    `json:"user_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	ViewedAt       time.Time `json:"viewed_at"`
}

// VisibleNotification is a notification joined with the requesting user's
// view state, as returned by the list and history queries.
type VisibleNotification struct {
	Notification
	Viewed   bool       `json:"viewed"`
	ViewedAt *time.Time `json:"viewed_at,omitempty"`
}
