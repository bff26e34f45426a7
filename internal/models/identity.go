// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package models

// System roles. Pass tiers (CURSO, SESIONES, ...) are carried separately in
// Identity.Passes and resolved by the access package.
const (
	RoleAdmin     = "admin"
	RoleStaff     = "staff"
	RoleSpeaker   = "speaker"
	RoleExhibitor = "expositor"
	RoleAttendee  = "asistente"
)

// Identity is the resolved caller identity handed to the engine by the
// authentication layer. The engine treats it as an opaque input and never
// validates tokens itself.
type Identity struct {
	UserID string   `json:"user_id"`
	Role   string   `json:"role"`
	Passes []string `json:"passes"`
	Venue  string   `json:"venue"` // assigned venue; empty means derive from calendar day
}

// PassTier returns the lowercase tier tag used for notification targeting,
// matching how the admin panel addresses audiences ("curso", "sesiones",
// "general", ...). The first owned pass wins; users with no passes are
// "general".
func (id Identity) PassTier() string {
	if len(id.Passes) == 0 {
		return "general"
	}
	return lowerASCII(id.Passes[0])
}

// IsStaff reports whether the identity may manage notifications.
func (id Identity) IsStaff() bool {
	return id.Role == RoleAdmin || id.Role == RoleStaff
}

// lowerASCII lowercases A-Z without pulling in strings for a single call site.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
