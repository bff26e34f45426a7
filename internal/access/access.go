// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package access maps the set of passes a user owns to the venues, congress
// days and capabilities that user may reach.
//
// Resolution is a monotonic OR-reduction over a static pass table: any owned
// pass that grants a capability grants it for the whole user, and venue/day
// sets are unioned. Unknown pass tags contribute nothing. The resolver is a
// pure function over an immutable table built once at process start.
package access

import (
	"sort"
	"time"
)

// Capabilities are the feature flags a pass can grant.
type Capabilities struct {
	Networking bool `json:"networking"`
	Expo       bool `json:"expo"`
	Sessions   bool `json:"sessions"`
	Courses    bool `json:"courses"`
	Favorites  bool `json:"favorites"`
}

// Grant is the derived access a user holds. It is computed on demand from
// the owned pass set and never persisted.
type Grant struct {
	Venues       []string     `json:"venues"`
	Days         []int        `json:"days"`
	Capabilities Capabilities `json:"capabilities"`
}

// PassRecord describes what a single pass grants.
type PassRecord struct {
	Days         []int
	Venues       []string
	Capabilities Capabilities
}

// Resolver resolves pass sets against an immutable pass table.
type Resolver struct {
	table map[string]PassRecord
}

// NewResolver builds a resolver from the given table. A nil table uses the
// built-in congress passes.
func NewResolver(table map[string]PassRecord) *Resolver {
	if table == nil {
		table = DefaultPassTable()
	}
	// Copy so later mutation of the caller's map cannot leak in.
	own := make(map[string]PassRecord, len(table))
	for tag, rec := range table {
		own[tag] = rec
	}
	return &Resolver{table: own}
}

// Resolve computes the grant for a set of owned passes.
//
// Duplicates collapse and order is irrelevant. Unknown tags are ignored; an
// empty or fully-unknown set yields the zero grant. Callers distinguish the
// zero grant from "denied" at policy level, typically falling back to
// ActiveVenueForDay.
func (r *Resolver) Resolve(passes []string) Grant {
	venues := make(map[string]struct{})
	days := make(map[int]struct{})
	var caps Capabilities

	for _, tag := range passes {
		rec, ok := r.table[tag]
		if !ok {
			continue
		}
		for _, v := range rec.Venues {
			venues[v] = struct{}{}
		}
		for _, d := range rec.Days {
			days[d] = struct{}{}
		}
		caps.Networking = caps.Networking || rec.Capabilities.Networking
		caps.Expo = caps.Expo || rec.Capabilities.Expo
		caps.Sessions = caps.Sessions || rec.Capabilities.Sessions
		caps.Courses = caps.Courses || rec.Capabilities.Courses
		caps.Favorites = caps.Favorites || rec.Capabilities.Favorites
	}

	g := Grant{
		Venues:       make([]string, 0, len(venues)),
		Days:         make([]int, 0, len(days)),
		Capabilities: caps,
	}
	for v := range venues {
		g.Venues = append(g.Venues, v)
	}
	for d := range days {
		g.Days = append(g.Days, d)
	}
	sort.Strings(g.Venues)
	sort.Ints(g.Days)
	return g
}

// PermitsVenue reports whether the grant includes the given venue.
func (g Grant) PermitsVenue(venue string) bool {
	for _, v := range g.Venues {
		if v == venue {
			return true
		}
	}
	return false
}

// ActiveVenueForDay returns the venue implied by the calendar weekday
// (Monday through Thursday map to the four congress days), or "" outside
// the congress window. This is the fallback policy for users whose grant
// carries no venues.
func ActiveVenueForDay(now time.Time) string {
	switch now.Weekday() {
	case time.Monday:
		return "DIA1"
	case time.Tuesday:
		return "DIA2"
	case time.Wednesday:
		return "DIA3"
	case time.Thursday:
		return "DIA4"
	default:
		return ""
	}
}
