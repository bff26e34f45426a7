// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package access

// Pass tags sold for the congress.
const (
	PassCourse    = "CURSO"
	PassSessions  = "SESIONES"
	PassCombo     = "COMBO"
	PassGeneral   = "GENERAL"
	PassExhibitor = "EXPOSITOR"
	PassSpeaker   = "SPEAKER"
	PassStaff     = "STAFF"
)

// DefaultPassTable returns the built-in pass-to-permission table.
//
// CURSO covers the two course days, SESIONES the two session days, COMBO
// everything. EXPOSITOR is scoped to the expo floor during session days.
// STAFF holds every capability across every venue.
func DefaultPassTable() map[string]PassRecord {
	return map[string]PassRecord{
		PassCourse: {
			Days:   []int{1, 2},
			Venues: []string{"DIA1", "DIA2"},
			Capabilities: Capabilities{
				Courses: true,
			},
		},
		PassSessions: {
			Days:   []int{3, 4},
			Venues: []string{"DIA3", "DIA4"},
			Capabilities: Capabilities{
				Networking: true,
				Expo:       true,
				Sessions:   true,
				Favorites:  true,
			},
		},
		PassCombo: {
			Days:   []int{1, 2, 3, 4},
			Venues: []string{"DIA1", "DIA2", "DIA3", "DIA4"},
			Capabilities: Capabilities{
				Networking: true,
				Expo:       true,
				Sessions:   true,
				Courses:    true,
				Favorites:  true,
			},
		},
		PassGeneral: {
			Capabilities: Capabilities{
				Networking: true,
				Expo:       true,
			},
		},
		PassExhibitor: {
			Days:   []int{3, 4},
			Venues: []string{"EXPO"},
			Capabilities: Capabilities{
				Networking: true,
				Expo:       true,
			},
		},
		PassSpeaker: {
			Days:   []int{1, 2, 3, 4},
			Venues: []string{"DIA1", "DIA2", "DIA3", "DIA4"},
			Capabilities: Capabilities{
				Expo:      true,
				Sessions:  true,
				Favorites: true, // favorites limited to congress sessions
			},
		},
		PassStaff: {
			Days:   []int{1, 2, 3, 4},
			Venues: []string{"DIA1", "DIA2", "DIA3", "DIA4", "EXPO"},
			Capabilities: Capabilities{
				Networking: true,
				Expo:       true,
				Sessions:   true,
				Courses:    true,
				Favorites:  true,
			},
		},
	}
}
