// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package receiver

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/models"
)

func notificationAt(title, category string, at time.Time) *models.Notification {
	return &models.Notification{
		ID:        uuid.New(),
		Title:     title,
		Body:      "b",
		Category:  category,
		CreatedAt: at,
	}
}

func TestGroupedByDayAndCategory(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.Local)
	yesterday := now.AddDate(0, 0, -1)
	lastWeek := now.AddDate(0, 0, -6)

	r := New(Options{})
	r.Accept(notificationAt("agenda hoy", models.CategoryAgenda, now))
	r.Accept(notificationAt("aviso hoy", models.CategoryInfo, now.Add(-time.Hour)))
	r.Accept(notificationAt("agenda hoy 2", models.CategoryAgenda, now.Add(-2*time.Hour)))
	r.Accept(notificationAt("ayer", models.CategoryAlert, yesterday))
	r.Accept(notificationAt("antigua", models.CategoryInfo, lastWeek))

	groups := r.Grouped(now)
	if len(groups) != 3 {
		t.Fatalf("got %d day groups, want 3", len(groups))
	}

	if groups[0].Label != LabelToday {
		t.Errorf("first group label = %q, want %q", groups[0].Label, LabelToday)
	}
	if groups[1].Label != LabelYesterday {
		t.Errorf("second group label = %q, want %q", groups[1].Label, LabelYesterday)
	}
	wantDate := lastWeek.Format(dateLabelLayout)
	if groups[2].Label != wantDate {
		t.Errorf("third group label = %q, want %q", groups[2].Label, wantDate)
	}

	today := groups[0]
	if len(today.Categories) != 2 {
		t.Fatalf("today has %d categories, want 2", len(today.Categories))
	}
	if today.Categories[0].Category != models.CategoryAgenda {
		t.Errorf("first category = %q, want arrival order preserved", today.Categories[0].Category)
	}
	if len(today.Categories[0].Notifications) != 2 {
		t.Errorf("agenda notifications = %d, want 2", len(today.Categories[0].Notifications))
	}
}

func TestGroupedEmpty(t *testing.T) {
	r := New(Options{})
	if groups := r.Grouped(time.Now()); len(groups) != 0 {
		t.Errorf("got %d groups for empty receiver, want 0", len(groups))
	}
}
