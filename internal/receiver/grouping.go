// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package receiver

import (
	"sort"
	"time"

	"github.com/cmcapp/pulse/internal/models"
)

// Day labels shown to attendees. Older days use the date itself.
const (
	LabelToday     = "Hoy"
	LabelYesterday = "Ayer"

	dateLabelLayout = "02/01/2006"
)

// CategoryGroup holds one category's notifications within a day.
type CategoryGroup struct {
	Category      string
	Notifications []*models.Notification
}

// DayGroup holds one calendar day of notifications, split by category.
type DayGroup struct {
	Label      string
	Date       time.Time
	Categories []CategoryGroup
}

// Grouped returns the accepted notifications grouped by calendar day and
// category, newest day first. Within a group, arrival order is preserved.
func (r *Receiver) Grouped(now time.Time) []DayGroup {
	return groupByDay(r.Notifications(), now)
}

func groupByDay(notifications []*models.Notification, now time.Time) []DayGroup {
	type dayBucket struct {
		date       time.Time
		categories map[string][]*models.Notification
		order      []string
	}

	days := make(map[time.Time]*dayBucket)
	var dayOrder []time.Time
	for _, n := range notifications {
		day := truncateToDay(n.CreatedAt.Local())
		bucket, ok := days[day]
		if !ok {
			bucket = &dayBucket{date: day, categories: make(map[string][]*models.Notification)}
			days[day] = bucket
			dayOrder = append(dayOrder, day)
		}
		if _, ok := bucket.categories[n.Category]; !ok {
			bucket.order = append(bucket.order, n.Category)
		}
		bucket.categories[n.Category] = append(bucket.categories[n.Category], n)
	}

	sort.Slice(dayOrder, func(i, j int) bool { return dayOrder[i].After(dayOrder[j]) })

	out := make([]DayGroup, 0, len(dayOrder))
	for _, day := range dayOrder {
		bucket := days[day]
		group := DayGroup{
			Label: dayLabel(day, now),
			Date:  day,
		}
		for _, category := range bucket.order {
			group.Categories = append(group.Categories, CategoryGroup{
				Category:      category,
				Notifications: bucket.categories[category],
			})
		}
		out = append(out, group)
	}
	return out
}

func dayLabel(day, now time.Time) string {
	today := truncateToDay(now.Local())
	switch {
	case day.Equal(today):
		return LabelToday
	case day.Equal(today.AddDate(0, 0, -1)):
		return LabelYesterday
	default:
		return day.Format(dateLabelLayout)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
