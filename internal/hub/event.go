// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package hub

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/cmcapp/pulse/internal/models"
)

// Event types pushed over the stream.
const (
	EventNewNotification    = "NEW_NOTIFICATION"
	EventDeleteNotification = "DELETE_NOTIFICATION"
	EventPing               = "ping"
)

// Event is a discrete message on the push stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewNotificationEvent wraps a notification for broadcast.
func NewNotificationEvent(n *models.Notification) Event {
	return Event{Type: EventNewNotification, Data: n}
}

// DeleteEvent is the tombstone broadcast when a notification is removed.
func DeleteEvent(id string) Event {
	return Event{Type: EventDeleteNotification, Data: map[string]string{"id": id}}
}

// PingEvent is the periodic keep-alive.
func PingEvent(now time.Time) Event {
	return Event{Type: EventPing, Data: map[string]string{"ts": now.UTC().Format(time.RFC3339)}}
}

// MarshalEvent converts an event to JSON.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
