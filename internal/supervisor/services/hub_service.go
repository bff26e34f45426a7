// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package services

import (
	"context"

	"github.com/cmcapp/pulse/internal/hub"
)

// HubService runs the broadcast hub's fan-out loop under supervision.
// A hub restart drops live connections; clients recover through their
// reconnect backoff.
type HubService struct {
	hub *hub.Hub
}

// NewHubService wraps a hub for supervision.
func NewHubService(h *hub.Hub) *HubService {
	return &HubService{hub: h}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

func (s *HubService) String() string { return "broadcast-hub" }
