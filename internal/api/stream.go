// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS layer; the stream endpoints
	// authenticate via token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamSSE handles GET /api/v1/notifications/events. It registers an SSE
// connection on the hub and relays events until the client disconnects.
func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := h.hub.Register()
	defer h.hub.Unregister(conn)
	logging.Info().
		Uint64("conn_id", conn.ID()).
		Str("user_id", identity(r).UserID).
		Msg("SSE stream opened")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logging.Debug().Uint64("conn_id", conn.ID()).Msg("SSE stream closed by client")
			return
		case ev, open := <-conn.Events():
			if !open {
				return
			}
			payload, err := hub.MarshalEvent(ev)
			if err != nil {
				logging.Error().Err(err).Msg("Failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				metrics.StreamWriteFailures.Inc()
				logging.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// StreamWebSocket handles GET /api/v1/notifications/ws. It upgrades the
// connection and hands it to the hub's client pumps.
func (h *Handler) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, ws)
	logging.Info().
		Str("user_id", identity(r).UserID).
		Str("remote", r.RemoteAddr).
		Msg("WebSocket stream opened")
	client.Start()
}
