// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package hub implements the broadcast hub: a concurrency-safe registry of
// live push-stream connections with best-effort fan-out.
//
// Delivery contract: events broadcast while a connection is registered are
// delivered to it at most once, in broadcast order. A dead or slow
// connection is unregistered rather than blocking the rest of the fan-out.
// Missed-event recovery is the receiver's job (full re-list on reconnect),
// not the hub's.
package hub

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/metrics"
)

// connIDCounter generates unique, monotonically increasing connection IDs.
// Fan-out iterates in ID order so delivery order is reproducible.
var connIDCounter atomic.Uint64

// Conn is one live push-stream session. The hub owns the send side; the
// transport (websocket pump or SSE handler) drains Events until it is
// closed, which happens the moment the connection is unregistered.
type Conn struct {
	id   uint64
	send chan Event
}

// ID returns the connection's locally-unique identifier.
func (c *Conn) ID() uint64 { return c.id }

// Events returns the readable stream of events for this connection.
// The channel is closed when the connection is unregistered.
func (c *Conn) Events() <-chan Event { return c.send }

// Hub maintains the set of active connections and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[uint64]*Conn

	broadcast chan Event

	sendBuffer int
	heartbeat  time.Duration
}

// Options tune hub buffer sizes and the keep-alive interval.
type Options struct {
	SendBuffer        int
	BroadcastBuffer   int
	HeartbeatInterval time.Duration
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:        256,
		BroadcastBuffer:   256,
		HeartbeatInterval: 25 * time.Second,
	}
}

// New creates a hub. Zero option fields fall back to defaults.
func New(opts Options) *Hub {
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = def.BroadcastBuffer
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	return &Hub{
		conns:      make(map[uint64]*Conn),
		broadcast:  make(chan Event, opts.BroadcastBuffer),
		sendBuffer: opts.SendBuffer,
		heartbeat:  opts.HeartbeatInterval,
	}
}

// Register adds a new connection to the hub and returns it. The caller's
// transport must drain conn.Events() until closed.
func (h *Hub) Register() *Conn {
	conn := &Conn{
		id:   connIDCounter.Add(1),
		send: make(chan Event, h.sendBuffer),
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	total := len(h.conns)
	h.mu.Unlock()

	metrics.StreamConnections.Set(float64(total))
	logging.Info().Uint64("conn_id", conn.id).Int("total_conns", total).Msg("stream connected")
	return conn
}

// Unregister removes a connection and closes its event stream. Safe to call
// more than once: disconnect is observed both from the transport close path
// and from a failed write during fan-out.
func (h *Hub) Unregister(conn *Conn) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	_, present := h.conns[conn.id]
	if present {
		delete(h.conns, conn.id)
		close(conn.send)
	}
	total := len(h.conns)
	h.mu.Unlock()

	if present {
		metrics.StreamConnections.Set(float64(total))
		logging.Info().Uint64("conn_id", conn.id).Int("total_conns", total).Msg("stream disconnected")
	}
}

// Broadcast queues an event for delivery to every currently registered
// connection. The hub loop preserves queue order per connection. If the hub
// queue itself is full the event is dropped with a warning; receivers repair
// any gap on their next re-list.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		metrics.BroadcastsDropped.Inc()
		logging.Warn().Str("event_type", ev.Type).Msg("broadcast queue full, dropping event")
	}
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run drains the broadcast queue and emits heartbeats until the context is
// canceled. Designed for suture supervision; returns ctx.Err() on shutdown
// after closing every remaining connection.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "hub").Msg("broadcast hub stopped")
			return ctx.Err()

		case ev := <-h.broadcast:
			h.fanOut(ev)

		case now := <-ticker.C:
			h.fanOut(PingEvent(now))
		}
	}
}

// fanOut delivers an event to every registered connection. One connection's
// full queue must not block the others: sends are non-blocking and a failed
// send removes only that connection.
//
// The write lock is held across the sends. Every close(conn.send) in this
// package happens under the same lock, so a concurrent Unregister can never
// close a channel between the registry walk and the send into it. Sends
// never block, so the lock is held only for the non-blocking pass.
func (h *Hub) fanOut(ev Event) {
	h.mu.Lock()

	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })

	var dead []*Conn
	for _, c := range conns {
		select {
		case c.send <- ev:
		default:
			// Queue full: the transport stopped draining. Treat as dead.
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		delete(h.conns, c.id)
		close(c.send)
	}
	total := len(h.conns)
	h.mu.Unlock()

	if ev.Type != EventPing {
		metrics.BroadcastsTotal.WithLabelValues(ev.Type).Inc()
	}
	for _, c := range dead {
		metrics.StreamWriteFailures.Inc()
		logging.Warn().Uint64("conn_id", c.id).Msg("connection not draining, removed")
	}
	if len(dead) > 0 {
		metrics.StreamConnections.Set(float64(total))
	}
}

// closeAll unregisters every connection, in ID order for reproducible
// shutdown behavior.
func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	for _, c := range conns {
		close(c.send)
	}
	h.conns = make(map[uint64]*Conn)
	h.mu.Unlock()

	metrics.StreamConnections.Set(0)
	if len(conns) > 0 {
		logging.Info().Int("conns_closed", len(conns)).Msg("closed all stream connections during shutdown")
	}
}
