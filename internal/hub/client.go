// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package hub

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/cmcapp/pulse/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB; clients only send ping frames back
)

// Client pumps hub events over a websocket transport. Half-open transports
// surface as read/write deadline errors, which close the connection and
// unregister it from the hub.
type Client struct {
	hub  *Hub
	conn *Conn
	ws   *websocket.Conn
}

// NewClient binds an upgraded websocket to a freshly registered hub
// connection.
func NewClient(h *Hub, ws *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: h.Register(),
		ws:   ws,
	}
}

// Start launches the read and write pumps. Returns immediately; the pumps
// run until the transport closes from either side.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames. Clients send nothing meaningful; the
// pump exists to observe close frames and keep the pong deadline fresh.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.conn)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Uint64("conn_id", c.conn.ID()).Err(err).Msg("unexpected websocket close")
			}
			return
		}
	}
}

// writePump writes hub events and transport-level pings to the websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c.conn)
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.conn.Events():
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed this connection's stream.
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				logging.Warn().Uint64("conn_id", c.conn.ID()).Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
