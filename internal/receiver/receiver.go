// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package receiver is the client side of the push stream: it dials the
// websocket endpoint, absorbs duplicate events, tracks unread state, and
// reconnects with capped exponential backoff when the stream drops.
package receiver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cmcapp/pulse/internal/access"
	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
)

// ViewPoster reports a viewed notification back to the server so the view
// record is persisted. Implementations POST to the view endpoint.
type ViewPoster interface {
	PostView(ctx context.Context, id uuid.UUID) error
}

// ViewPosterFunc adapts a function to ViewPoster.
type ViewPosterFunc func(ctx context.Context, id uuid.UUID) error

// PostView implements ViewPoster.
func (f ViewPosterFunc) PostView(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

// Options configures a Receiver.
type Options struct {
	// URL is the websocket stream endpoint (ws:// or wss://).
	URL string
	// Token authenticates the stream; sent as a bearer header.
	Token string
	// BaseDelay is the first reconnect delay. Default 1s.
	BaseDelay time.Duration
	// MaxDelay caps the reconnect delay. Default 30s.
	MaxDelay time.Duration
	// HandshakeTimeout bounds the dial. Default 10s.
	HandshakeTimeout time.Duration
	// Views persists mark-viewed callbacks. Optional.
	Views ViewPoster
	// Grant restricts accepted notifications to the venues the user may
	// reach. The stream broadcasts every event to every connection, so
	// venue targeting is enforced here. Optional; nil accepts all venues.
	Grant *access.Grant
}

// Receiver maintains one logical subscription to the notification stream.
type Receiver struct {
	opts   Options
	dialer *websocket.Dialer

	mu       sync.Mutex
	seen     map[uuid.UUID]struct{}
	viewed   map[uuid.UUID]struct{}
	accepted []*models.Notification
	unread   int
	attempt  int
}

// wireEvent defers payload decoding until the type tag is known.
type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// New creates a receiver. Run starts the subscription.
func New(opts Options) *Receiver {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Receiver{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		seen:   make(map[uuid.UUID]struct{}),
		viewed: make(map[uuid.UUID]struct{}),
	}
}

// Run connects and consumes the stream until the context is canceled.
// Stream errors never escape; they trigger the backoff-reconnect protocol.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if err := r.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := r.nextDelay()
			logging.Warn().Err(err).Dur("retry_in", delay).Msg("Stream lost, scheduling reconnect")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				// Teardown cancels the pending reconnect.
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return nil
	}
}

// connect dials once and reads until the stream fails or ctx is canceled.
func (r *Receiver) connect(ctx context.Context) error {
	header := http.Header{}
	if r.opts.Token != "" {
		header.Set("Authorization", "Bearer "+r.opts.Token)
	}

	conn, resp, err := r.dialer.DialContext(ctx, r.opts.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", r.opts.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", r.opts.URL, err)
	}
	defer conn.Close()
	logging.Info().Str("url", r.opts.URL).Msg("Stream connected")

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		r.handleMessage(payload)
	}
}

// handleMessage decodes one stream frame and applies it. The first
// successful receipt on a connection resets the backoff attempt counter.
func (r *Receiver) handleMessage(payload []byte) {
	var ev wireEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logging.Warn().Err(err).Msg("Undecodable stream frame dropped")
		return
	}

	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()

	switch ev.Type {
	case hub.EventNewNotification:
		var n models.Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			logging.Warn().Err(err).Msg("Undecodable notification payload dropped")
			return
		}
		r.Accept(&n)
	case hub.EventDeleteNotification:
		var tombstone struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &tombstone); err != nil {
			return
		}
		if id, err := uuid.Parse(tombstone.ID); err == nil {
			r.Remove(id)
		}
	case hub.EventPing:
		// Keep-alive only.
	default:
		logging.Debug().Str("type", ev.Type).Msg("Unknown stream event ignored")
	}
}

// Accept adds a notification unless its id was already seen or its venue
// falls outside the configured grant. It returns true when the notification
// was new. Duplicates are dropped silently.
func (r *Receiver) Accept(n *models.Notification) bool {
	if !r.venuePermitted(n) {
		logging.Debug().
			Str("notification_id", n.ID.String()).
			Str("target_venue", n.TargetVenue).
			Msg("Notification for unpermitted venue dropped")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[n.ID]; dup {
		return false
	}
	r.seen[n.ID] = struct{}{}
	r.accepted = append(r.accepted, n)
	r.unread++
	return true
}

// venuePermitted applies the grant filter. Notifications addressed to
// everyone always pass.
func (r *Receiver) venuePermitted(n *models.Notification) bool {
	if r.opts.Grant == nil || n.TargetVenue == "" || n.TargetVenue == models.TargetAll {
		return true
	}
	return r.opts.Grant.PermitsVenue(n.TargetVenue)
}

// Remove drops a deleted notification from local state.
func (r *Receiver) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; !ok {
		return
	}
	delete(r.seen, id)
	for i, n := range r.accepted {
		if n.ID == id {
			r.accepted = append(r.accepted[:i], r.accepted[i+1:]...)
			break
		}
	}
	if _, wasViewed := r.viewed[id]; !wasViewed && r.unread > 0 {
		r.unread--
	}
	delete(r.viewed, id)
}

// MarkViewed decrements the unread counter once per notification and
// reports the view to the server when a poster is configured.
func (r *Receiver) MarkViewed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	_, known := r.seen[id]
	_, already := r.viewed[id]
	if known && !already {
		r.viewed[id] = struct{}{}
		if r.unread > 0 {
			r.unread--
		}
	}
	r.mu.Unlock()

	if !known || already || r.opts.Views == nil {
		return nil
	}
	if err := r.opts.Views.PostView(ctx, id); err != nil {
		return fmt.Errorf("post view state: %w", err)
	}
	return nil
}

// Unread returns the current unread counter.
func (r *Receiver) Unread() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// Notifications returns the accepted notifications in arrival order.
func (r *Receiver) Notifications() []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Notification, len(r.accepted))
	copy(out, r.accepted)
	return out
}

// nextDelay computes the capped exponential backoff and advances the
// attempt counter.
func (r *Receiver) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := backoffDelay(r.opts.BaseDelay, r.opts.MaxDelay, r.attempt)
	r.attempt++
	return delay
}

// backoffDelay is min(ceiling, base<<attempt), guarding shift overflow.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt >= 31 {
		return ceiling
	}
	delay := base << uint(attempt)
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}
