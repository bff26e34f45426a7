// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package receiver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cmcapp/pulse/internal/access"
	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func testNotification(title string) *models.Notification {
	return &models.Notification{
		ID:        uuid.New(),
		Title:     title,
		Body:      "b",
		Category:  models.CategoryInfo,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestAcceptDeduplicatesByID(t *testing.T) {
	r := New(Options{})
	n := testNotification("repetida")

	if !r.Accept(n) {
		t.Fatal("first Accept() returned false")
	}
	if r.Accept(n) {
		t.Error("duplicate Accept() returned true")
	}
	if got := r.Unread(); got != 1 {
		t.Errorf("unread = %d, want 1 after duplicate", got)
	}
	if got := len(r.Notifications()); got != 1 {
		t.Errorf("accepted = %d notifications, want 1", got)
	}
}

func TestAcceptFiltersVenuesOutsideGrant(t *testing.T) {
	grant := access.NewResolver(nil).Resolve([]string{"SESIONES"})
	r := New(Options{Grant: &grant})

	permitted := testNotification("permitida")
	permitted.TargetVenue = grant.Venues[0]
	everyone := testNotification("general")
	everyone.TargetVenue = models.TargetAll
	foreign := testNotification("ajena")
	foreign.TargetVenue = "SALA-INEXISTENTE"

	if !r.Accept(permitted) {
		t.Error("notification for a granted venue rejected")
	}
	if !r.Accept(everyone) {
		t.Error("notification for everyone rejected")
	}
	if r.Accept(foreign) {
		t.Error("notification for an unpermitted venue accepted")
	}
	if got := r.Unread(); got != 2 {
		t.Errorf("unread = %d, want 2", got)
	}
}

func TestMarkViewedDecrementsOnce(t *testing.T) {
	var posted []uuid.UUID
	var mu sync.Mutex
	r := New(Options{
		Views: ViewPosterFunc(func(ctx context.Context, id uuid.UUID) error {
			mu.Lock()
			posted = append(posted, id)
			mu.Unlock()
			return nil
		}),
	})

	n := testNotification("vista")
	r.Accept(n)
	r.Accept(testNotification("otra"))

	if err := r.MarkViewed(context.Background(), n.ID); err != nil {
		t.Fatalf("MarkViewed() failed: %v", err)
	}
	if got := r.Unread(); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}

	// Second view of the same notification is a no-op.
	if err := r.MarkViewed(context.Background(), n.ID); err != nil {
		t.Fatalf("second MarkViewed() failed: %v", err)
	}
	if got := r.Unread(); got != 1 {
		t.Errorf("unread = %d after repeat view, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 {
		t.Errorf("posted %d view states, want 1", len(posted))
	}
}

func TestMarkViewedUnknownIsNoop(t *testing.T) {
	r := New(Options{
		Views: ViewPosterFunc(func(ctx context.Context, id uuid.UUID) error {
			t.Error("poster called for unknown notification")
			return nil
		}),
	})
	if err := r.MarkViewed(context.Background(), uuid.New()); err != nil {
		t.Fatalf("MarkViewed() failed: %v", err)
	}
}

func TestRemoveAdjustsUnread(t *testing.T) {
	r := New(Options{})
	kept := testNotification("se queda")
	removed := testNotification("borrada")
	r.Accept(kept)
	r.Accept(removed)

	r.Remove(removed.ID)
	if got := r.Unread(); got != 1 {
		t.Errorf("unread = %d, want 1 after removing unviewed", got)
	}
	if got := len(r.Notifications()); got != 1 {
		t.Errorf("accepted = %d, want 1", got)
	}

	// Removing a viewed notification must not touch the counter.
	_ = r.MarkViewed(context.Background(), kept.ID)
	r.Remove(kept.ID)
	if got := r.Unread(); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestBackoffDelayGrowth(t *testing.T) {
	base := time.Second
	ceiling := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, ceiling, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestAttemptResetsOnReceipt(t *testing.T) {
	r := New(Options{})

	// Simulate failed connections.
	for i := 0; i < 3; i++ {
		r.nextDelay()
	}
	if r.nextDelay() != 8*time.Second {
		t.Fatal("attempt counter did not grow")
	}

	payload, _ := hub.MarshalEvent(hub.PingEvent(time.Now()))
	r.handleMessage(payload)

	if got := r.nextDelay(); got != time.Second {
		t.Errorf("delay after receipt = %v, want base 1s", got)
	}
}

// streamServer upgrades websocket connections and plays a script of events.
func streamServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestRunConsumesStream(t *testing.T) {
	n := testNotification("en vivo")
	served := make(chan struct{})
	ts := streamServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteJSON(hub.NewNotificationEvent(n)); err != nil {
			t.Errorf("write failed: %v", err)
		}
		if err := conn.WriteJSON(hub.DeleteEvent(uuid.NewString())); err != nil {
			t.Errorf("write failed: %v", err)
		}
		close(served)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	r := New(Options{URL: wsURL(ts), Token: "test-token"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	<-served
	deadline := time.After(2 * time.Second)
	for r.Unread() == 0 {
		select {
		case <-deadline:
			t.Fatal("notification never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}

	got := r.Notifications()
	if len(got) != 1 || got[0].ID != n.ID {
		t.Errorf("notifications = %v, want the streamed one", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on teardown")
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	n := testNotification("tras reconectar")
	ts := streamServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			// Drop immediately to force a reconnect.
			return
		}
		_ = conn.WriteJSON(hub.NewNotificationEvent(n))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	r := New(Options{URL: wsURL(ts), BaseDelay: 20 * time.Millisecond, MaxDelay: 100 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	deadline := time.After(4 * time.Second)
	for r.Unread() == 0 {
		select {
		case <-deadline:
			t.Fatal("notification never arrived after reconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if conns < 2 {
		t.Errorf("server saw %d connections, want at least 2", conns)
	}
}
