// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// fakeStore implements Store with CAS semantics matching the real one.
type fakeStore struct {
	mu       sync.Mutex
	pending  []*models.Notification
	sent     map[uuid.UUID]bool
	queryErr error
	markErr  error
	queries  int
}

func newFakeStore(pending ...*models.Notification) *fakeStore {
	return &fakeStore{pending: pending, sent: make(map[uuid.UUID]bool)}
}

func (f *fakeStore) DueForDispatch(ctx context.Context, now time.Time) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	due := make([]*models.Notification, 0)
	for _, n := range f.pending {
		if !f.sent[n.ID] {
			due = append(due, n)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.sent[id] {
		return false, nil
	}
	f.sent[id] = true
	return true, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.Notification
	err       error
}

func (f *fakePublisher) PublishNew(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, n)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func scheduled(title string, at time.Time) *models.Notification {
	return &models.Notification{
		ID:          uuid.New(),
		Title:       title,
		Body:        "b",
		Active:      true,
		ScheduledAt: &at,
	}
}

func TestTickDispatchesDueInOrder(t *testing.T) {
	now := time.Now().UTC()
	first := scheduled("primera", now.Add(-5*time.Minute))
	second := scheduled("segunda", now.Add(-time.Minute))
	s := newFakeStore(first, second)
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if p.count() != 2 {
		t.Fatalf("published %d notifications, want 2", p.count())
	}
	if p.published[0].ID != first.ID || p.published[1].ID != second.ID {
		t.Error("dispatch order does not follow scheduled order")
	}
	if !s.sent[first.ID] || !s.sent[second.ID] {
		t.Error("dispatched notifications not marked sent")
	}
}

func TestSecondTickDoesNotRedispatch(t *testing.T) {
	now := time.Now().UTC()
	n1 := scheduled("n1", now.Add(-5*time.Second))
	s := newFakeStore(n1)
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("first Tick() failed: %v", err)
	}
	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("second Tick() failed: %v", err)
	}
	if p.count() != 1 {
		t.Errorf("published %d times, want exactly 1", p.count())
	}
}

// TestTickSkipsRowsOutsideDispatchContract covers the per-row re-check: a
// row the due query hands back that is inactive, already sent, or not yet
// elapsed must not broadcast.
func TestTickSkipsRowsOutsideDispatchContract(t *testing.T) {
	now := time.Now().UTC()
	inactive := scheduled("inactiva", now.Add(-time.Minute))
	inactive.Active = false
	future := scheduled("futura", now.Add(time.Hour))
	due := scheduled("lista", now.Add(-time.Minute))
	s := newFakeStore(inactive, future, due)
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if p.count() != 1 {
		t.Fatalf("published %d notifications, want 1", p.count())
	}
	if p.published[0].ID != due.ID {
		t.Error("wrong notification dispatched")
	}
	if s.sent[inactive.ID] || s.sent[future.ID] {
		t.Error("skipped rows must not be marked sent")
	}
}

func TestLostCASIsNotAnError(t *testing.T) {
	now := time.Now().UTC()
	n := scheduled("carrera", now.Add(-time.Minute))
	s := newFakeStore(n)
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	// First dispatch wins the CAS; re-running dispatch directly simulates
	// the overlapping tick that loses it.
	if err := d.dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch() failed: %v", err)
	}
	if err := d.dispatch(context.Background(), n); err != nil {
		t.Fatalf("losing dispatch() returned error: %v", err)
	}
	if p.count() != 2 {
		t.Errorf("published %d times, want 2 (duplicate broadcast accepted)", p.count())
	}
}

func TestPublishFailureSkipsMarkSent(t *testing.T) {
	now := time.Now().UTC()
	n := scheduled("fallida", now.Add(-time.Minute))
	s := newFakeStore(n)
	p := &fakePublisher{err: errors.New("bus down")}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if s.sent[n.ID] {
		t.Error("notification marked sent despite failed broadcast")
	}

	// Next tick retries once the bus recovers.
	p.err = nil
	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("retry Tick() failed: %v", err)
	}
	if !s.sent[n.ID] {
		t.Error("notification not dispatched on retry")
	}
}

func TestQueryFailureAbandonsTick(t *testing.T) {
	s := newFakeStore()
	s.queryErr = errors.New("store offline")
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	if err := d.Tick(context.Background(), time.Now()); err == nil {
		t.Error("expected error from failing due query")
	}
	if p.count() != 0 {
		t.Error("nothing should be published on a failed tick")
	}
}

func TestBreakerOpensOnPersistentFailure(t *testing.T) {
	s := newFakeStore()
	s.queryErr = errors.New("store offline")
	p := &fakePublisher{}
	d := NewDispatcher(s, p, DispatcherConfig{DispatchRate: 1000, DispatchBurst: 100})

	for i := 0; i < 5; i++ {
		if err := d.Tick(context.Background(), time.Now()); err == nil {
			t.Fatalf("tick %d: expected error", i)
		}
	}
	queriesBefore := s.queries

	// Breaker is open now; the store must not be hit again.
	if err := d.Tick(context.Background(), time.Now()); err == nil {
		t.Error("expected breaker-open error")
	}
	if s.queries != queriesBefore {
		t.Errorf("store queried %d times while breaker open", s.queries-queriesBefore)
	}
}
