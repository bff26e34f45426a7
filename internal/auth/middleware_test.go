// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmcapp/pulse/internal/models"
)

func newAuthenticatedHandler(t *testing.T) (*Middleware, http.Handler, *models.Identity) {
	t.Helper()
	m := newTestManager(t, time.Hour)
	mw := NewMiddleware(m, "")

	var captured models.Identity
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		captured = id
		w.WriteHeader(http.StatusOK)
	}))
	return mw, handler, &captured
}

func TestAuthenticateBearerHeader(t *testing.T) {
	m := newTestManager(t, time.Hour)
	_, handler, captured := newAuthenticatedHandler(t)

	token, err := m.GenerateToken(models.Identity{UserID: "u1", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.UserID != "u1" || captured.Role != models.RoleAdmin {
		t.Errorf("captured identity = %+v", captured)
	}
}

func TestAuthenticateCookie(t *testing.T) {
	m := newTestManager(t, time.Hour)
	_, handler, captured := newAuthenticatedHandler(t)

	token, _ := m.GenerateToken(models.Identity{UserID: "u2", Role: models.RoleStaff})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.UserID != "u2" {
		t.Errorf("captured identity = %+v", captured)
	}
}

func TestAuthenticateQueryParam(t *testing.T) {
	// EventSource clients cannot set headers, so streams pass the token
	// as a query parameter.
	m := newTestManager(t, time.Hour)
	_, handler, captured := newAuthenticatedHandler(t)

	token, _ := m.GenerateToken(models.Identity{UserID: "u3", Role: models.RoleAttendee})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/events?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.UserID != "u3" {
		t.Errorf("captured identity = %+v", captured)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	_, handler, _ := newAuthenticatedHandler(t)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestDefaultRoleApplied(t *testing.T) {
	m := newTestManager(t, time.Hour)
	mw := NewMiddleware(m, "asistente")

	var captured models.Identity
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
	}))

	token, _ := m.GenerateToken(models.Identity{UserID: "u4"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured.Role != models.RoleAttendee {
		t.Errorf("role = %q, want default asistente", captured.Role)
	}
}
