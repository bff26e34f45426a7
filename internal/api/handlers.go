// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cmcapp/pulse/internal/access"
	"github.com/cmcapp/pulse/internal/audit"
	"github.com/cmcapp/pulse/internal/auth"
	"github.com/cmcapp/pulse/internal/hub"
	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
	"github.com/cmcapp/pulse/internal/store"
)

// Publisher is the slice of the event bus the handlers need.
type Publisher interface {
	PublishNew(ctx context.Context, n *models.Notification) error
	PublishDelete(ctx context.Context, id uuid.UUID) error
}

// Handler implements the HTTP endpoints.
type Handler struct {
	store      *store.Store
	hub        *hub.Hub
	bus        Publisher
	resolver   *access.Resolver
	validate   *validator.Validate
	audit      *audit.Trail
	auditStore audit.Store
}

// NewHandler wires the handler dependencies.
func NewHandler(s *store.Store, h *hub.Hub, bus Publisher, resolver *access.Resolver) *Handler {
	return &Handler{
		store:    s,
		hub:      h,
		bus:      bus,
		resolver: resolver,
		validate: validator.New(),
	}
}

// SetAudit enables mutation auditing and the audit read endpoint.
// Optional; nil keeps auditing off.
func (h *Handler) SetAudit(t *audit.Trail, s audit.Store) {
	h.audit = t
	h.auditStore = s
}

// recordAudit appends a mutation to the trail when auditing is enabled.
func (h *Handler) recordAudit(r *http.Request, action audit.Action, notificationID, detail string) {
	if h.audit == nil {
		return
	}
	id := identity(r)
	if !id.IsStaff() {
		// Mutation routes are policy-gated to staff; a non-staff actor here
		// means the policy and the routing table disagree.
		logging.Warn().
			Str("actor", id.UserID).
			Str("role", id.Role).
			Msg("Non-staff actor reached a mutation audit point")
	}
	h.audit.Record(&audit.Entry{
		Actor:          id.UserID,
		Role:           id.Role,
		Action:         action,
		NotificationID: notificationID,
		RequestID:      logging.RequestIDFromContext(r.Context()),
		Detail:         detail,
	})
}

// identity pulls the authenticated identity; the auth middleware guarantees
// presence on protected routes.
func identity(r *http.Request) models.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

// currentVenue is the venue notifications are filtered against: the
// identity's assigned venue, or the venue derived from the calendar day.
func currentVenue(id models.Identity) string {
	if id.Venue != "" {
		return id.Venue
	}
	return access.ActiveVenueForDay(time.Now())
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// CreateNotification handles POST /api/v1/notifications. Unscheduled
// notifications broadcast immediately and are marked sent.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req NotificationRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), validationDetails(err))
		return
	}

	n := req.toModel()
	n.CreatedBy = identity(r).UserID
	if err := h.store.Create(r.Context(), n); err != nil {
		h.storeError(w, r, err)
		return
	}

	if n.ScheduledAt == nil && n.Active {
		h.broadcastImmediate(r.Context(), n)
	}

	h.recordAudit(r, audit.ActionCreated, n.ID.String(), n.Title)
	respondSuccess(w, r, http.StatusCreated, n, start)
}

// broadcastImmediate pushes an unscheduled notification to the stream and
// marks it sent. A bus failure is logged, not surfaced: the notification is
// persisted and the backup view is the list endpoint.
func (h *Handler) broadcastImmediate(ctx context.Context, n *models.Notification) {
	if err := h.bus.PublishNew(ctx, n); err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Immediate broadcast failed")
		return
	}
	won, err := h.store.MarkSent(ctx, n.ID)
	if err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to mark immediate notification sent")
		return
	}
	if won {
		n.Sent = true
	}
}

// ListNotifications handles GET /api/v1/notifications: the active
// notifications visible to the caller, newest first, with view state.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := identity(r)

	visible, err := h.store.ListVisibleTo(r.Context(), id, currentVenue(id))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, visible, start)
}

// History handles GET /api/v1/notifications/history: every notification
// with the caller's view state, targeting ignored.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	all, err := h.store.History(r.Context(), identity(r).UserID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, all, start)
}

// GetNotification handles GET /api/v1/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id", nil)
		return
	}
	n, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, n, start)
}

// UpdateNotification handles PUT /api/v1/notifications/{id}. The store
// resets the sent flag when the schedule changes; an edit that leaves the
// notification unscheduled and unsent broadcasts immediately, mirroring
// create.
func (h *Handler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id", nil)
		return
	}

	var req NotificationRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), validationDetails(err))
		return
	}

	n := req.toModel()
	n.ID = id
	if err := h.store.Update(r.Context(), n); err != nil {
		h.storeError(w, r, err)
		return
	}

	if n.ScheduledAt == nil && n.Active && !n.Sent {
		h.broadcastImmediate(r.Context(), n)
	}

	h.recordAudit(r, audit.ActionUpdated, n.ID.String(), n.Title)
	respondSuccess(w, r, http.StatusOK, n, start)
}

// SetNotificationState handles PUT /api/v1/notifications/{id}/state.
func (h *Handler) SetNotificationState(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id", nil)
		return
	}

	var req StateRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), validationDetails(err))
		return
	}

	if err := h.store.SetActive(r.Context(), id, *req.Active); err != nil {
		h.storeError(w, r, err)
		return
	}

	detail := "deactivated"
	if *req.Active {
		detail = "activated"
	}
	h.recordAudit(r, audit.ActionStateChanged, id.String(), detail)
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{"id": id, "active": *req.Active}, start)
}

// DeleteNotification handles DELETE /api/v1/notifications/{id}. Deletion
// is terminal; connected clients get a tombstone event.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id", nil)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	if err := h.bus.PublishDelete(r.Context(), id); err != nil {
		logging.Error().Err(err).Str("notification_id", id.String()).Msg("Tombstone broadcast failed")
	}

	h.recordAudit(r, audit.ActionDeleted, id.String(), "")
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{"id": id, "deleted": true}, start)
}

// MarkViewed handles POST /api/v1/notifications/{id}/view. Idempotent:
// repeating the call keeps the original view timestamp.
func (h *Handler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification id", nil)
		return
	}

	if err := h.store.MarkViewed(r.Context(), identity(r).UserID, id); err != nil {
		h.storeError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{"id": id, "viewed": true}, start)
}

// AccessGrant handles GET /api/v1/access: the caller's resolved grant.
func (h *Handler) AccessGrant(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := identity(r)

	grant := h.resolver.Resolve(id.Passes)
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"grant":         grant,
		"current_venue": currentVenue(id),
	}, start)
}

// AuditLog handles GET /api/v1/audit: recent notification mutations,
// newest first. 404 when auditing is disabled.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.auditStore == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "auditing disabled", nil)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	entries, err := h.auditStore.Recent(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("Audit query failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, entries, start)
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady reports readiness including the stream connection count.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status":      "ready",
		"connections": h.hub.ConnCount(),
	}, time.Now())
}

// storeError maps store failures to the API error taxonomy.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "notification not found", nil)
	case store.IsValidation(err):
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
	default:
		logging.Error().Err(err).
			Str("request_id", logging.RequestIDFromContext(r.Context())).
			Msg("Store operation failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error", nil)
	}
}
