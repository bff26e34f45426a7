// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/cmcapp/pulse/internal/models"
)

// maxBodyBytes bounds request bodies; notification payloads are small.
const maxBodyBytes = 64 << 10

// NotificationRequest is the create/update payload.
type NotificationRequest struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Body        string            `json:"body" validate:"required,max=4000"`
	Category    string            `json:"category" validate:"omitempty,max=50"`
	TargetRoles []string          `json:"target_roles" validate:"omitempty,dive,max=50"`
	TargetVenue string            `json:"target_venue" validate:"omitempty,max=50"`
	Meta        map[string]string `json:"meta"`
	Active      *bool             `json:"active"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

// StateRequest toggles a notification's visibility.
type StateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// toModel maps the request onto a notification. Unset active defaults to
// visible.
func (req *NotificationRequest) toModel() *models.Notification {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.Notification{
		Title:       req.Title,
		Body:        req.Body,
		Category:    req.Category,
		TargetRoles: req.TargetRoles,
		TargetVenue: req.TargetVenue,
		Meta:        req.Meta,
		Active:      active,
		ScheduledAt: req.ScheduledAt,
	}
}

// decodeAndValidate parses the JSON body into dst and runs validation.
func decodeAndValidate(r *http.Request, validate *validator.Validate, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// validationDetails converts validator errors into field-level details for
// the error envelope.
func validationDetails(err error) map[string]interface{} {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	details := make(map[string]interface{}, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fmt.Sprintf("failed on %q", fe.Tag())
	}
	return details
}
