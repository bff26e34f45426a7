// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package authz

import (
	"net/http"

	"github.com/cmcapp/pulse/internal/auth"
	"github.com/cmcapp/pulse/internal/logging"
)

// Require returns middleware that rejects requests whose identity role is
// not allowed to perform the action on the object. It must run after
// auth.Middleware.Authenticate so the identity is present in the context.
func (e *Enforcer) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "Forbidden: missing identity", http.StatusForbidden)
				return
			}

			allowed, err := e.Allowed(id.Role, object, action)
			if err != nil {
				logging.Error().Err(err).
					Str("role", id.Role).
					Str("object", object).
					Str("action", action).
					Msg("Authorization check failed")
				http.Error(w, "Internal authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logging.Warn().
					Str("user_id", id.UserID).
					Str("role", id.Role).
					Str("object", object).
					Str("action", action).
					Msg("Authorization denied")
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
