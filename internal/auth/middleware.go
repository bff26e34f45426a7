// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cmcapp/pulse/internal/logging"
	"github.com/cmcapp/pulse/internal/models"
)

type contextKey string

// IdentityContextKey is where the authenticated identity lives in the
// request context.
const IdentityContextKey contextKey = "identity"

// Middleware enforces token authentication on HTTP requests.
type Middleware struct {
	jwtManager  *JWTManager
	defaultRole string
}

// NewMiddleware creates authentication middleware. defaultRole applies when
// a valid token carries no role claim.
func NewMiddleware(jwtManager *JWTManager, defaultRole string) *Middleware {
	if defaultRole == "" {
		defaultRole = models.RoleAttendee
	}
	return &Middleware{
		jwtManager:  jwtManager,
		defaultRole: defaultRole,
	}
}

// Authenticate validates the request token and stores the resolved identity
// in the context. Tokens are accepted from the Authorization header, the
// "token" cookie, or the "token" query parameter; the query form exists for
// EventSource and websocket clients that cannot set headers.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(tokenString)
		if err != nil {
			logging.Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		id := claims.Identity()
		if id.Role == "" {
			id.Role = m.defaultRole
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext retrieves the identity stored by Authenticate.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return id, ok
}

func extractToken(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", fmt.Errorf("unauthorized: invalid authorization header")
		}
		return parts[1], nil
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("unauthorized: missing token")
}
