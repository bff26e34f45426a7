// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmcapp/pulse/internal/auth"
	"github.com/cmcapp/pulse/internal/authz"
	"github.com/cmcapp/pulse/internal/config"
	"github.com/cmcapp/pulse/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler  *Handler
	authMW   *auth.Middleware
	enforcer *authz.Enforcer
	security config.SecurityConfig
}

// NewRouter wires the router dependencies.
func NewRouter(handler *Handler, authMW *auth.Middleware, enforcer *authz.Enforcer, security config.SecurityConfig) *Router {
	return &Router{
		handler:  handler,
		authMW:   authMW,
		enforcer: enforcer,
		security: security,
	}
}

// SetupChi builds the chi handler tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health and metrics stay unauthenticated for probes and scrapers.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.security.RateLimitWindow))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.security.RateLimitReqs, router.security.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMW.Authenticate)

		r.Route("/notifications", func(r chi.Router) {
			read := router.enforcer.Require(authz.ObjectNotifications, authz.ActionRead)
			write := router.enforcer.Require(authz.ObjectNotifications, authz.ActionWrite)

			// Streams skip the prometheus path histogram noise by being
			// long-lived; they still count through hub metrics.
			r.With(read).Get("/events", router.handler.StreamSSE)
			r.With(read).Get("/ws", router.handler.StreamWebSocket)

			r.With(read).Get("/", router.handler.ListNotifications)
			r.With(read).Get("/history", router.handler.History)
			r.With(read).Get("/{id}", router.handler.GetNotification)
			r.With(read).Post("/{id}/view", router.handler.MarkViewed)

			r.With(write).Post("/", router.handler.CreateNotification)
			r.With(write).Put("/{id}", router.handler.UpdateNotification)
			r.With(write).Put("/{id}/state", router.handler.SetNotificationState)
			r.With(write).Delete("/{id}", router.handler.DeleteNotification)
		})

		r.With(router.enforcer.Require(authz.ObjectAccess, authz.ActionRead)).
			Get("/access", router.handler.AccessGrant)

		r.With(router.enforcer.Require(authz.ObjectAudit, authz.ActionRead)).
			Get("/audit", router.handler.AuditLog)
	})

	return r
}
