// Pulse - Congress Event Notification Engine
// Copyright 2026 CMC App
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cmcapp/pulse

// Package metrics provides Prometheus instrumentation for the notification
// engine: stream fan-out, scheduled dispatch, store operations and the HTTP
// surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream / hub metrics
	StreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_stream_connections",
			Help: "Current number of registered push-stream connections",
		},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_broadcasts_total",
			Help: "Total events fanned out to the stream, by event type",
		},
		[]string{"event_type"},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_broadcasts_dropped_total",
			Help: "Events dropped because the hub queue was full",
		},
	)

	StreamWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_stream_write_failures_total",
			Help: "Connections removed because their outbound queue stopped draining",
		},
	)

	// Scheduler metrics
	DispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_dispatches_total",
			Help: "Scheduled notifications promoted into the live stream",
		},
	)

	DispatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_dispatch_errors_total",
			Help: "Dispatch attempts that failed and were left for the next tick",
		},
	)

	SchedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerTickErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_scheduler_tick_errors_total",
			Help: "Scheduler ticks abandoned due to a query or dispatch failure",
		},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_store_query_duration_seconds",
			Help:    "Duration of notification store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_store_query_errors_total",
			Help: "Total notification store query errors",
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveStoreQuery records a store query's duration and outcome.
func ObserveStoreQuery(operation string, start time.Time, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveAPIRequest records one HTTP request.
func ObserveAPIRequest(method, endpoint string, status int, start time.Time) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
}
