// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"leadcrm_backend/internal/events"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	config.RuntimeConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// StatusReporter adds module state to GET /api/status.
type StatusReporter interface {
	StatusFields(ctx context.Context) map[string]any
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is pinged by /health; a failure reports "degraded".
	Health   HealthChecker
	EventBus events.Bus
	// Metrics is optional; nil disables /metrics and the request collector.
	Metrics *metrics.Metrics
	Modules []Module
	// Status is optional.
	Status StatusReporter
}
