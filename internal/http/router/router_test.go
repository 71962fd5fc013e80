package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type statusFields map[string]any

func (s statusFields) StatusFields(context.Context) map[string]any { return s }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.API.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	ctx.Admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "admin pong") })
}

func newTestApp(health apphttp.HealthChecker, status apphttp.StatusReporter) *apphttp.App {
	gin.SetMode(gin.TestMode)
	return &apphttp.App{
		Config: &config.Config{
			Env:             "test",
			Version:         "v1.2.3",
			JWTAccessSecret: "secret",
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Logger:  logger.Discard(),
		Health:  health,
		Status:  status,
		Modules: []apphttp.Module{pingModule{}},
	}
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		health   apphttp.HealthChecker
		wantCode int
		wantBody string
	}{
		{"database reachable", pinger{}, http.StatusOK, `{"status":"ok","database":"ok"}`},
		{"database unreachable", pinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, `{"status":"degraded","database":"unreachable"}`},
		{"no checker", nil, http.StatusOK, `{"status":"ok","database":"ok"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(New(newTestApp(tt.health, nil)), "/health")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestStatusMergesReporterFields(t *testing.T) {
	reporter := statusFields{"auto_assign": map[string]any{"is_running": true, "mode": "in_process"}}
	w := get(New(newTestApp(pinger{}, reporter)), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, "v1.2.3", body["version"])
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "timestamp")
	assert.Equal(t, map[string]any{"is_running": true, "mode": "in_process"}, body["auto_assign"])
}

func TestStatusWithoutReporter(t *testing.T) {
	w := get(New(newTestApp(pinger{}, nil)), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "auto_assign")
}

func TestModuleRoutesMounted(t *testing.T) {
	engine := New(newTestApp(pinger{}, nil))

	w := get(engine, "/api/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(engine, "/api/admin/ping").Code)
}

func TestMetricsRouteOnlyWithCollector(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, get(New(newTestApp(pinger{}, nil)), "/metrics").Code)
}
