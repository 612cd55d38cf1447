package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bonyankop-api/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestMetricsHandlerProbes(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	w := serve(t, http.MethodGet, "/health", "/health", nil, nil, h.Health)
	requireStatus(t, w, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(t, http.MethodGet, "/ready", "/ready", nil, nil, h.Ready)
	requireStatus(t, w, http.StatusOK)

	down := NewMetricsHandler(nil, pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	w = serve(t, http.MethodGet, "/ready", "/ready", nil, nil, down.Ready)
	requireStatus(t, w, http.StatusServiceUnavailable)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = serve(t, http.MethodGet, "/metrics", "/metrics", nil, nil, h.Prometheus)
	requireStatus(t, w, http.StatusServiceUnavailable)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	h := NewMetricsHandler(metrics, nil)

	w := serve(t, http.MethodGet, "/metrics", "/metrics", nil, nil, h.Prometheus)
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
