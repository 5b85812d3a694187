package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/gosuda/cimut/internal/api/v1"
	"github.com/gosuda/cimut/internal/api/ws"
	"github.com/gosuda/cimut/internal/metrics"
)

func registerAPIRoutes(api huma.API, sessions v1.SessionStore) {
	v1.RegisterSessionRoutes(api, sessions)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/sessions/{sessionID}", hub.ServeSession)
}

func registerMetricsRoute(r chi.Router, g prometheus.Gatherer) {
	r.Method("GET", "/metrics", metrics.Handler(g))
}
