package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxpipe/internal/health"
	"github.com/MrWong99/voxpipe/internal/observe"
)

// OpsHandler returns the operations mux: /metrics in Prometheus text format
// from the default registry, plus /healthz and /readyz. Every route is
// traced and timed through [observe.Middleware].
func OpsHandler(m *observe.Metrics, checkers ...health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)
	return observe.Middleware(m)(mux)
}
